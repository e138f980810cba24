package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/config"
)

var (
	logLevel   string
	logFormat  string
	configPath string

	// cfg is the file configuration with log flags applied. Commands
	// apply their own flag overrides on top.
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "beamlayout",
	Short: "Optical bench layout optimization with simulated annealing",
	Long: `beamlayout places optical components (sources, mirrors, beam splitters,
lenses, detectors) on a bench so beams stay aligned, short and clear of
obstacles, using constrained simulated annealing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}

		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")
	rootCmd.SetErr(os.Stderr)
}
