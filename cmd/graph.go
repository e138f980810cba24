package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/render"
	"github.com/cwbudde/beamlayout/internal/store"
)

var (
	graphFormat string
	graphOut    string
)

var graphCmd = &cobra.Command{
	Use:   "graph <layout>",
	Short: "Export the beam graph as DOT or SVG",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringVar(&graphFormat, "format", "", "Output format: dot or svg (default from --out extension, else dot)")
	graphCmd.Flags().StringVarP(&graphOut, "out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	state, err := layout.Load(args[0])
	if err != nil {
		return err
	}

	format := strings.ToLower(graphFormat)
	if format == "" {
		format = "dot"
		if strings.HasSuffix(strings.ToLower(graphOut), ".svg") {
			format = "svg"
		}
	}

	dot := render.ToDOT(state)
	var data []byte
	switch format {
	case "dot":
		data = []byte(dot)
	case "svg":
		data, err = render.RenderSVG(cmd.Context(), dot)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown graph format %q (expected dot or svg)", graphFormat)
	}

	if graphOut == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := store.WriteFileAtomic(graphOut, data); err != nil {
		return err
	}
	printSuccess("Wrote %s", graphOut)
	return nil
}
