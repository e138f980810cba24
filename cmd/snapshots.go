package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/opt"
	"github.com/cwbudde/beamlayout/internal/store"
)

var (
	snapshotDataDir string
	snapshotLayout  string
	snapshotOut     string
	snapshotPreview string
	snapshotScale   float64
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect snapshot traces",
	Long: `Reads the JSONL snapshot trace written by "run --trace" or "serve --trace".
Snapshots are recorded every 10 iterations.`,
}

var listSnapshotsCmd = &cobra.Command{
	Use:   "list <job-id>",
	Short: "List the snapshots of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runListSnapshots,
}

var showSnapshotCmd = &cobra.Command{
	Use:   "show <job-id> <index|best>",
	Short: "Show one snapshot",
	Long: `Prints one snapshot as JSON. With --layout the snapshot's poses are
applied to that layout, which can then be written with --out or rendered
with --preview.`,
	Args: cobra.ExactArgs(2),
	RunE: runShowSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(listSnapshotsCmd)
	snapshotsCmd.AddCommand(showSnapshotCmd)

	snapshotsCmd.PersistentFlags().StringVar(&snapshotDataDir, "data-dir", "./data", "Base directory for traces")

	showSnapshotCmd.Flags().StringVar(&snapshotLayout, "layout", "", "Layout file to apply the snapshot to")
	showSnapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "Write the layout with the snapshot applied")
	showSnapshotCmd.Flags().StringVar(&snapshotPreview, "preview", "", "Render the layout with the snapshot applied as PNG")
	showSnapshotCmd.Flags().Float64Var(&snapshotScale, "preview-scale", 1, "Preview pixels per layout unit")
}

func readTrace(jobID string) ([]opt.Snapshot, error) {
	tr, err := store.NewTraceReader(snapshotDataDir, jobID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return nil, err
	}
	snaps := make([]opt.Snapshot, len(entries))
	for i, e := range entries {
		snaps[i] = e.Snapshot()
	}
	return snaps, nil
}

func runListSnapshots(cmd *cobra.Command, args []string) error {
	snaps, err := readTrace(args[0])
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshots found.")
		return nil
	}

	best := selectBest(snaps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tITERATION\tCOST\tHARD\tPOSES")
	for i, snap := range snaps {
		marker := ""
		if i == best {
			marker = " *"
		}
		fmt.Fprintf(w, "%d%s\t%d\t%.6f\t%.0f\t%d\n",
			i, marker, snap.Iteration, snap.Cost, snap.Breakdown.HardViolations, len(snap.Positions))
	}
	w.Flush()

	fmt.Printf("\nTotal snapshots: %d (best: %d)\n", len(snaps), best)
	return nil
}

func runShowSnapshot(cmd *cobra.Command, args []string) error {
	snaps, err := readTrace(args[0])
	if err != nil {
		return err
	}
	index, err := snapshotIndex(args[1], snaps)
	if err != nil {
		return err
	}
	snap := snaps[index]

	if snapshotLayout == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	state, err := layout.Load(snapshotLayout)
	if err != nil {
		return err
	}
	if len(snap.Positions) == 0 {
		printWarning("snapshot %d has no poses, the layout is unchanged", index)
	}
	opt.ApplySnapshot(snap, state.Components)

	if snapshotOut != "" {
		if err := layout.Save(snapshotOut, state); err != nil {
			return err
		}
		printSuccess("Wrote %s", snapshotOut)
	}
	if snapshotPreview != "" {
		if err := writePreview(snapshotPreview, state, snapshotScale); err != nil {
			return err
		}
		printSuccess("Wrote %s", snapshotPreview)
	}
	if snapshotOut == "" && snapshotPreview == "" {
		data, err := layout.Encode(layout.DocumentFrom(state), layout.FormatFor(snapshotLayout))
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	}
	return nil
}

// snapshotIndex parses "best" or a zero-based index.
func snapshotIndex(arg string, snaps []opt.Snapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, fmt.Errorf("trace has no snapshots")
	}
	if arg == "best" {
		return selectBest(snaps), nil
	}
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid snapshot index %q", arg)
	}
	if i < 0 || i >= len(snaps) {
		return 0, fmt.Errorf("snapshot index %d out of range [0, %d)", i, len(snaps))
	}
	return i, nil
}

// selectBest returns the index of the lowest-cost snapshot; ties go to the
// earliest.
func selectBest(snaps []opt.Snapshot) int {
	best := 0
	for i, s := range snaps {
		if s.Cost < snaps[best].Cost {
			best = i
		}
	}
	return best
}
