package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/server"
)

var (
	serverURL    string
	followStream bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job; --follow then
prints progress events until the job finishes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVarP(&followStream, "follow", "f", false, "Stream progress until the job finishes")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the server's status response.
type jobStatus struct {
	server.Job
	Elapsed            float64 `json:"elapsed"`
	IterationsPerSec   float64 `json:"iterationsPerSecond"`
	ImprovementPercent float64 `json:"improvementPercent"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := strings.TrimSuffix(serverURL, "/")
	if len(args) == 0 {
		return listJobs(base + "/api/v1/jobs")
	}
	jobID := args[0]
	if err := getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", base, jobID), jobID); err != nil {
		return err
	}
	if followStream {
		return followJob(fmt.Sprintf("%s/api/v1/jobs/%s/stream", base, jobID))
	}
	return nil
}

// getJSON fetches url into v.
func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found: %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func listJobs(url string) error {
	var jobs []server.Job
	if err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", stateStyle(string(job.State)))
		fmt.Printf("  Layout: %s (%d components, %d beams)\n", job.Config.LayoutPath, job.Config.Components, job.Config.Beams)
		if job.BestCost > 0 {
			fmt.Printf("  Cost: %.4f %s %.4f\n", job.InitialCost, iconArrow, job.BestCost)
		}
		fmt.Println()
	}
	return nil
}

func getJobStatus(url, jobID string) error {
	var status jobStatus
	if err := getJSON(url, &status); err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	fmt.Println(styleTitle.Render("Job " + status.ID))
	printField("state", stateStyle(string(status.State)))
	if status.Reason != "" {
		printField("reason", status.Reason)
	}
	fmt.Println()

	fmt.Println("Configuration:")
	printField("layout", status.Config.LayoutPath)
	printField("components", status.Config.Components)
	printField("beams", status.Config.Beams)
	printField("seed", status.Config.Seed)
	if status.Config.Params.MaxIterations > 0 {
		printField("iterations", status.Config.Params.MaxIterations)
	}
	fmt.Println()

	fmt.Println("Progress:")
	printField("iteration", num("%d", status.Iterations))
	printField("cost", fmt.Sprintf("%s %s %s", num("%.4f", status.InitialCost), iconArrow, num("%.4f", status.BestCost)))
	printField("improvement", num("%.1f%%", status.ImprovementPercent))
	printField("temperature", num("%.4f", status.Temperature))
	printField("accept rate", num("%.1f%%", status.AcceptRate*100))
	printField("elapsed", (time.Duration(status.Elapsed * float64(time.Second))).Round(time.Millisecond))
	if status.IterationsPerSec > 0 {
		printField("throughput", num("%.0f it/s", status.IterationsPerSec))
	}

	if status.Error != "" {
		fmt.Println()
		fmt.Println(styleError.Render(iconError + " " + status.Error))
	}
	return nil
}

// followJob prints server-sent progress events until a terminal state.
func followJob(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned %s", resp.Status)
	}

	fmt.Println()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var event server.ProgressEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		fmt.Printf("%s  %-9s iter %-8d best %.4f  T %.4f\n",
			styleDim.Render(event.Timestamp.Format("15:04:05")),
			stateStyle(string(event.State)),
			event.Iterations,
			event.BestCost,
			event.Temperature,
		)
		if event.State.Terminal() {
			return nil
		}
	}
	return scanner.Err()
}
