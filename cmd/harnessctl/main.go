// harnessctl is a small CLI client for the harness-service API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"loadharness/internal/harness"
	"loadharness/internal/workload"
)

type clientOptions struct {
	addr   string
	apiKey string
}

func main() {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:           "harnessctl",
		Short:         "Client for the load harness API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", envDefault("HARNESS_ADDR", "http://localhost:8080"), "harness-service base URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("HARNESS_API_KEY"), "API key (X-API-Key header)")

	root.AddCommand(
		newCPUCommand(opts),
		newMemoryCommand(opts),
		newStatusCommand(opts),
		newStopCommand(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCPUCommand(opts *clientOptions) *cobra.Command {
	var (
		cores     int
		duration  float64
		intensity int
	)

	cmd := &cobra.Command{
		Use:   "cpu",
		Short: "Start a CPU load job",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := harness.CPURequest{Cores: &cores, DurationSeconds: &duration, Intensity: &intensity}
			var resp harness.StartResponse
			if err := opts.post("/load/cpu", req, &resp); err != nil {
				return err
			}
			fmt.Printf("started %s: %d core(s), %gs, intensity %d\n", resp.JobID, resp.Cores, resp.DurationSeconds, resp.Intensity)
			return nil
		},
	}
	cmd.Flags().IntVar(&cores, "cores", workload.CPUDefaultCores, "worker processes to spawn")
	cmd.Flags().Float64Var(&duration, "duration", workload.CPUDefaultDurationSeconds, "job duration in seconds")
	cmd.Flags().IntVar(&intensity, "intensity", workload.CPUDefaultIntensity, "load intensity 1-10")
	return cmd
}

func newMemoryCommand(opts *clientOptions) *cobra.Command {
	var (
		sizeMB   int
		duration float64
	)

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Start a memory load job",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := harness.MemoryRequest{SizeMB: &sizeMB, DurationSeconds: &duration}
			var resp harness.StartResponse
			if err := opts.post("/load/memory", req, &resp); err != nil {
				return err
			}
			fmt.Printf("started %s: %dMB for %gs\n", resp.JobID, resp.SizeMB, resp.DurationSeconds)
			return nil
		},
	}
	cmd.Flags().IntVar(&sizeMB, "size-mb", workload.MemoryDefaultSizeMB, "allocation size in MB")
	cmd.Flags().Float64Var(&duration, "duration", workload.MemoryDefaultDurationSeconds, "hold duration in seconds")
	return cmd
}

func newStatusCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "status {cpu|memory}",
		Short:     "List jobs of one type",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"cpu", "memory"},
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}

			var resp harness.StatusResponse
			if err := opts.get(fmt.Sprintf("/load/%s/status", typ), &resp); err != nil {
				return err
			}

			fmt.Printf("%d active / %d total\n", resp.ActiveJobs, resp.TotalJobs)
			for _, job := range resp.Jobs {
				line := fmt.Sprintf("  %s  %-9s  started %s", job.JobID, job.Status, job.StartedAt.Format(time.RFC3339))
				if job.CoresActive != nil && job.CoresRequested != nil {
					line += fmt.Sprintf("  cores %d/%d", *job.CoresActive, *job.CoresRequested)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newStopCommand(opts *clientOptions) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:       "stop {cpu|memory}",
		Short:     "Stop one job (--job) or all jobs of a type",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"cpu", "memory"},
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}

			var resp harness.StopResponse
			if err := opts.post(fmt.Sprintf("/load/%s/stop", typ), harness.StopRequest{JobID: jobID}, &resp); err != nil {
				return err
			}

			fmt.Printf("stopped %d job(s)\n", resp.Count)
			for _, id := range resp.StoppedJobs {
				fmt.Println("  " + id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id to stop (default: all of the type)")
	return cmd
}

func parseType(arg string) (workload.Type, error) {
	typ := workload.Type(arg)
	if !typ.Valid() {
		return "", fmt.Errorf("type must be cpu or memory, got %q", arg)
	}
	return typ, nil
}

func (o *clientOptions) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, o.addr+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return o.do(req, out)
}

func (o *clientOptions) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, o.addr+path, nil)
	if err != nil {
		return err
	}
	return o.do(req, out)
}

func (o *clientOptions) do(req *http.Request, out any) error {
	if o.apiKey != "" {
		req.Header.Set("X-API-Key", o.apiKey)
	}

	client := &http.Client{Timeout: 3 * time.Minute} // sync endpoints can block
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
