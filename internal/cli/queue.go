package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// queueStatus mirrors the /queue/status payload of the service.
type queueStatus struct {
	IsRunning           bool    `json:"is_running"`
	QueueSize           int     `json:"queue_size"`
	CurrentFile         string  `json:"current_file"`
	TotalProcessed      int64   `json:"total_processed"`
	SuccessfulProcessed int64   `json:"successful_processed"`
	FailedProcessed     int64   `json:"failed_processed"`
	TotalTime           float64 `json:"total_time"`
	AverageTime         float64 `json:"average_time"`
}

func newQueueCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the processing queue of a running service",
	}

	cmd.AddCommand(newQueueAddCmd(app))
	cmd.AddCommand(newQueueFileCmd(app))
	cmd.AddCommand(newQueueStatusCmd(app))
	cmd.AddCommand(newQueueClearCmd(app))

	return cmd
}

func newQueueAddCmd(app *appState) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "add <source-dir>",
		Short: "Enqueue every supported audio file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := url.Values{"source_dir": {args[0]}}
			if outputDir != "" {
				form.Set("output_dir", outputDir)
			}

			var resp struct {
				FilesAdded int `json:"files_added"`
				QueueSize  int `json:"queue_size"`
			}
			if err := app.postService(cmd.Context(), "/queue/add", form, &resp); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %d file(s); queue size is now %d\n", resp.FilesAdded, resp.QueueSize)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindServiceURLFlag(cmd, app)
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory transcripts are written to (service default when empty)")

	return cmd
}

func newQueueFileCmd(app *appState) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "file <audio-file>",
		Short: "Enqueue a single audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := url.Values{"file_path": {args[0]}}
			if outputDir != "" {
				form.Set("output_dir", outputDir)
			}

			var resp struct {
				QueueSize int `json:"queue_size"`
			}
			if err := app.postService(cmd.Context(), "/queue/file", form, &resp); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "File enqueued; queue size is now %d\n", resp.QueueSize)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindServiceURLFlag(cmd, app)
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory transcripts are written to (service default when empty)")

	return cmd
}

func newQueueStatusCmd(app *appState) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue processor status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := app.fetchQueueStatus(cmd.Context())
			if err != nil {
				return err
			}
			printQueueStatus(cmd, status)

			if !watch {
				return nil
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for status.QueueSize > 0 || status.CurrentFile != "" {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-ticker.C:
				}

				status, err = app.fetchQueueStatus(cmd.Context())
				if err != nil {
					return err
				}
				printQueueStatus(cmd, status)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Queue drained.")
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindServiceURLFlag(cmd, app)
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the queue is drained")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Poll interval when watching")

	return cmd
}

func newQueueClearCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all pending queue items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Cleared int `json:"cleared"`
			}
			if err := app.postService(cmd.Context(), "/queue/clear", url.Values{}, &resp); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d pending item(s)\n", resp.Cleared)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindServiceURLFlag(cmd, app)

	return cmd
}

func printQueueStatus(cmd *cobra.Command, status queueStatus) {
	running := "stopped"
	if status.IsRunning {
		running = "running"
	}

	current := status.CurrentFile
	if current == "" {
		current = "-"
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"processor=%s queued=%d current=%s processed=%d (ok=%d failed=%d) avg=%.1fs\n",
		running, status.QueueSize, current,
		status.TotalProcessed, status.SuccessfulProcessed, status.FailedProcessed,
		status.AverageTime)
}

func (a *appState) fetchQueueStatus(ctx context.Context) (queueStatus, error) {
	var status queueStatus
	if err := a.getService(ctx, "/queue/status", &status); err != nil {
		return queueStatus{}, err
	}
	return status, nil
}

func (a *appState) getService(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.serviceEndpoint(path), nil)
	if err != nil {
		return err
	}
	return a.doService(req, out)
}

func (a *appState) postService(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.serviceEndpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.doService(req, out)
}

func (a *appState) doService(req *http.Request, out any) error {
	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("reach service at %s: %w", a.serviceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failure); err == nil && failure.Detail != "" {
			return fmt.Errorf("service responded %d: %s", resp.StatusCode, failure.Detail)
		}
		return fmt.Errorf("service responded %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode service response: %w", err)
	}
	return nil
}

func (a *appState) serviceEndpoint(path string) string {
	return strings.TrimRight(a.serviceURL, "/") + path
}
