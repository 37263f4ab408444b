package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/jobs"
)

var (
	jobsCancel bool
	jobsWatch  bool
	jobsConfig bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List, inspect, watch, or cancel generation jobs",
	Long: `List all generation jobs or inspect a specific job by ID.

Examples:
  orchestra jobs                  # List all jobs
  orchestra jobs abc123           # Show details for job abc123
  orchestra jobs abc123 --watch   # Follow a running job until it finishes
  orchestra jobs abc123 --cancel  # Abort a running job
  orchestra jobs abc123 --config  # Print the generated config file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().BoolVar(&jobsCancel, "cancel", false, "cancel the job")
	jobsCmd.Flags().BoolVarP(&jobsWatch, "watch", "w", false, "follow the job until it reaches a terminal state")
	jobsCmd.Flags().BoolVar(&jobsConfig, "config", false, "print the generated config to stdout")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 0 {
		if jobsCancel || jobsWatch || jobsConfig {
			return fmt.Errorf("--cancel, --watch and --config require a job id")
		}
		return listJobs(ctx)
	}

	jobID := args[0]
	if jobsCancel {
		if err := apiClient.CancelJob(ctx, jobID); err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		fmt.Printf("Cancelled %s\n", jobID)
		return nil
	}
	if jobsConfig {
		content, err := apiClient.JobConfig(ctx, jobID)
		if err != nil {
			return fmt.Errorf("fetch config: %w", err)
		}
		fmt.Print(content)
		return nil
	}
	if jobsWatch {
		return watchJob(ctx, jobID)
	}
	return showJob(ctx, jobID)
}

func listJobs(ctx context.Context) error {
	infos, err := apiClient.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-20s %-10s %s\n", "ID", "CHAT", "STATUS", "STARTED")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, info := range infos {
		fmt.Printf("%-38s %-20s %-10s %s\n", info.ID, info.ConversationID, info.Status, info.StartedAt.Format("15:04:05"))
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	info, err := apiClient.Job(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", info.ID)
	fmt.Printf("  Chat: %s\n", info.ConversationID)
	fmt.Printf("  Status: %s\n", info.Status)
	fmt.Printf("  Started: %s\n", info.StartedAt.Format(time.RFC3339))
	if info.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", info.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", info.CompletedAt.Sub(info.StartedAt).Round(time.Second))
	}
	if info.ResultRef != "" {
		fmt.Printf("  Result: %s\n", info.ResultRef)
	}
	if info.Error != "" {
		fmt.Printf("  Error: %s\n", info.Error)
	}
	return nil
}

// watchJob follows a job to completion. With a TTY it runs the animated
// progress UI; otherwise it polls and prints status lines.
func watchJob(ctx context.Context, id string) error {
	info, err := apiClient.Job(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, info)
	}

	for {
		switch info.Status {
		case jobs.StatusSucceeded:
			fmt.Printf("Job %s succeeded: %s\n", info.ID, info.ResultRef)
			return nil
		case jobs.StatusFailed:
			return fmt.Errorf("job %s failed: %s", info.ID, info.Error)
		case jobs.StatusCancelled:
			fmt.Printf("Job %s cancelled\n", info.ID)
			return nil
		}
		fmt.Printf("Job %s: %s\n", info.ID, info.Status)
		time.Sleep(pollInterval)
		info, err = apiClient.Job(ctx, id)
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
	}
}
