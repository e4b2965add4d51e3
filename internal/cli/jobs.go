package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mnemo-go/internal/dashboard"
	"github.com/raphaelgruber/mnemo-go/internal/jobs"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/tui"
)

var (
	jobsHistory bool
	jobsLimit   int
	runFollow   bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List ingestion jobs",
	Long: `List ingestion jobs, most recently updated first.

Examples:
  mnemo jobs               # Active and recent jobs
  mnemo jobs --history     # Finished jobs, newest first
  mnemo jobs create        # Start a filesystem scan
  mnemo jobs run abc123 -f # Re-run a job and follow its progress`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create [job-type]",
	Short: "Create a new ingestion job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobType := models.DefaultJobType
		if len(args) == 1 {
			jobType = args[0]
		}
		if err := backendClient.CreateJob(cmd.Context(), jobType); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s job\n", jobType)
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Start an existing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := backendClient.RunJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		if runFollow {
			return tui.RunJobProgress(backendClient, args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started job %s\n", args[0])
		return nil
	},
}

var jobsAbortCmd = &cobra.Command{
	Use:   "abort <job-id>",
	Short: "Abort a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := backendClient.AbortJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Aborted job %s\n", args[0])
		return nil
	},
}

func init() {
	jobsCmd.Flags().BoolVar(&jobsHistory, "history", false, "show finished jobs only")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "max jobs to show")
	jobsRunCmd.Flags().BoolVarP(&runFollow, "follow", "f", false, "follow progress until the job finishes")

	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	jobsCmd.AddCommand(jobsAbortCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store := jobs.NewStore(logger)
	if err := store.LoadSnapshot(ctx, backendClient); err != nil {
		return err
	}

	// No stream here, so there are no step maps to derive from.
	var list []models.Job
	if jobsHistory {
		list = store.History(jobsLimit, nil)
	} else {
		list = store.Recent(jobsLimit, nil)
	}
	printJobs(cmd.OutOrStdout(), list)
	return nil
}

func printJobs(w io.Writer, list []models.Job) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return
	}

	fmt.Fprintf(w, "%-38s %-16s %-10s %-9s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "UPDATED")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------------------")
	for _, job := range list {
		updated := job.UpdatedAt
		if t := models.ParseTimestamp(updated); !t.IsZero() {
			updated = t.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%-38s %-16s %-10s %-9s %s\n",
			job.ID, job.JobType, dashboard.StatusLabel(job), fmt.Sprintf("%d%%", job.Progress), updated)
	}
}
