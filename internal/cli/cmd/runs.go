package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"taf/internal/cli/client"
	"taf/pkg/api"
)

// NewRunsCommand creates the runs command
func NewRunsCommand(c *client.Client) *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := c.ListRuns(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tENV\tSELECTION\tSTATUS\tTRIGGER\tCREATED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Environment, orDash(r.Selection), r.Status, r.TriggerType, r.CreatedAt, r.Duration)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Only runs in this status")
	cmd.Flags().StringVarP(&opts.Environment, "env", "e", "", "Only runs of this environment")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs")

	return cmd
}

// NewStatusCommand creates the status command
func NewStatusCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			run, err := c.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			printRun(cmd, run)
			return nil
		},
	}
}

func printRun(cmd *cobra.Command, r *api.RunBrief) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%d\n", r.ID)
	fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	fmt.Fprintf(w, "Environment:\t%s\n", r.Environment)
	fmt.Fprintf(w, "Selection:\t%s\n", orDash(r.Selection))
	if r.TargetURL != nil {
		fmt.Fprintf(w, "Target URL:\t%s\n", *r.TargetURL)
	}
	fmt.Fprintf(w, "Trigger:\t%s\n", r.TriggerType)
	if r.ScheduleKey != "" {
		fmt.Fprintf(w, "Schedule:\t%s\n", r.ScheduleKey)
	}
	fmt.Fprintf(w, "Created:\t%s\n", r.CreatedAt)
	if r.ScheduledFor != "" {
		fmt.Fprintf(w, "Scheduled for:\t%s\n", r.ScheduledFor)
	}
	if r.FinishedAt != "" {
		fmt.Fprintf(w, "Finished:\t%s\n", r.FinishedAt)
	}
	fmt.Fprintf(w, "Duration:\t%s\n", r.Duration)
	if r.ExitCode != nil {
		fmt.Fprintf(w, "Exit code:\t%d\n", *r.ExitCode)
	}
	if r.ArtifactRef != nil {
		fmt.Fprintf(w, "Artifact:\t%s\n", *r.ArtifactRef)
	}
	_ = w.Flush()
}

// NewCancelCommand creates the cancel command
func NewCancelCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a scheduled run before it fires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			if err := c.Cancel(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled run %d\n", id)
			return nil
		},
	}
}

// NewRerunCommand creates the rerun command
func NewRerunCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "rerun <run-id>",
		Short: "Start a new run with the parameters of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			newID, err := c.Rerun(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started run %d (rerun of %d)\n", newID, id)
			return nil
		},
	}
}
