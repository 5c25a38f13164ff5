package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"taf/internal/cli/client"
)

// NewSchedulesCommand creates the schedules command
func NewSchedulesCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "schedules",
		Short: "List recurring schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := c.Schedules(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tKIND\tDAY\tTIME\tNEXT RUN")
			for _, s := range schedules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Key, s.Kind, orDash(s.DayOfWeek), s.Time, s.NextRun)
			}
			return w.Flush()
		},
	}
}

// NewUnscheduleCommand creates the unschedule command
func NewUnscheduleCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "unschedule <key>",
		Short: "Remove a recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.Unschedule(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}
