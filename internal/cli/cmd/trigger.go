package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"taf/internal/cli/client"
	"taf/pkg/api"
)

// NewTriggerCommand creates the trigger command
func NewTriggerCommand(c *client.Client) *cobra.Command {
	var req api.TriggerRequest
	var targetURL string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run tests now, once at a given time, or on a daily/weekly schedule",
		Example: `  trigger -e staging -s smoke
  trigger -e dev -m once --at "2024-05-01 09:30:00"
  trigger -e dev -s regression -m weekly --day mon --time 02:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.TargetURL = nil
			if targetURL != "" {
				req.TargetURL = &targetURL
			}
			resp, err := c.Trigger(cmd.Context(), req)
			if err != nil {
				return err
			}
			if resp.ScheduleKey != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s\n", resp.ScheduleKey)
				return nil
			}
			if req.Mode == "once" {
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled run %d for %s\n", resp.RunID, req.FireAt)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started run %d\n", resp.RunID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Environment, "env", "e", "", "Environment to run against (required)")
	cmd.Flags().StringVarP(&req.Selection, "select", "s", "", "Robot tag include expression, empty runs all tests")
	cmd.Flags().StringVarP(&req.Mode, "mode", "m", "immediate", "immediate, once, daily or weekly")
	cmd.Flags().StringVar(&targetURL, "url", "", "Override the environment base URL")
	cmd.Flags().StringVar(&req.FireAt, "at", "", "Fire time for --mode once")
	cmd.Flags().StringVar(&req.Time, "time", "", "HH:MM for daily and weekly schedules")
	cmd.Flags().StringVar(&req.DayOfWeek, "day", "", "Day of week for weekly schedules")
	_ = cmd.MarkFlagRequired("env")

	return cmd
}
