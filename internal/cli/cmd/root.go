package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"taf/internal/cli/client"
)

// RegisterCommands adds all available commands to the root command
func RegisterCommands(rootCmd *cobra.Command, c *client.Client) {
	rootCmd.AddCommand(NewTriggerCommand(c))
	rootCmd.AddCommand(NewRunsCommand(c))
	rootCmd.AddCommand(NewStatusCommand(c))
	rootCmd.AddCommand(NewCancelCommand(c))
	rootCmd.AddCommand(NewRerunCommand(c))
	rootCmd.AddCommand(NewSchedulesCommand(c))
	rootCmd.AddCommand(NewUnscheduleCommand(c))
	rootCmd.AddCommand(NewStatsCommand(c))
	rootCmd.AddCommand(NewEnvsCommand(c))
	rootCmd.AddCommand(NewTestsCommand(c))
}

func parseRunID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
