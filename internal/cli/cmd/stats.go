package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"taf/internal/cli/client"
)

// NewStatsCommand creates the stats command
func NewStatsCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show run totals by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			statuses := make([]string, 0, len(stats.ByStatus))
			for s := range stats.ByStatus {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "total\t%d\n", stats.Total)
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%d\n", s, stats.ByStatus[s])
			}
			return w.Flush()
		},
	}
}

// NewEnvsCommand creates the envs command
func NewEnvsCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List configured environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envs, err := c.Environments(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBASE URL\tTIMEOUT")
			for _, e := range envs {
				fmt.Fprintf(w, "%s\t%s\t%ds\n", e.Name, orDash(e.BaseURL), e.Timeout)
			}
			return w.Flush()
		},
	}
}

// NewTestsCommand creates the tests command
func NewTestsCommand(c *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tests",
		Short: "List test files by tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := c.Tests(cmd.Context())
			if err != nil {
				return err
			}
			tags := make([]string, 0, len(catalog.Tags))
			for t := range catalog.Tags {
				tags = append(tags, t)
			}
			sort.Strings(tags)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d test files, %d resource files\n", len(catalog.RobotFiles), len(catalog.ResourceFiles))
			for _, t := range tags {
				fmt.Fprintf(out, "  %s: %s\n", t, strings.Join(catalog.Tags[t], ", "))
			}
			return nil
		},
	}
}
