package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kebairia/budgetease/internal/retention"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete snapshots older than the retention window",
	Long: `cleanup runs one retention pass. The window defaults to
backup.retention_days; --days overrides it. Zero or a negative value
deletes every snapshot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		om, err := newManager(cmd, nil)
		if err != nil {
			return err
		}
		days := cfg.Backup.RetentionDays
		if cmd.Flags().Changed("days") {
			days = cleanupDays
		}
		report, err := om.Cleanup(cmd.Context(), days)
		if err != nil {
			return err
		}
		writeReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention window in days (default: backup.retention_days)")
}

func writeReport(w io.Writer, r retention.Report) {
	fmt.Fprintf(w, "cutoff %s\n", r.Cutoff.Format("2006-01-02 15:04:05 MST"))
	for _, p := range r.Deleted {
		fmt.Fprintln(w, color.GreenString("deleted"), p)
	}
	for _, p := range r.Failed {
		fmt.Fprintln(w, color.RedString("failed "), p)
	}
	for _, p := range r.Stale {
		fmt.Fprintln(w, color.YellowString("stale  "), p)
	}
	fmt.Fprintf(w, "%d deleted, %d failed\n", len(r.Deleted), len(r.Failed))
}
