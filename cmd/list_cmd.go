package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kebairia/budgetease/internal/store"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		om, err := newManager(cmd, nil)
		if err != nil {
			return err
		}
		snaps := om.List()
		if listJSON {
			return writeSnapshotsJSON(cmd.OutOrStdout(), snaps)
		}
		writeSnapshotsTable(cmd.OutOrStdout(), snaps, time.Now())
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output in JSON format")
}

type snapshotJSON struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func writeSnapshotsJSON(w io.Writer, snaps []store.Snapshot) error {
	out := make([]snapshotJSON, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotJSON{Name: s.Name, Path: s.Path, Size: s.Size, CreatedAt: s.CreatedAt})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeSnapshotsTable(w io.Writer, snaps []store.Snapshot, now time.Time) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, color.New(color.FgHiBlack).Sprint("no snapshots"))
		return
	}

	bold := color.New(color.Bold)
	name := color.New(color.FgGreen)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", bold.Sprint("NAME"), bold.Sprint("SIZE"), bold.Sprint("AGE"))
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name.Sprint(s.Name), formatSize(s.Size), formatAge(now.Sub(s.CreatedAt)))
	}
	tw.Flush()
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
}
