package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the newest snapshot if the live data store is missing",
	Long: `restore copies the most recent snapshot to the live data store path.
An existing live data store is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		om, err := newManager(cmd, nil)
		if err != nil {
			return err
		}
		restored, err := om.Restore(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if restored {
			fmt.Fprintln(out, "restored", om.Service().Database().GetPath())
		} else {
			fmt.Fprintln(out, "nothing restored")
		}
		return nil
	},
}
