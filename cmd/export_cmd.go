package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <snapshot>",
	Short: "Write a zstd-compressed copy of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		om, err := newManager(cmd, nil)
		if err != nil {
			return err
		}
		path, err := om.Export(cmd.Context(), args[0], exportOutput)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().
		StringVarP(&exportOutput, "output", "o", "", "archive path (default: <snapshot>.zst)")
}
