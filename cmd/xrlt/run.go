package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/xrlt/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <sheet.xrl> [name=value ...]",
	Short: "Transform a requestsheet once and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		return cli.Run(cmd.Context(), rt, args[0], args[1:], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
