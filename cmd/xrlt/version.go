package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/xrlt"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of xrlt",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "xrlt version %s\n", strings.TrimSpace(xrlt.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
