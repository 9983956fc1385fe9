package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/xrlt/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <sheet.xrl>",
	Short: "Export the slice and include graph of a sheet",
	Long:  `Outputs a Mermaid diagram (graph TD) of the slices a sheet applies and the resources it includes.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		doc, err := rt.Engine.LoadSheet(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(args[0], doc))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
