package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/xrlt/internal/cli"
	"github.com/aretw0/xrlt/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate [sheet.xrl ...]",
	Short: "Check requestsheets for authoring errors",
	Long:  `Parses each sheet (all sheets under the root by default) and reports directives that can never evaluate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		sheets := args
		if len(sheets) == 0 {
			if sheets, err = rt.Engine.Sheets(); err != nil {
				return err
			}
		}

		var failed []error
		for _, name := range sheets {
			if err := validateSheet(rt, name); err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", name, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
		}
		if len(failed) > 0 {
			return fmt.Errorf("validation failed:\n%w", errors.Join(failed...))
		}
		return nil
	},
}

func validateSheet(rt *cli.Runtime, name string) error {
	doc, err := rt.Engine.LoadSheet(name)
	if err != nil {
		return err
	}
	return validator.ValidateSheet(doc)
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
