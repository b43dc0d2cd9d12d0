package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffimport/internal/spreadsheet"
)

func newTemplateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the .xlsx upload template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "-" {
				return spreadsheet.WriteTemplate(cmd.OutOrStdout())
			}

			f, err := os.Create(output)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("create %s: %w", output, err))
			}
			if err := spreadsheet.WriteTemplate(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "wrote", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", spreadsheet.TemplateFileName, "Output file, - for stdout")
	return cmd
}
