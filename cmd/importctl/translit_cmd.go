package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffimport/internal/translit"
)

func newTranslitCmd() *cobra.Command {
	var reverse bool

	cmd := &cobra.Command{
		Use:   "translit TEXT...",
		Short: "Transliterate names between Cyrillic and Latin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := translit.RuEnTranslator()
			if reverse {
				t = translit.EnRuTranslator()
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Transliterate(strings.Join(args, " ")))
			return err
		},
	}

	cmd.Flags().BoolVarP(&reverse, "reverse", "r", false, "Latin to Cyrillic")
	return cmd
}
