package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RichardoC/pad-chat/internal/models"
)

var themeCmd = &cobra.Command{
	Use:       "theme [light|dark|toggle]",
	Short:     "Show or change the UI theme",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"light", "dark", "toggle"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			fmt.Fprintln(out, a.Themes.Get())
			return nil
		}

		if args[0] == "toggle" {
			t, err := a.Themes.Toggle()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, t)
			return nil
		}

		if err := a.Themes.Set(models.Theme(args[0])); err != nil {
			return err
		}
		fmt.Fprintln(out, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(themeCmd)
}
