package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RichardoC/pad-chat/internal/export"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export [conversation-id]",
	Short: "Export a conversation to a file",
	Long: `Export a conversation (default: the current one) as json, jsonl, yaml or md.

The file is named chat-<id>.<ext> in the working directory unless --output
is given. Use --output - to write to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := resolveConversation(a.Store, args)
		if err != nil {
			return err
		}

		if exportOutput == "-" {
			return exporter.Export(conv, cmd.OutOrStdout())
		}

		path := exportOutput
		if path == "" {
			path = export.Filename(conv, exporter)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := exporter.Export(conv, f); err != nil {
			f.Close()
			return fmt.Errorf("failed to export conversation: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", conv.ID, path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "Export format (json, jsonl, yaml, md)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output path, or - for stdout")
	rootCmd.AddCommand(exportCmd)
}
