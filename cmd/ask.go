package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RichardoC/pad-chat/internal/chat"
)

var askNew bool

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a message and stream the reply",
	Long: `Send a message in the current conversation (or a new one with --new) and
print the reply as it streams in. A conversation is created when none is
current.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if askNew {
			a.Chat.NewChat()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		printed := 0
		reply, err := a.Chat.Submit(ctx, strings.Join(args, " "), func(live string) {
			fmt.Fprint(out, live[printed:])
			printed = len(live)
		})
		if errors.Is(err, chat.ErrEmptyMessage) || errors.Is(err, chat.ErrSubmissionInProgress) {
			return err
		}
		if printed == 0 {
			fmt.Fprint(out, reply.Content)
		}
		fmt.Fprintln(out)

		if err != nil {
			return fmt.Errorf("failed to get response: %w", err)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askNew, "new", false, "Start a new conversation first")
	rootCmd.AddCommand(askCmd)
}
