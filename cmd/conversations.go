package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/RichardoC/pad-chat/internal/chat"
	"github.com/RichardoC/pad-chat/internal/chatstore"
	"github.com/RichardoC/pad-chat/internal/models"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("135"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		conversations := a.Store.Conversations()
		if len(conversations) == 0 {
			fmt.Fprintln(out, "No conversations yet. Start one with: padi ask <message>")
			return nil
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d conversation(s)", len(conversations))))
		currentID := a.Store.CurrentID()
		now := time.Now()
		for _, c := range conversations {
			fmt.Fprintln(out, renderListEntry(c, c.ID == currentID, now))
		}
		return nil
	},
}

func renderListEntry(c models.Conversation, current bool, now time.Time) string {
	marker := " "
	if current {
		marker = currentStyle.Render("*")
	}
	return fmt.Sprintf("%s %s  %s  %d messages\n  %s",
		marker,
		titleStyle.Render(c.Title),
		dateStyle.Render(chat.RelativeDate(c.UpdatedAt, now)),
		len(c.Messages),
		idStyle.Render(c.ID))
}

var showCmd = &cobra.Command{
	Use:   "show [conversation-id]",
	Short: "Print a conversation (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := resolveConversation(a.Store, args)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(conv.Title))
		fmt.Fprintln(out, idStyle.Render(conv.ID))
		for _, msg := range conv.Messages {
			fmt.Fprintln(out)
			fmt.Fprintln(out, speakerLabel(msg.Role))
			fmt.Fprintln(out, strings.TrimRight(msg.Content, "\n"))
		}
		return nil
	},
}

func speakerLabel(r models.Role) string {
	if r == models.RoleAssistant {
		return assistantStyle.Render("Assistant:")
	}
	return userStyle.Render("You:")
}

// resolveConversation picks args[0] or the current conversation.
func resolveConversation(store *chatstore.Store, args []string) (models.Conversation, error) {
	if len(args) > 0 {
		conv, ok := store.Conversation(args[0])
		if !ok {
			return models.Conversation{}, fmt.Errorf("%w: %s", chatstore.ErrNotFound, args[0])
		}
		return conv, nil
	}
	conv, ok := store.Current()
	if !ok {
		return models.Conversation{}, fmt.Errorf("no current conversation")
	}
	return conv, nil
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new conversation and make it current",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(cmd.OutOrStdout(), a.Chat.NewChat())
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <conversation-id>",
	Short: "Make a conversation current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.Store.SelectConversation(args[0]) {
			return fmt.Errorf("%w: %s", chatstore.ErrNotFound, args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Selected %s\n", args[0])
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <conversation-id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Chat.Rename(args[0], strings.Join(args[1:], " ")); err != nil {
			return fmt.Errorf("failed to rename %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store.DeleteConversation(args[0]); err != nil {
			return fmt.Errorf("failed to delete %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, newCmd, selectCmd, renameCmd, deleteCmd)
}
