package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

var historyIncludeDeleted bool

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List your conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		chats, err := apiClient.Chats(context.Background())
		if err != nil {
			return fmt.Errorf("list chats: %w", err)
		}
		if len(chats) == 0 {
			fmt.Println("No conversations found")
			return nil
		}

		fmt.Printf("%-20s %-20s %s\n", "CHAT", "LAST ACTIVITY", "TITLE")
		fmt.Println("----------------------------------------------------------------------")
		for _, c := range chats {
			fmt.Printf("%-20s %-20s %s\n", c.ConversationID, c.Timestamp.Format("2006-01-02 15:04"), c.Title)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <chat-id>",
	Short: "Show a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := apiClient.History(context.Background(), args[0], historyIncludeDeleted)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		if len(msgs) == 0 {
			fmt.Println("No messages found")
			return nil
		}
		for _, m := range msgs {
			role := "you"
			if m.Role == models.RoleAssistant {
				role = "assistant"
			}
			fmt.Printf("[%s] %s\n%s\n\n", m.Timestamp.Format(time.RFC3339), role, m.Content)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Soft-delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Delete(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyIncludeDeleted, "include-deleted", false, "also show soft-deleted messages")
}
