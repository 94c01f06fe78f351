package main

import (
	"context"
	"time"

	plume "github.com/plumesocial/plume-go"
	"github.com/spf13/cobra"
)

var chatUnreadOnly bool

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)

	chatListCmd.Flags().BoolVar(&chatUnreadOnly, "unread", false, "only chats with unread messages")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Direct and group chats",
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Chats.List(ctx, chatUnreadOnly)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a chat message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Chats.Send(ctx, args[0], args[1], nil)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history <chat-id>",
	Short: "Show recent messages in a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Chats.History(ctx, args[0], &plume.PaginationOptions{Limit: 50})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}
