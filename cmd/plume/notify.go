package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	plume "github.com/plumesocial/plume-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(notifyCmd)
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Watch the personal notification stream",
	Long:  "Join the account's notification room and print notifications as they arrive.\nPress Ctrl-C to stop.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Auth.UserID == "" {
			return fmt.Errorf("not logged in; run 'plume login <username>' first")
		}

		client := getClient()
		rt := client.Realtime(nil)
		defer rt.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = rt.Connect(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}

		room := plume.RoomKey{Kind: plume.RoomNotifications, ID: cfg.Auth.UserID}
		sub := rt.Join(room)
		defer sub.Release()

		queue := rt.Notifications()
		rt.Subscribe(room, plume.EventNotification, func(ev plume.Event) {
			for _, n := range queue.List() {
				if n.Read {
					continue
				}
				fmt.Printf("%s  [%s] %s: %s\n",
					n.CreatedAt.Format("15:04:05"), n.Type, n.Title, n.Message)
				queue.MarkRead(n.ID)
			}
		})

		fmt.Fprintln(os.Stderr, "-- watching notifications, Ctrl-C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}
