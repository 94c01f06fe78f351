package main

import (
	"context"
	"fmt"
	"time"

	plume "github.com/plumesocial/plume-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration, check if the token is expired, and fetch live account info.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Print config summary.
		fmt.Println("Configuration:")
		if cfg.Default.BaseURL != "" {
			fmt.Printf("  Base URL: %s\n", cfg.Default.BaseURL)
		} else {
			fmt.Printf("  Base URL: %s (default)\n", plume.DefaultBaseURL)
		}

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Username != "" {
			fmt.Printf("  Username: %s\n", cfg.Auth.Username)
			fmt.Printf("  User ID:  %s\n", cfg.Auth.UserID)
		} else {
			fmt.Println("  Username: (not logged in)")
		}

		// Check token expiry.
		tokenStatus := "none"
		if cfg.Auth.Token != "" {
			if cfg.Auth.TokenExpires != "" {
				expires, err := time.Parse(time.RFC3339, cfg.Auth.TokenExpires)
				if err == nil {
					if time.Now().Before(expires) {
						tokenStatus = fmt.Sprintf("valid (expires %s)", expires.Format(time.RFC3339))
					} else {
						tokenStatus = fmt.Sprintf("EXPIRED (expired %s)", expires.Format(time.RFC3339))
					}
				} else {
					tokenStatus = fmt.Sprintf("present (unparseable expiry: %s)", cfg.Auth.TokenExpires)
				}
			} else {
				tokenStatus = "present (no expiry set)"
			}
		}
		fmt.Printf("  Token:    %s\n", tokenStatus)

		if cfg.Auth.Token == "" {
			return nil
		}

		// Live account info.
		fmt.Println()
		fmt.Println("Live status:")

		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := client.Account.Me(ctx)
		if err != nil {
			fmt.Printf("  Error fetching account info: %v\n", err)
			return nil
		}
		if !result.OK {
			if result.Error != nil {
				fmt.Printf("  API error: %s: %s\n", result.Error.Code, result.Error.Message)
			} else {
				fmt.Println("  API returned an error (no details)")
			}
			return nil
		}

		var me plume.MeData
		if err := result.Decode(&me); err != nil {
			fmt.Printf("  Error decoding response: %v\n", err)
			return nil
		}

		fmt.Printf("  Username:     %s\n", me.User.Username)
		fmt.Printf("  Display Name: %s\n", me.User.DisplayName)
		fmt.Printf("  Role:         %s\n", me.User.Role)
		fmt.Printf("  Blogs:        %d\n", me.Stats.BlogCount)
		fmt.Printf("  Comments:     %d\n", me.Stats.CommentCount)
		fmt.Printf("  Followers:    %d\n", me.Stats.FollowerCount)
		fmt.Printf("  Unread:       %d\n", me.Stats.UnreadCount)
		return nil
	},
}
