package main

import (
	"context"
	"fmt"
	"os"
	"time"

	plume "github.com/plumesocial/plume-go"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and store the session token",
	Long:  "Authenticate against the Plume API and store the returned token in ~/.plume/config.toml.\nThe password is read from the terminal, or from PLUME_PASSWORD if set.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		password := os.Getenv("PLUME_PASSWORD")
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("cannot read password: %w", err)
			}
			password = string(pw)
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		var opts []plume.ClientOption
		if cfg.Default.BaseURL != "" {
			opts = append(opts, plume.WithBaseURL(cfg.Default.BaseURL))
		}
		client := plume.NewClient("", opts...)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Account.Login(ctx, username, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if !result.OK {
			if result.Error != nil {
				return fmt.Errorf("login failed: %s: %s", result.Error.Code, result.Error.Message)
			}
			return fmt.Errorf("login failed")
		}

		var login plume.LoginData
		if err := result.Decode(&login); err != nil {
			return fmt.Errorf("cannot decode login response: %w", err)
		}

		cfg.Auth.Token = login.Token
		cfg.Auth.UserID = login.User.ID
		cfg.Auth.Username = login.User.Username
		if login.ExpiresIn != "" {
			if d, err := time.ParseDuration(login.ExpiresIn); err == nil {
				cfg.Auth.TokenExpires = time.Now().Add(d).Format(time.RFC3339)
			}
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Logged in as %s (%s)\n", login.User.Username, login.User.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}
