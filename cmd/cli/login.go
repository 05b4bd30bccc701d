package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for the notifications service",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		apiKey, _ := cmd.Flags().GetString("api-key")
		if token == "" {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Access token: ")
			scanner.Scan()
			token = strings.TrimSpace(scanner.Text())
		}
		if token == "" {
			return fmt.Errorf("a token is required")
		}

		viper.Set("token", token)
		if apiKey != "" {
			viper.Set("api_key", apiKey)
		}

		// Verify before saving.
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		count, err := newClient().Notifications.UnreadCount(ctx)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if err := viper.WriteConfig(); err != nil {
			fmt.Printf("Warning: failed to write config: %v\n", err)
		}

		fmt.Println("Successfully logged in!")
		fmt.Printf("You have %d unread notifications.\n", count)
		return nil
	},
}

// credentialKeys are cleared on logout. base_url is kept with --keep-url.
var credentialKeys = []string{"token", "api_key", "base_url"}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials from the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		keepURL, _ := cmd.Flags().GetBool("keep-url")
		var cleared []string
		for _, key := range credentialKeys {
			if key == "base_url" && keepURL {
				continue
			}
			if viper.GetString(key) != "" {
				cleared = append(cleared, key)
			}
			viper.Set(key, "")
		}
		if err := viper.WriteConfig(); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		if len(cleared) == 0 {
			fmt.Println("Not logged in.")
			return nil
		}
		fmt.Printf("Logged out, cleared %s.\n", strings.Join(cleared, ", "))
		return nil
	},
}

func init() {
	loginCmd.Flags().String("token", "", "access token issued by the auth service")
	loginCmd.Flags().String("api-key", "", "service API key for internal endpoints")
	logoutCmd.Flags().Bool("keep-url", false, "keep the stored service URL")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
