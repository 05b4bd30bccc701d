package main

import (
	"fmt"
	"os"

	"github.com/sapliy/rental-ecosystem/internal/notification"
	"github.com/sapliy/rental-ecosystem/pkg/apikey"
	"github.com/spf13/cobra"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage service API keys",
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a service key and the hash to configure on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = os.Getenv("NOTIFY_API_KEY_SECRET")
		}
		if secret == "" {
			return fmt.Errorf("--secret or NOTIFY_API_KEY_SECRET is required")
		}

		key, hash, err := apikey.GenerateKey(apikey.ServicePrefix, secret)
		if err != nil {
			return err
		}
		fmt.Printf("Key:  %s\n", key)
		fmt.Printf("Hash: %s\n", hash)
		fmt.Println("Add the hash to NOTIFY_SERVICE_KEY_HASHES. The key is not shown again.")
		return nil
	},
}

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Email channel tools",
}

var emailTestCmd = &cobra.Command{
	Use:   "test [address]",
	Short: "Send a test email through Resend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey := os.Getenv("RESEND_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("NOTIFY_RESEND_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("RESEND_API_KEY is not set")
		}
		from, _ := cmd.Flags().GetString("from")

		sender := notification.NewEmailSender(notification.NewResendAPI(apiKey), nil, notification.EmailConfig{From: from})
		n := &notification.Notification{
			ID:       "test",
			Type:     notification.TypeSystem,
			Title:    "Test email",
			Message:  "This is a test email to verify the Resend integration.",
			Priority: notification.PriorityNormal,
		}
		html, err := notification.RenderEmail(notification.BuildEmailData(n, "", "", ""))
		if err != nil {
			return err
		}
		if err := sender.Send(cmd.Context(), args[0], notification.EmailSubject(n), html); err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		fmt.Println("Email sent successfully!")
		return nil
	},
}

func init() {
	apikeyGenerateCmd.Flags().String("secret", "", "HMAC secret shared with the server")
	emailTestCmd.Flags().String("from", "", "sender address (defaults to the Resend sandbox)")

	apikeyCmd.AddCommand(apikeyGenerateCmd)
	emailCmd.AddCommand(emailTestCmd)
	rootCmd.AddCommand(apikeyCmd, emailCmd)
}
