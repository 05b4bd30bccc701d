package main

import (
	"encoding/json"
	"fmt"
	"time"

	rentals "github.com/sapliy/rental-ecosystem/sdks/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Send and inspect notifications",
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Create a notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		req := &rentals.CreateNotificationRequest{}
		req.UserID, _ = f.GetString("user")
		req.Type, _ = f.GetString("type")
		req.Title, _ = f.GetString("title")
		req.Message, _ = f.GetString("message")
		req.Priority, _ = f.GetString("priority")
		req.Channels, _ = f.GetStringSlice("channel")
		internal, _ := f.GetBool("internal")

		client := newClient()
		var (
			n   *rentals.Notification
			err error
		)
		if internal {
			if viper.GetString("api_key") == "" {
				return fmt.Errorf("--internal needs a service key, run login --api-key")
			}
			n, err = client.Notifications.CreateInternal(cmd.Context(), req)
		} else {
			n, err = client.Notifications.Create(cmd.Context(), req)
		}
		if err != nil {
			return err
		}
		return printJSON(n)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		unread, _ := cmd.Flags().GetBool("unread")
		items, err := newClient().Notifications.List(cmd.Context(), rentals.ListOptions{Limit: limit, UnreadOnly: unread})
		if err != nil {
			return err
		}
		for _, n := range items {
			fmt.Printf("%s  %-8s %-19s %s\n", n.CreatedAt.Format(time.DateTime), n.Status, n.Type, n.Title)
		}
		return nil
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast [message]",
	Short: "Send a system message to every connected user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event, _ := cmd.Flags().GetString("event")
		delivered, err := newClient().Admin.Broadcast(cmd.Context(), &rentals.BroadcastRequest{Event: event, Message: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("Delivered to %d connections.\n", delivered)
		return nil
	},
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Payment reminder operations",
}

var remindersRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan payments and create due reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		var asOf time.Time
		if v, _ := cmd.Flags().GetString("as-of"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return fmt.Errorf("--as-of must be RFC 3339: %w", err)
			}
			asOf = t
		}
		report, err := newClient().Admin.RunReminders(cmd.Context(), asOf)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	sendCmd.Flags().String("user", "", "recipient user id (defaults to yourself)")
	sendCmd.Flags().String("type", "system", "notification type")
	sendCmd.Flags().String("title", "", "title")
	sendCmd.Flags().String("message", "", "message body")
	sendCmd.Flags().String("priority", "", "low, normal, high or urgent")
	sendCmd.Flags().StringSlice("channel", nil, "restrict to channels (push, email, sms)")
	sendCmd.Flags().Bool("internal", false, "use the service API key endpoint")
	_ = sendCmd.MarkFlagRequired("title")
	_ = sendCmd.MarkFlagRequired("message")

	listCmd.Flags().Int("limit", 20, "maximum notifications to show")
	listCmd.Flags().Bool("unread", false, "only unread notifications")

	broadcastCmd.Flags().String("event", "announcement", "system event name")

	remindersRunCmd.Flags().String("as-of", "", "reference timestamp (RFC 3339), defaults to now")

	notificationsCmd.AddCommand(sendCmd, listCmd)
	remindersCmd.AddCommand(remindersRunCmd)
	rootCmd.AddCommand(notificationsCmd, broadcastCmd, remindersCmd)
}
