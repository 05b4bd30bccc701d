package main

import (
	"fmt"
	"os"
	"path/filepath"

	rentals "github.com/sapliy/rental-ecosystem/sdks/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rentalctl",
	Short: "Rental platform notifications CLI",
	Long:  `A CLI tool to send notifications, run payment reminders and manage service keys.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rentalctl.yaml)")
	rootCmd.PersistentFlags().String("url", "", "notifications service base URL")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".rentalctl")

		// Create config file if it doesn't exist
		configPath := filepath.Join(home, ".rentalctl.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			f, err := os.OpenFile(configPath, os.O_CREATE|os.O_WRONLY, 0o600)
			if err != nil {
				fmt.Printf("Warning: failed to create config file: %v\n", err)
			} else {
				f.Close()
			}
		}
	}

	_ = viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("url"))
	viper.SetEnvPrefix("RENTALCTL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// newClient builds an SDK client from the stored token, service key and base URL.
func newClient() *rentals.Client {
	baseURL := viper.GetString("base_url")
	if baseURL == "" {
		baseURL = rentals.DefaultBaseURL
	}
	return rentals.NewClient(viper.GetString("token"),
		rentals.WithBaseURL(baseURL),
		rentals.WithAPIKey(viper.GetString("api_key")),
	)
}

func main() {
	Execute()
}
