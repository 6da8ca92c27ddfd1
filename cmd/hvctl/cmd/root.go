// Package cmd implements the hvctl command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hearthview/auth/client"
)

var (
	cfgFile   string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "hvctl",
	Short: "hvctl is a CLI tool to interact with the Hearthview auth service",
	Long: `A command-line interface for linking devices, inspecting connected
provider accounts, and fetching valid access tokens from the Hearthview
auth service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.hearthview/hvctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"auth service base URL (overrides config)")
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(filepath.Join(home, ".hearthview"))
		viper.SetConfigName("hvctl")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("server", "http://localhost:8080")
	viper.SetEnvPrefix("HVCTL")
	viper.AutomaticEnv()

	// A missing config file is fine; login creates it.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return err
		}
	}

	if serverURL != "" {
		viper.Set("server", serverURL)
	}

	return nil
}

// apiClient builds a client from the active configuration, with the saved
// session token when one exists.
func apiClient() *client.Client {
	return client.New(viper.GetString("server"),
		client.WithSessionToken(viper.GetString("session_token")))
}

// saveSessionToken persists the session token next to the rest of the
// config so later invocations stay logged in.
func saveSessionToken(token string) error {
	viper.Set("session_token", token)

	path := viper.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir := filepath.Join(home, ".hearthview")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
		path = filepath.Join(dir, "hvctl.yaml")
	}

	return viper.WriteConfigAs(path)
}
