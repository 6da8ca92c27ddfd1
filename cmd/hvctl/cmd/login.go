package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthview/auth/client"
)

var loginDeviceType string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Link this machine via the device authorization flow",
	Long: `Starts a device authorization flow: prints a short code and a URL,
then waits until the code is approved from a logged-in device. On success
the session token is saved for later hvctl invocations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		flow := client.NewDeviceFlow(c, loginDeviceType)

		start, err := flow.Begin(cmd.Context())
		if err != nil {
			return fmt.Errorf("starting device flow: %w", err)
		}

		fmt.Printf("Open %s\n", start.VerificationURL)
		fmt.Printf("and enter the code: %s\n\n", start.UserCode)
		fmt.Println("Waiting for approval...")

		result, err := flow.Wait(cmd.Context())
		if err != nil {
			return fmt.Errorf("device flow did not complete: %w", err)
		}

		if err := saveSessionToken(result.SessionToken); err != nil {
			return fmt.Errorf("authorized, but saving session token failed: %w", err)
		}

		fmt.Printf("Logged in as %s\n", result.User.Email)

		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginDeviceType, "device-type", "cli",
		"device type reported to the auth service")
	rootCmd.AddCommand(loginCmd)
}
