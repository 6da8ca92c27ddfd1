package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenSlot string

var tokenCmd = &cobra.Command{
	Use:   "token <provider>",
	Short: "Print a currently valid provider access token",
	Long: `Fetches an access token for the given provider account. The service
refreshes it first when it is close to expiry, so the printed token is safe
to use immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := apiClient().GetValidAccessToken(cmd.Context(), args[0], tokenSlot)
		if err != nil {
			return err
		}

		fmt.Println(token.AccessToken)

		return nil
	},
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh-session",
	Short: "Rotate the saved session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := apiClient().RefreshSession(cmd.Context())
		if err != nil {
			return err
		}

		if err := saveSessionToken(token); err != nil {
			return fmt.Errorf("refreshed, but saving session token failed: %w", err)
		}

		fmt.Println("Session refreshed.")

		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSlot, "slot", "primary", "account slot to read")
	rootCmd.AddCommand(tokenCmd, sessionRefreshCmd)
}
