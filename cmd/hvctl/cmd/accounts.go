package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected provider accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected provider accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := apiClient().ListAccounts(cmd.Context())
		if err != nil {
			return err
		}

		if len(accounts) == 0 {
			fmt.Println("No connected accounts.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tSLOT\tEMAIL\tTOKEN EXPIRES")
		for _, acc := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				acc.Provider, acc.AccountSlot, acc.Email,
				acc.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}

		return w.Flush()
	},
}

var removeAccountSlot string

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <provider>",
	Short: "Disconnect a provider account and discard its tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().RemoveAccount(cmd.Context(), args[0], removeAccountSlot); err != nil {
			return err
		}

		fmt.Printf("Removed %s/%s\n", args[0], removeAccountSlot)

		return nil
	},
}

func init() {
	accountsRemoveCmd.Flags().StringVar(&removeAccountSlot, "slot", "primary", "account slot to remove")
	accountsCmd.AddCommand(accountsListCmd, accountsRemoveCmd)
	rootCmd.AddCommand(accountsCmd)
}
