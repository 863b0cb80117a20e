package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"igharvest/pkg/auth"
	"igharvest/pkg/ui"
)

// accountsCmd represents the accounts command
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage stored login accounts",
	Long: `Store, list and remove the Instagram logins used by 'login' and 'run'.

Passwords go to the system keychain when one is available, otherwise to
an encrypted file in the igharvest config directory. IGHARVEST_USERNAME
and IGHARVEST_PASSWORD are read as a last resort.`,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <username> [password]",
	Short: "Store a login",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAccountsAdd,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored logins",
	Args:  cobra.NoArgs,
	RunE:  runAccountsList,
}

var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <username>",
	Aliases: []string{"rm"},
	Short:   "Remove a stored login",
	Args:    cobra.ExactArgs(1),
	RunE:    runAccountsRemove,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	username := args[0]
	password := ""
	if len(args) > 1 {
		password = args[1]
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if password == "" {
		password, err = promptPassword(username)
		if err != nil {
			return err
		}
	}

	if err := manager.Store(&auth.Account{Username: username, Password: password}); err != nil {
		return err
	}
	ui.PrintSuccess("Account stored: " + username)
	return nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'igharvest accounts add' to add one")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Username", "Password", "Last Modified"})
	for _, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		modified := "-"
		if !sanitized.LastModified.IsZero() {
			modified = sanitized.LastModified.Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{sanitized.Username, sanitized.Password, modified})
	}
	t.Render()
	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	username := args[0]
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(username); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			ui.PrintWarning("No stored account", username)
			return nil
		}
		return err
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}
