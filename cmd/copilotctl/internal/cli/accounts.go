package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"neurocopilot/cmd/copilotctl/internal/client"

	"github.com/spf13/cobra"
)

func init() {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Upstream account pool management",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Replace the account pool from a JSON or YAML file",
		Run:   runAccountsInit,
	}
	initCmd.Flags().String("file", "", "Accounts file (default: ~/.config/opencode/antigravity-accounts.json)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show account availability",
		Run:   runAccountsList,
	}

	markCmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark an account as rate limited",
		Run:   runAccountsMark,
	}
	markCmd.Flags().String("identity", "", "Account identity (required)")
	markCmd.Flags().Duration("for", 0, "Cooldown, e.g. 5m (default: server cooldown)")
	markCmd.MarkFlagRequired("identity")

	accountsCmd.AddCommand(initCmd, listCmd, markCmd)
	RootCmd.AddCommand(accountsCmd)
}

func defaultAccountsFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "opencode", "antigravity-accounts.json")
}

func runAccountsInit(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = defaultAccountsFile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		exitErr("read accounts file", err)
	}
	accounts, err := client.ParseAccounts(data)
	if err != nil {
		exitErr("parse accounts", err)
	}

	n, err := newClient().InitAccounts(cmd.Context(), accounts)
	if err != nil {
		exitErr("init accounts", err)
	}

	fmt.Printf("uploaded %d accounts\n", n)
	for _, a := range accounts {
		fmt.Println("  " + a.Email)
	}
}

func runAccountsList(cmd *cobra.Command, args []string) {
	accounts, err := newClient().ListAccounts(cmd.Context())
	if err != nil {
		exitErr("list accounts", err)
	}
	printJSON(accounts)
}

func runAccountsMark(cmd *cobra.Command, args []string) {
	identity, _ := cmd.Flags().GetString("identity")
	d, _ := cmd.Flags().GetDuration("for")
	if d < 0 {
		exitErr("mark account", fmt.Errorf("--for must not be negative"))
	}

	if err := newClient().MarkAccount(cmd.Context(), identity, d); err != nil {
		exitErr("mark account", err)
	}
	fmt.Printf(`{"ok":true,"identity":%q}`+"\n", identity)
}
