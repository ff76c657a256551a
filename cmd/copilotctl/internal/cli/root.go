// Package cli 实现 copilotctl 的命令
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"neurocopilot/cmd/copilotctl/internal/client"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
)

// RootCmd 顶层命令
var RootCmd = &cobra.Command{
	Use:   "copilotctl",
	Short: "Admin CLI for the conversation service",
	Long:  "Manage the upstream account pool and per-subject memory of a running conversation-service.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Service base URL (default: $COPILOT_SERVER or http://localhost:8080)")
	RootCmd.PersistentFlags().StringVar(&token, "token", "", "Admin bearer token (default: $ADMIN_TOKEN)")
}

func newClient() *client.Client {
	base := serverURL
	if base == "" {
		base = os.Getenv("COPILOT_SERVER")
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	t := token
	if t == "" {
		t = os.Getenv("ADMIN_TOKEN")
	}
	return client.New(base, t, nil)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
