package cmd

import (
	"github.com/spf13/cobra"

	"github.com/miraassistant/mira/internal/config"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the CLI and the MCP server.
func SetVersion(v string) {
	version = v
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mira",
		Short: "Links phone numbers to Google Calendar accounts",
		Long: `mira links a user's phone number to their Google account and lets the
assistant backend create, move, cancel and read calendar events by phone number.

It can run as:
  - An HTTP API for the OAuth flow, phone linking and calendar webhooks (serve)
  - An MCP (Model Context Protocol) server for AI assistants (mcp)`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "mira version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: ./mira.yaml, then the user config dir)")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newMCPCmd(load))
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newAuthURLCmd(load))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// configLoader defers config loading until a command runs, after flags are
// parsed.
type configLoader func() (*config.Config, error)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}
