package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miraassistant/mira/internal/google"
)

func newAuthURLCmd(load configLoader) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print the Google consent URL",
		Long: `Print the Google consent URL the HTTP API redirects users to. Useful for
checking the client ID, redirect URL and scopes of a deployment.

The URL carries no state unless --state is given, so the callback only
accepts it when the oauth_state backend is "none".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			oauth, err := google.NewOAuth(cfg.GoogleOAuth())
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), oauth.AuthURL(state))
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "OAuth state value to embed")
	return cmd
}
