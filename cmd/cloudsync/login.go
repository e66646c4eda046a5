package main

import (
	"fmt"

	"github.com/openmined/cloudsync/internal/client"
	"github.com/openmined/cloudsync/internal/provider/restapi"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newProvidersCmd())
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [provider]",
		Short: "Sign in to a provider",
		Long: "Sign in to a provider. Defaults to the first enabled provider.\n" +
			"Providers using OAuth print an authorize URL; finish with `cloudsync login callback <url>`.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			browser := restapi.WithBrowser(func(authorizeURL string) error {
				fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", cyan(authorizeURL))
				fmt.Fprintf(out, "Then run %s with the URL you were redirected to.\n", cyan("cloudsync login callback '<url>'"))
				return nil
			})

			c, err := newClient(cmd, client.WithRestAPIOptions(browser))
			if err != nil {
				return err
			}
			defer c.Close()

			name := c.Config().Providers[0]
			if len(args) == 1 {
				name = args[0]
			}
			if err := c.Login(cmd.Context(), name); err != nil {
				return err
			}

			if _, err := c.ActiveSession(cmd.Context()); err == nil {
				fmt.Fprintf(out, "%s %s\n", green("signed in"), name)
			}
			return nil
		},
	}
	cmd.AddCommand(newLoginCallbackCmd())
	return cmd
}

func newLoginCallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback <redirect-url>",
		Short: "Complete a login from the URL the provider redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			p, err := c.LoginCallback(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("signed in"), p.Name())
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop stored provider credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green("signed out"))
			return nil
		},
	}
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List enabled providers and the active one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.ProviderStatus(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range status {
				state := gray("signed out")
				if s.Active {
					state = green("active")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", s.Name, state)
			}
			return nil
		},
	}
}
