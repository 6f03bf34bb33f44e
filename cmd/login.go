package cmd

import (
	"github.com/spf13/cobra"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/cli"
)

type loginOptions struct {
	scopes []string
	quiet  bool
	app    appOptions
}

func newLoginCmd(global *globalOptions) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to your Red Hat account",
		Long: `Sign in to your Red Hat account using the system browser.

The default scopes (openid, id.username, email) are always requested.
Use --scope to ask for more.

Examples:
  redhat-sso login
  redhat-sso login --scope api.iam.registry_service_accounts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, global, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.scopes, "scope", nil, "Additional scope to request (repeatable)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress non-essential output")
	return cmd
}

func runLogin(cmd *cobra.Command, global *globalOptions, opts *loginOptions) error {
	ctx := cmd.Context()

	appOpts := opts.app
	if appOpts.out == nil && !opts.quiet {
		appOpts.out = cmd.ErrOrStderr()
	}
	a, err := newApp(ctx, global, appOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	progress := cli.StartProgress(cmd.ErrOrStderr(), "Waiting for authentication to complete...", opts.quiet)
	session, err := a.provider.CreateSession(ctx, opts.scopes)
	if err != nil {
		progress.Fail("Login failed")
		return &cli.AuthFailedError{Reason: err}
	}
	progress.Succeed("Logged in")

	printf(cmd, "Signed in as %s (session %s)\n", session.Account.Label, cli.ShortID(session.ID))
	return nil
}
