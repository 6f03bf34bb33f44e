package cmd

import (
	"github.com/spf13/cobra"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/cli"
)

type sessionsOptions struct {
	scopes     []string
	output     string
	noHeaders  bool
	showTokens bool
}

func newSessionsCmd(global *globalOptions) *cobra.Command {
	opts := &sessionsOptions{}

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"list", "ls"},
		Short:   "List the stored sessions",
		Long: `List the stored sessions. Access tokens are refreshed first when needed.

Sessions whose access token could not be refreshed because the identity
provider is unreachable are listed as Unavailable.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.ValidateOutputFormat(opts.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd, global, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.scopes, "scope", nil, "Only list sessions granted these scopes")
	cmd.Flags().StringVarP(&opts.output, "output", "o", string(cli.OutputFormatTable), "Output format (table, wide, json, yaml)")
	cmd.Flags().BoolVar(&opts.noHeaders, "no-headers", false, "Suppress header row in table output")
	cmd.Flags().BoolVar(&opts.showTokens, "show-tokens", false, "Include tokens in json and yaml output")
	return cmd
}

func runSessions(cmd *cobra.Command, global *globalOptions, opts *sessionsOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, global, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var scopes []string
	if len(opts.scopes) > 0 {
		scopes = opts.scopes
	}

	// Listing never fails on a provider outage; the sessions are shown as
	// they are held.
	sessions, err := a.provider.GetSessions(ctx, scopes)
	if err != nil {
		if scopes == nil {
			sessions = a.service.Snapshot()
		} else {
			return cli.ClassifySessionError(err, a.cfg.AuthURL)
		}
	}

	return cli.PrintSessions(cmd.OutOrStdout(), sessions, cli.PrintOptions{
		Format:     cli.OutputFormat(opts.output),
		NoHeaders:  opts.noHeaders,
		ShowTokens: opts.showTokens,
	})
}
