package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/cli"
)

type logoutOptions struct {
	all bool
}

func newLogoutCmd(global *globalOptions) *cobra.Command {
	opts := &logoutOptions{}

	cmd := &cobra.Command{
		Use:   "logout [session-id]",
		Short: "Sign out of one or all sessions",
		Long: `Sign out of a session, given its id or a unique prefix of at least four
characters, or of every session with --all. With a single session stored,
the id may be omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, global, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "Sign out of every session")
	return cmd
}

func runLogout(cmd *cobra.Command, global *globalOptions, opts *logoutOptions, args []string) error {
	if opts.all && len(args) > 0 {
		return errors.New("--all cannot be combined with a session id")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, global, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := a.service.Snapshot()
	if opts.all {
		if err := a.provider.SignOutAll(ctx); err != nil {
			return err
		}
		printf(cmd, "Signed out of %d session(s)\n", len(sessions))
		return nil
	}

	if len(sessions) == 0 {
		return &cli.AuthRequiredError{}
	}

	var id string
	switch {
	case len(args) == 1:
		s, err := findSession(sessions, args[0])
		if err != nil {
			return err
		}
		id = s.ID
	case len(sessions) == 1:
		id = sessions[0].ID
	default:
		return errors.New("several sessions are stored; pass a session id or --all")
	}

	if err := a.provider.RemoveSession(ctx, id); err != nil {
		return err
	}
	printf(cmd, "Signed out of session %s\n", cli.ShortID(id))
	return nil
}
