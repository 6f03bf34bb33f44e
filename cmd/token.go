package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/cli"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/sso"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

type tokenOptions struct {
	scopes  []string
	idToken bool
}

func newTokenCmd(global *globalOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long: `Print the access token of the session matching --scope, refreshing it
first when needed. Without --scope the session holding the default login
scopes is used.

Example:
  podman login -u "$(redhat-sso whoami --field username)" -p "$(redhat-sso token)" registry.redhat.io`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := resolveSession(cmd, global, opts.scopes)
			if err != nil {
				return err
			}
			if opts.idToken {
				printf(cmd, "%s\n", session.IDToken)
				return nil
			}
			printf(cmd, "%s\n", session.AccessToken)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.scopes, "scope", nil, "Scopes the session must grant")
	cmd.Flags().BoolVar(&opts.idToken, "id-token", false, "Print the ID token instead")
	return cmd
}

type whoamiOptions struct {
	scopes []string
	field  string
}

func newWhoamiCmd(global *globalOptions) *cobra.Command {
	opts := &whoamiOptions{}

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := resolveSession(cmd, global, opts.scopes)
			if err != nil {
				return err
			}
			return printWhoami(cmd, session, opts.field)
		},
	}

	cmd.Flags().StringSliceVar(&opts.scopes, "scope", nil, "Scopes the session must grant")
	cmd.Flags().StringVar(&opts.field, "field", "", "Print a single field (username, email, organization, subject)")
	return cmd
}

// resolveSession returns a session with a valid access token for scopes.
func resolveSession(cmd *cobra.Command, global *globalOptions, scopes []string) (sso.Session, error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, global, appOptions{})
	if err != nil {
		return sso.Session{}, err
	}
	defer a.Close()

	if len(scopes) == 0 {
		scopes = sso.DefaultLoginScopes
	}
	sessions, err := a.provider.GetSessions(ctx, scopes)
	if err != nil {
		return sso.Session{}, cli.ClassifySessionError(err, a.cfg.AuthURL)
	}
	if len(sessions) == 0 {
		return sso.Session{}, &cli.AuthRequiredError{Scopes: scopes}
	}
	return sessions[0], nil
}

func printWhoami(cmd *cobra.Command, session sso.Session, field string) error {
	claims, err := oauth.ParseUnverifiedClaims(session.AccessToken)
	if err != nil {
		return err
	}

	fields := map[string]string{
		"username":     claims.PreferredUsername,
		"email":        claims.Email,
		"organization": claims.Organization.ID,
		"subject":      claims.Subject,
	}
	if field != "" {
		v, ok := fields[field]
		if !ok {
			return fmt.Errorf("unknown field %q", field)
		}
		printf(cmd, "%s\n", v)
		return nil
	}

	w := cli.NewPlainTableWriter(cmd.OutOrStdout())
	w.SetHeaders([]string{"field", "value"})
	w.AppendRow([]string{"Account", session.Account.Label})
	w.AppendRow([]string{"Username", claims.PreferredUsername})
	w.AppendRow([]string{"Email", claims.Email})
	w.AppendRow([]string{"Organization", claims.Organization.ID})
	w.AppendRow([]string{"Subject", claims.Subject})
	w.AppendRow([]string{"Session", session.ID})
	if claims.ExpiresAt != nil {
		w.AppendRow([]string{"Expires", claims.ExpiresAt.Time.Format(time.RFC3339)})
	}
	w.Render()
	return nil
}
