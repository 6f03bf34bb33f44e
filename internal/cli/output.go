package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/sso"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable prints a plain table with the most useful columns.
	OutputFormatTable OutputFormat = "table"
	// OutputFormatWide prints a bordered table with every column.
	OutputFormatWide OutputFormat = "wide"
	// OutputFormatJSON prints the sessions as JSON.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML prints the sessions as YAML.
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidOutputFormats lists the accepted --output values.
var ValidOutputFormats = []OutputFormat{
	OutputFormatTable,
	OutputFormatWide,
	OutputFormatJSON,
	OutputFormatYAML,
}

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	for _, f := range ValidOutputFormats {
		if OutputFormat(format) == f {
			return nil
		}
	}
	valid := make([]string, 0, len(ValidOutputFormats))
	for _, f := range ValidOutputFormats {
		valid = append(valid, string(f))
	}
	return fmt.Errorf("unsupported output format %q (valid: %s)", format, strings.Join(valid, ", "))
}

// PrintOptions controls how sessions are printed.
type PrintOptions struct {
	Format    OutputFormat
	NoHeaders bool

	// ShowTokens includes access and ID tokens in JSON and YAML output.
	ShowTokens bool

	// Now is used to render expiry times. Defaults to time.Now.
	Now func() time.Time
}

// PrintSessions writes sessions to out in the requested format.
func PrintSessions(out io.Writer, sessions []sso.Session, opts PrintOptions) error {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sessions == nil {
		sessions = []sso.Session{}
	}

	switch opts.Format {
	case OutputFormatJSON:
		data, err := json.MarshalIndent(redact(sessions, opts.ShowTokens), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode sessions: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case OutputFormatYAML:
		data, err := yaml.Marshal(redact(sessions, opts.ShowTokens))
		if err != nil {
			return fmt.Errorf("failed to convert to YAML: %w", err)
		}
		_, err = out.Write(data)
		return err
	case OutputFormatWide:
		renderWide(out, sessions, opts)
		return nil
	case OutputFormatTable, "":
		renderPlain(out, sessions, opts)
		return nil
	default:
		return ValidateOutputFormat(string(opts.Format))
	}
}

func redact(sessions []sso.Session, showTokens bool) []sso.Session {
	if showTokens {
		return sessions
	}
	out := make([]sso.Session, len(sessions))
	for i, s := range sessions {
		s.AccessToken = oauth.NewRedactedToken(s.AccessToken).String()
		s.IDToken = oauth.NewRedactedToken(s.IDToken).String()
		out[i] = s
	}
	return out
}

// SessionStatus describes whether a session can currently be used.
func SessionStatus(s sso.Session) string {
	if s.AccessToken == "" {
		return "Unavailable"
	}
	return "Active"
}

// SessionExpiry renders when the session's access token expires, read from
// the token itself.
func SessionExpiry(s sso.Session, now time.Time) string {
	if s.AccessToken == "" {
		return "-"
	}
	claims, err := oauth.ParseUnverifiedClaims(s.AccessToken)
	if err != nil {
		return "unknown"
	}
	if claims.ExpiresAt == nil {
		return "never"
	}
	left := claims.ExpiresAt.Sub(now).Round(time.Second)
	if left <= 0 {
		return "expired"
	}
	return "in " + left.String()
}

// ShortID shortens a session id for table display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
