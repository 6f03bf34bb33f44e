package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/cli"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/config"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no usable session exists.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the interactive login failed.
	ExitCodeAuthFailed = 3
)

// version is set from main.
var version = "dev"

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
}

// rootCmd is the entry point when the application is called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "redhat-sso",
		Short: "Manage your Red Hat account sessions",
		Long: `redhat-sso signs you in to your Red Hat account through the system browser
and keeps the resulting sessions refreshed.

Sessions are stored encrypted in the configuration directory and shared by
every redhat-sso process, so a session created with 'redhat-sso login' is
picked up by a running 'redhat-sso serve' and the other way around.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
		Version:      version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLogLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logging.InitForCLI(level, cmd.ErrOrStderr())
			return nil
		},
	}
	cmd.SetVersionTemplate(`{{printf "redhat-sso version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newSessionsCmd(opts),
		newTokenCmd(opts),
		newWhoamiCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// SetVersion sets the version reported by the root command.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return version
}

// Execute runs the root command and exits with a code describing the outcome.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var authRequired *cli.AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *cli.AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
