// Package cli holds the presentation helpers shared by the redhat-sso
// commands: output formats, tables, progress spinners and the error types
// that map to process exit codes.
//
// Output comes in four formats. The default "table" format prints a plain
// kubectl-style table that is easy to pipe into grep or awk; "wide" renders
// a bordered table with every column; "json" and "yaml" print the session
// objects as they are exposed to collaborators, so scripts can consume them.
//
// Errors returned by commands are classified by the root command:
//   - AuthRequiredError: no session satisfies the request (exit code 2)
//   - AuthFailedError: the interactive login failed (exit code 3)
//   - ConnectionError: the identity provider could not be reached (exit code 1)
package cli
