package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/sso"
)

// PlainTableWriter provides kubectl-style plain table output without box-drawing characters.
// This format is optimized for:
//   - Easy copy/paste operations
//   - Piping to grep, awk, cut and other command-line tools
//   - Terminal-agnostic rendering (no Unicode issues)
type PlainTableWriter struct {
	headers      []string
	rows         [][]string
	columnWidths []int
	// minPadding is the minimum space between columns
	minPadding  int
	showHeaders bool
	output      io.Writer
}

// NewPlainTableWriter creates a new plain table writer with kubectl-style formatting.
// By default, headers are shown. Use SetNoHeaders(true) to suppress them.
func NewPlainTableWriter(output io.Writer) *PlainTableWriter {
	return &PlainTableWriter{
		minPadding:  3,
		showHeaders: true,
		output:      output,
	}
}

// SetHeaders sets the column headers for the table. Headers are upper-cased.
func (w *PlainTableWriter) SetHeaders(headers []string) {
	w.headers = make([]string, len(headers))
	w.columnWidths = make([]int, len(headers))
	for i, h := range headers {
		upper := strings.ToUpper(h)
		w.headers[i] = upper
		w.columnWidths[i] = len(upper)
	}
}

// SetNoHeaders controls whether to suppress the header row.
func (w *PlainTableWriter) SetNoHeaders(noHeaders bool) {
	w.showHeaders = !noHeaders
}

// AppendRow adds a row to the table. Missing cells are left blank and
// extra cells are dropped.
func (w *PlainTableWriter) AppendRow(row []string) {
	normalized := make([]string, len(w.headers))
	for i := range w.headers {
		if i < len(row) {
			normalized[i] = row[i]
			if len(row[i]) > w.columnWidths[i] {
				w.columnWidths[i] = len(row[i])
			}
		}
	}
	w.rows = append(w.rows, normalized)
}

// Render outputs the table.
func (w *PlainTableWriter) Render() {
	if len(w.headers) == 0 {
		return
	}
	if len(w.rows) == 0 && !w.showHeaders {
		return
	}

	if w.showHeaders {
		w.printRow(w.headers)
	}
	for _, row := range w.rows {
		w.printRow(row)
	}
}

func (w *PlainTableWriter) printRow(row []string) {
	var sb strings.Builder
	for i, cell := range row {
		if i == len(row)-1 {
			sb.WriteString(cell)
			continue
		}
		fmt.Fprintf(&sb, "%-*s", w.columnWidths[i]+w.minPadding, cell)
	}
	fmt.Fprintln(w.output, strings.TrimRight(sb.String(), " "))
}

func renderPlain(out io.Writer, sessions []sso.Session, opts PrintOptions) {
	if len(sessions) == 0 {
		if !opts.NoHeaders {
			fmt.Fprintln(out, "No sessions")
		}
		return
	}

	w := NewPlainTableWriter(out)
	w.SetHeaders([]string{"id", "account", "status", "scopes"})
	w.SetNoHeaders(opts.NoHeaders)
	for _, s := range sessions {
		w.AppendRow([]string{ShortID(s.ID), s.Account.Label, SessionStatus(s), strings.Join(s.Scopes, " ")})
	}
	w.Render()
}

func renderWide(out io.Writer, sessions []sso.Session, opts PrintOptions) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	if !opts.NoHeaders {
		t.AppendHeader(table.Row{"Session ID", "Account", "Account ID", "Status", "Expires", "Scopes"})
	}

	now := opts.Now()
	for _, s := range sessions {
		status := SessionStatus(s)
		if s.AccessToken == "" {
			status = text.FgYellow.Sprint(status)
		} else {
			status = text.FgGreen.Sprint(status)
		}
		t.AppendRow(table.Row{s.ID, s.Account.Label, s.Account.ID, status, SessionExpiry(s, now), strings.Join(s.Scopes, "\n")})
	}
	t.Render()
}
