package cli

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Progress shows a spinner while a long operation runs. A quiet Progress
// prints nothing.
type Progress struct {
	s *spinner.Spinner
}

// StartProgress starts a spinner on out with the given message.
func StartProgress(out io.Writer, message string, quiet bool) *Progress {
	if quiet {
		return &Progress{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.Suffix = " " + message
	s.Start()
	return &Progress{s: s}
}

// Succeed stops the spinner and prints message in green.
func (p *Progress) Succeed(message string) {
	p.stop(text.FgGreen.Sprint(message))
}

// Fail stops the spinner and prints message in red.
func (p *Progress) Fail(message string) {
	p.stop(text.FgRed.Sprint(message))
}

func (p *Progress) stop(final string) {
	if p.s == nil {
		return
	}
	p.s.FinalMSG = final + "\n"
	p.s.Stop()
}
