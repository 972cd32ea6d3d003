package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
)

// progress shows a spinner while a job runs on an interactive terminal and
// prints a one-line outcome either way.
type progress struct {
	out io.Writer
	sp  *spinner.Spinner
}

func startProgress(out io.Writer, enabled bool, message string) *progress {
	p := &progress{out: out}
	if !enabled || !isTerminal(out) {
		return p
	}
	p.sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	p.sp.Prefix = "  "
	p.sp.Suffix = " " + message
	p.sp.Start()
	return p
}

func (p *progress) stop() {
	if p.sp == nil {
		return
	}
	p.sp.Stop()
	p.sp = nil
	fmt.Fprint(p.out, "\r\033[K")
}

func (p *progress) success(message string) {
	p.stop()
	fmt.Fprintf(p.out, "✓ %s\n", message)
}

func (p *progress) fail(message string) {
	p.stop()
	fmt.Fprintf(p.out, "✗ %s\n", message)
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
