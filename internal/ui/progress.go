package ui

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"

	"github.com/logpoison-tool/internal/catalog"
)

const spinnerDelay = 100 * time.Millisecond

// progress renders scanner events. On a terminal a spinner runs while each
// path is probed; elsewhere one line per path is printed.
type progress struct {
	console *Console
	spin    *spinner.Spinner
}

func newProgress(c *Console) *progress {
	p := &progress{console: c}
	if c.spinner {
		p.spin = spinner.New(spinner.CharSets[14], spinnerDelay, spinner.WithWriter(c.out))
	}
	return p
}

func (p *progress) OnClass(class catalog.LogClass) {
	p.console.Info("Testing %s...", class.Description)
}

func (p *progress) OnProbeStart(path string) {
	if p.spin != nil {
		p.spin.Suffix = " Checking: " + path
		p.spin.Start()
		return
	}
	fmt.Fprintf(p.console.out, "    Checking: %s... ", path)
}

func (p *progress) OnProbeDone(path string, readable bool) {
	if p.spin != nil {
		p.spin.Stop()
		if readable {
			fmt.Fprintf(p.console.out, "    %s %s\n", p.console.success.Sprint("✓ READABLE"), path)
		}
		return
	}

	if readable {
		fmt.Fprintln(p.console.out, p.console.success.Sprint("✓ READABLE"))
	} else {
		fmt.Fprintln(p.console.out, p.console.failure.Sprint("✗"))
	}
}
