package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/logpoison-tool/internal/catalog"
	"github.com/logpoison-tool/internal/scanner"
	"github.com/logpoison-tool/pkg/models"
)

// ErrCancelled is returned when the operator aborts a prompt
var ErrCancelled = errors.New("cancelled by operator")

const (
	rule          = "============================================================"
	outputRule    = "------------------------------------------------------------"
	tablePreview  = 80
	shellPrompt   = "$ "
	exitCommand   = "exit"
	quitCommand   = "quit"
	defaultChoice = "1"
)

// Executor runs one command and returns its output
type Executor interface {
	Execute(ctx context.Context, command string) string
}

// Options control console rendering
type Options struct {
	NoColor bool
	Spinner bool
}

// Console renders operator output and reads operator input
type Console struct {
	in  io.Reader
	out io.Writer

	info    *color.Color
	success *color.Color
	failure *color.Color
	warning *color.Color
	prompt  *color.Color
	bold    *color.Color

	spinner bool

	startOnce sync.Once
	stopOnce  sync.Once
	lines     chan string
	stop      chan struct{}
}

// New creates a console over arbitrary streams
func New(in io.Reader, out io.Writer, opts Options) *Console {
	c := &Console{
		in:      in,
		out:     out,
		info:    color.New(color.FgCyan),
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		prompt:  color.New(color.FgGreen, color.Bold),
		bold:    color.New(color.FgWhite, color.Bold),
		spinner: opts.Spinner,
	}

	if opts.NoColor {
		for _, col := range []*color.Color{c.info, c.success, c.failure, c.warning, c.prompt, c.bold} {
			col.DisableColor()
		}
	}

	return c
}

// NewStd creates a console on stdin/stdout, animating progress only when
// stdout is a terminal
func NewStd(noColor bool) *Console {
	tty := term.IsTerminal(int(os.Stdout.Fd()))
	return New(os.Stdin, os.Stdout, Options{
		NoColor: noColor || !tty,
		Spinner: tty,
	})
}

// Info prints a [*] status line
func (c *Console) Info(format string, a ...interface{}) {
	fmt.Fprintln(c.out, c.info.Sprint("[*]"), fmt.Sprintf(format, a...))
}

// Success prints a [+] status line
func (c *Console) Success(format string, a ...interface{}) {
	fmt.Fprintln(c.out, c.success.Sprint("[+]"), fmt.Sprintf(format, a...))
}

// Error prints a [-] status line
func (c *Console) Error(format string, a ...interface{}) {
	fmt.Fprintln(c.out, c.failure.Sprint("[-]"), fmt.Sprintf(format, a...))
}

// Warn prints a [!] status line
func (c *Console) Warn(format string, a ...interface{}) {
	fmt.Fprintln(c.out, c.warning.Sprint("[!]"), fmt.Sprintf(format, a...))
}

// Newline prints an empty line
func (c *Console) Newline() {
	fmt.Fprintln(c.out)
}

// Header prints the banner with the target and parameter
func (c *Console) Header(target, param string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, c.bold.Sprint("    Log Poisoning LFI Attack Script"))
	fmt.Fprintln(c.out, rule)
	c.Info("Target: %s", target)
	c.Info("Parameter: %s", param)
}

// ScanBanner announces a scan over pathCount candidate paths
func (c *Console) ScanBanner(pathCount int) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, rule)
	c.Info("Scanning for readable log files (%d candidates)...", pathCount)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out)
}

// ScanObserver returns a progress observer for the scanner
func (c *Console) ScanObserver() scanner.Observer {
	return newProgress(c)
}

// LogsTable prints readable logs, numbered from 1
func (c *Console) LogsTable(logs []models.VulnerableLog) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, rule)
	c.Success("Found readable log files:")
	fmt.Fprintln(c.out, rule)

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"#", "Description", "Path", "Method", "Preview"})
	table.SetAutoWrapText(false)

	for i, log := range logs {
		table.Append([]string{
			strconv.Itoa(i + 1),
			log.Description,
			log.Path,
			string(log.Method),
			previewCell(log.ContentPreview),
		})
	}

	table.Render()
}

// CatalogTable prints every class and candidate path of cat
func (c *Console) CatalogTable(cat catalog.Catalog) {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Class", "Method", "Description", "Path"})
	table.SetAutoWrapText(false)
	table.SetAutoMergeCells(true)

	for _, class := range cat {
		for _, path := range class.Paths {
			table.Append([]string{class.Name, string(class.Method), class.Description, path})
		}
	}

	table.Render()
	c.Info("%d classes, %d paths", len(cat), cat.PathCount())
}

// SelectLog lists logs and asks the operator to pick one. An empty answer
// picks the first; invalid answers re-prompt; end of input or a cancelled
// context returns ErrCancelled.
func (c *Console) SelectLog(ctx context.Context, logs []models.VulnerableLog) (models.VulnerableLog, error) {
	if len(logs) == 0 {
		c.Error("No vulnerable logs found")
		return models.VulnerableLog{}, ErrCancelled
	}

	c.LogsTable(logs)

	for {
		fmt.Fprintf(c.out, "Select log to exploit (1-%d) [1]: ", len(logs))

		answer, err := c.readLine(ctx)
		if err != nil {
			fmt.Fprintln(c.out)
			c.Warn("Cancelled")
			return models.VulnerableLog{}, ErrCancelled
		}

		answer = strings.TrimSpace(answer)
		if answer == "" {
			answer = defaultChoice
		}

		choice, err := strconv.Atoi(answer)
		if err != nil {
			c.Error("Please enter a valid number")
			continue
		}
		if choice < 1 || choice > len(logs) {
			c.Error("Please enter a number between 1 and %d", len(logs))
			continue
		}

		selected := logs[choice-1]
		fmt.Fprintln(c.out)
		c.Success("Selected: %s", selected.Description)
		c.Success("Path: %s", selected.Path)
		return selected, nil
	}
}

// RunSingle executes command once and prints its output between rules
func (c *Console) RunSingle(ctx context.Context, exec Executor, command string) {
	fmt.Fprintln(c.out)
	c.Info("Executing single command: %s", command)

	output := exec.Execute(ctx, command)

	fmt.Fprintln(c.out)
	c.Success("Command output:")
	fmt.Fprintln(c.out, outputRule)
	fmt.Fprintln(c.out, output)
	fmt.Fprintln(c.out, outputRule)
}

// RunShell reads commands until exit/quit, end of input or cancellation.
// Blank lines are skipped. Every other line goes through exec.
func (c *Console) RunShell(ctx context.Context, exec Executor, logPath string, method models.Method) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, rule)
	c.Success("Starting interactive shell")
	c.Info("Log file: %s", logPath)
	c.Info("Poison method: %s", method)
	c.Info("Type 'exit' or 'quit' to quit")
	c.Warn("Log is re-poisoned before each command")
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out)

	for {
		fmt.Fprint(c.out, c.prompt.Sprint(shellPrompt))

		line, err := c.readLine(ctx)
		if err != nil {
			fmt.Fprintln(c.out)
			if errors.Is(err, io.EOF) {
				c.Info("Exiting...")
			} else {
				c.Warn("Interrupted")
			}
			return
		}

		command := strings.TrimSpace(line)
		switch strings.ToLower(command) {
		case exitCommand, quitCommand:
			c.Info("Exiting...")
			return
		case "":
			continue
		}

		if output := exec.Execute(ctx, command); output != "" {
			fmt.Fprintln(c.out, output)
		}
		fmt.Fprintln(c.out)
	}
}

// readLine returns the next input line, io.EOF at end of input or the
// context error once ctx is done
func (c *Console) readLine(ctx context.Context) (string, error) {
	c.startOnce.Do(func() {
		c.lines = make(chan string)
		c.stop = make(chan struct{})
		go c.readInput()
	})

	select {
	case <-ctx.Done():
		// input is abandoned once a prompt is cancelled
		c.stopOnce.Do(func() { close(c.stop) })
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *Console) readInput() {
	defer close(c.lines)

	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		select {
		case <-c.stop:
			return
		default:
		}

		select {
		case c.lines <- sc.Text():
		case <-c.stop:
			return
		}
	}
}

func previewCell(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	return scanner.Preview(flat, tablePreview) + "..."
}
