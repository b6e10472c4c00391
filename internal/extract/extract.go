// Package extract recovers command output from a rendered HTML page.
//
// Recovery is approximate. The page is a full template with the included
// log somewhere inside it, so output is located by fingerprints: it will
// miss output that matches none of them and over-collect when the page
// itself happens to match one.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// NoOutput is returned when the page produced no text at all
const NoOutput = "No output captured"

const (
	// FallbackLines bounds the best-effort dump used when no output was located
	FallbackLines = 30

	// MaxLineLength excludes long reflected markup from collected output
	MaxLineLength = 500
)

// DefaultSignals fingerprint common command output: id, ls -l and /etc/passwd
var DefaultSignals = []string{"uid=", "total", "root:"}

// NoisePatterns are lowercase fragments of page chrome never part of output
var NoisePatterns = []string{"<!doctype", "<html", "</html>", "containers", "inlane freight"}

// ignoredElements are stripped before the text is flattened
const ignoredElements = "script, style, header, footer, nav"

// Parse extracts the output of command from a rendered page, capped at
// maxLines lines (no cap when maxLines <= 0)
func Parse(html, command string, maxLines int) string {
	lines := Lines(html)

	output := FindOutput(lines, command, DefaultSignals)
	if len(output) > 0 {
		return strings.Join(limit(output, maxLines), "\n")
	}

	if len(lines) == 0 {
		return NoOutput
	}
	return strings.Join(limit(lines, FallbackLines), "\n")
}

// Lines strips structurally irrelevant elements and flattens the remaining
// text into trimmed, non-empty lines in document order
func Lines(html string) []string {
	text := html

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find(ignoredElements).Remove()
		text = doc.Text()
	}

	return splitLines(text)
}

// FindOutput flips into output mode on the first non-noise line containing
// the command or one of the signals, then collects every following non-noise
// line shorter than MaxLineLength characters
func FindOutput(lines []string, command string, signals []string) []string {
	output := make([]string, 0)
	inOutput := false

	for _, line := range lines {
		if isNoise(line) {
			continue
		}

		if !inOutput && isOutputStart(line, command, signals) {
			inOutput = true
		}

		if inOutput && line != "" && utf8.RuneCountInString(line) < MaxLineLength {
			output = append(output, line)
		}
	}

	return output
}

func isOutputStart(line, command string, signals []string) bool {
	if command != "" && strings.Contains(line, command) {
		return true
	}
	for _, signal := range signals {
		if strings.Contains(line, signal) {
			return true
		}
	}
	return false
}

func isNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, pattern := range NoisePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func limit(lines []string, n int) []string {
	if n > 0 && len(lines) > n {
		return lines[:n]
	}
	return lines
}
