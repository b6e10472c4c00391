package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logpoison-tool/pkg/models"
)

// Entry is one executed command
type Entry struct {
	Command   string    `json:"command" yaml:"command"`
	Output    string    `json:"output" yaml:"output"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Transcript records an exploitation session
type Transcript struct {
	Target      string        `json:"target" yaml:"target"`
	Param       string        `json:"param" yaml:"param"`
	LogPath     string        `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	LogType     string        `json:"log_type,omitempty" yaml:"log_type,omitempty"`
	Method      models.Method `json:"method,omitempty" yaml:"method,omitempty"`
	Fallback    bool          `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Entries     []Entry       `json:"entries" yaml:"entries"`

	mu  sync.Mutex
	now func() time.Time
}

// New starts a transcript for target and param
func New(target, param string) *Transcript {
	t := &Transcript{
		Target:  target,
		Param:   param,
		Entries: make([]Entry, 0),
		now:     time.Now,
	}
	t.StartedAt = t.now()
	return t
}

// SetLog records the log being exploited
func (t *Transcript) SetLog(log models.VulnerableLog, fallback bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.LogPath = log.Path
	t.LogType = log.LogType
	t.Method = log.Method
	t.Fallback = fallback
}

// Record appends an executed command and its output
func (t *Transcript) Record(command, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Entries = append(t.Entries, Entry{
		Command:   command,
		Output:    output,
		Timestamp: t.clock(),
	})
}

// Save writes the transcript to path, choosing the format from the extension:
// .json for JSON, .md for Markdown, anything else YAML
func (t *Transcript) Save(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.CompletedAt = t.clock()

	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(t, "", "  ")
	case ".md", ".markdown":
		data = t.markdown()
	default:
		data, err = yaml.Marshal(t)
	}
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	return nil
}

func (t *Transcript) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

func (t *Transcript) markdown() []byte {
	var buf bytes.Buffer

	buf.WriteString("# Log Poisoning Session\n\n")
	buf.WriteString(fmt.Sprintf("**Target:** %s\n", t.Target))
	buf.WriteString(fmt.Sprintf("**Parameter:** %s\n", t.Param))
	if t.LogPath != "" {
		buf.WriteString(fmt.Sprintf("**Log:** %s (%s)\n", t.LogPath, t.LogType))
		buf.WriteString(fmt.Sprintf("**Method:** %s", t.Method))
		if t.Fallback {
			buf.WriteString(" (best-effort fallback)")
		}
		buf.WriteString("\n")
	}
	buf.WriteString(fmt.Sprintf("**Started:** %s\n", t.StartedAt.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("**Completed:** %s\n\n", t.CompletedAt.Format("2006-01-02 15:04:05")))

	buf.WriteString("## Commands\n\n")
	if len(t.Entries) == 0 {
		buf.WriteString("_No commands executed._\n")
	}
	for _, e := range t.Entries {
		buf.WriteString(fmt.Sprintf("### `%s`\n\n", e.Command))
		buf.WriteString(fmt.Sprintf("_%s_\n\n", e.Timestamp.Format("15:04:05")))
		buf.WriteString("```\n")
		buf.WriteString(e.Output)
		buf.WriteString("\n```\n\n")
	}

	return buf.Bytes()
}
