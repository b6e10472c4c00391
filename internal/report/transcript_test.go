package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/logpoison-tool/pkg/models"
)

func newTranscript() *Transcript {
	tr := New("http://10.10.10.10/index.php", "language")

	clock := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	tr.StartedAt = clock

	tr.SetLog(models.VulnerableLog{
		Path:    "/var/log/mail.log",
		LogType: "mail",
		Method:  models.MethodMailField,
	}, true)
	tr.Record("id", "uid=33(www-data) gid=33(www-data)")
	tr.Record("hostname", "web01")
	return tr
}

func TestSaveJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, newTranscript().Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Transcript
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "/var/log/mail.log", got.LogPath)
	assert.Equal(t, models.MethodMailField, got.Method)
	assert.True(t, got.Fallback)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "id", got.Entries[0].Command)
	assert.True(t, got.Entries[0].Timestamp.Before(got.Entries[1].Timestamp))
	assert.True(t, got.CompletedAt.After(got.StartedAt))
}

func TestSaveYAMLByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.log")
	require.NoError(t, newTranscript().Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "language", got["param"])
	assert.Equal(t, "mail_field", got["method"])
	assert.Len(t, got["entries"], 2)
}

func TestSaveMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.md")
	require.NoError(t, newTranscript().Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	md := string(data)
	assert.Contains(t, md, "**Log:** /var/log/mail.log (mail)")
	assert.Contains(t, md, "(best-effort fallback)")
	assert.Contains(t, md, "### `hostname`")
	assert.Contains(t, md, "```\nweb01\n```")
}

func TestSaveEmptySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, New("http://target/", "page").Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "_No commands executed._")
	assert.NotContains(t, string(data), "**Log:**")
}
