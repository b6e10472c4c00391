package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", "json", &buf).WithField("target", "http://10.10.10.10/index.php")

	log.Debug("Probe complete", "path", "/var/log/nginx/access.log", "readable", true)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Probe complete", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "http://10.10.10.10/index.php", entry["target"])
	assert.Equal(t, "/var/log/nginx/access.log", entry["path"])
	assert.Equal(t, true, entry["readable"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", "text", &buf)

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseFieldsIgnoresDanglingAndNonStringKeys(t *testing.T) {
	fields := parseFields("a", 1, 2, "b", "c")

	assert.Equal(t, 1, fields["a"])
	assert.NotContains(t, fields, "c")
	assert.Len(t, fields, 1)
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("loud", "text", &buf)

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.WithField("path", "/var/log/auth.log").Info("shown")
	assert.Contains(t, buf.String(), "path=/var/log/auth.log")
}
