package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	for _, known := range KnownMethods {
		m, err := ParseMethod(string(known))
		require.NoError(t, err)
		assert.Equal(t, known, m)
	}

	for _, raw := range []string{"", "smtp_helo", "User_Agent"} {
		_, err := ParseMethod(raw)
		assert.Error(t, err, raw)
	}
}
