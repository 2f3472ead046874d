package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":    DebugLevel,
		" WARN ":   WarnLevel,
		"error":    ErrorLevel,
		"disabled": DisabledLevel,
		"":         InfoLevel,
		"verbose":  InfoLevel,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("Should write text output at or above the level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf})
		log.Debug("hidden")
		log.Info("visible", "page", 2)

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "visible")
		assert.Contains(t, out, "page=2")
	})

	t.Run("Should emit JSON when configured", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: DebugLevel, Output: &buf, JSON: true})
		log.With("component", "loader").Warn("fetch failed", "generation", 3)

		line := strings.TrimSpace(buf.String())
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &payload))
		assert.Equal(t, "fetch failed", payload["msg"])
		assert.Equal(t, "loader", payload["component"])
	})

	t.Run("Should stay silent when disabled", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: DisabledLevel, Output: &buf})
		log.Error("nothing")
		assert.Empty(t, buf.String())
	})
}
