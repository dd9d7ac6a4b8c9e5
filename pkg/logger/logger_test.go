package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel(prev)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestInfoCF_WritesComponentAndFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(INFO)

	InfoCF("relay", "Message relayed", map[string]any{"sender": "+1555", "kind": "text"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Message relayed", entry["msg"])
	assert.Equal(t, "relay", entry["component"])
	assert.Equal(t, "+1555", entry["sender"])
	assert.Equal(t, "text", entry["kind"])
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(INFO)

	DebugC("gateway", "hidden")
	assert.Empty(t, buf.String())

	SetLevel(DEBUG)
	DebugC("gateway", "shown")
	assert.True(t, strings.Contains(buf.String(), "shown"))
}

func TestSetLevelRoundTrip(t *testing.T) {
	captureOutput(t)
	for _, l := range []LogLevel{DEBUG, INFO, WARN, ERROR} {
		SetLevel(l)
		assert.Equal(t, l, GetLevel())
	}
}
