package logging

import (
	"bytes"
	"testing"

	clog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swapLogger restores the package logger when the test ends.
func swapLogger(t *testing.T) {
	t.Helper()
	prev := L
	t.Cleanup(func() { L = prev })
}

// TestLoggingHelpers_WriteToBuffer verifies the package helper functions write
// formatted messages to the package-level logger `L`.
func TestLoggingHelpers_WriteToBuffer(t *testing.T) {
	swapLogger(t)
	var buf bytes.Buffer
	L = clog.New(&buf)
	L.SetLevel(clog.DebugLevel)

	Debugf("hello %s", "dbg")
	Infof("info %d", 1)
	Warnf("warn")
	Errorf("err %v", "E")

	out := buf.String()
	for _, want := range []string{"hello dbg", "info 1", "warn", "err E"} {
		assert.Contains(t, out, want)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	swapLogger(t)
	var buf bytes.Buffer
	_, err := Setup("warn", "logfmt", &buf)
	require.NoError(t, err)

	Infof("quiet")
	With("kind", "things").Warn("loud")

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, "kind=things")
}

func TestSetup_JSONAndNonTerminalText(t *testing.T) {
	swapLogger(t)
	var buf bytes.Buffer
	_, err := Setup("info", "json", &buf)
	require.NoError(t, err)
	Infof("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	_, err = Setup("info", "text", &buf)
	require.NoError(t, err)
	Infof("plain")
	assert.Contains(t, buf.String(), "msg=plain", "text on a non-terminal falls back to logfmt")
}

func TestSetup_RejectsBadInput(t *testing.T) {
	swapLogger(t)
	_, err := Setup("loud", "text", &bytes.Buffer{})
	assert.Error(t, err)
	_, err = Setup("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
