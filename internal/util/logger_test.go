package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	prev := Logf
	SetLogger(func(format string, v ...any) { lines = append(lines, fmt.Sprintf(format, v...)) })
	t.Cleanup(func() { Logf = prev; verbose.Store(false) })
	return &lines
}

func TestLevels(t *testing.T) {
	lines := captureLogs(t)
	Info("tick %d", 1)
	Warn("stale %s", "pose")
	Error("link down")
	Debug("hidden")

	require.Len(t, *lines, 3)
	assert.True(t, strings.HasPrefix((*lines)[0], "[INFO]"))
	assert.Contains(t, (*lines)[0], "tick 1")
	assert.True(t, strings.HasPrefix((*lines)[1], "[WARN]"))
	assert.True(t, strings.HasPrefix((*lines)[2], "[ERROR]"))

	verbose.Store(true)
	Debug("shown")
	assert.Len(t, *lines, 4)
}

func TestSetLoggerNilMutes(t *testing.T) {
	prev := Logf
	t.Cleanup(func() { Logf = prev })
	SetLogger(nil)
	assert.NotPanics(t, func() { Info("quiet") })
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nav.log")
	c, err := SetupLogger(path, false)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.FileExists(t, path)

	c, err = SetupLogger("", false)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
