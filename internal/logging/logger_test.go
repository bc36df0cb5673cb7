package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/deskflow/internal/config"
)

func TestNew_ConsoleAndFileLevels(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "deskflow.log")
	var console bytes.Buffer

	logger, closeFn, err := New(Options{
		Config:  config.LoggingConfig{Level: "info", File: logFile},
		Console: &console,
	})
	require.NoError(t, err)

	logger.Debug("row detail")
	logger.Info("run complete")
	closeFn()

	assert.NotContains(t, console.String(), "row detail")
	assert.Contains(t, console.String(), "run complete")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "debug", first["level"])
	assert.Equal(t, "row detail", first["msg"])
}

func TestNew_VerboseConsole(t *testing.T) {
	var console bytes.Buffer
	logger, closeFn, err := New(Options{
		Config:  config.LoggingConfig{Level: "warn"},
		Verbose: true,
		Console: &console,
	})
	require.NoError(t, err)

	logger.Debug("visible")
	closeFn()

	assert.Contains(t, console.String(), "visible")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Options{Config: config.LoggingConfig{Level: "loud"}})
	assert.Error(t, err)
}
