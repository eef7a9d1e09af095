package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetup_JSON(t *testing.T) {
	defer Setup("info", "text", os.Stderr)

	var buf bytes.Buffer
	Setup("debug", "json", &buf)
	L().Debug("probe", "file", "guide.pdf")

	out := buf.String()
	assert.Contains(t, out, `"msg":"probe"`)
	assert.Contains(t, out, `"file":"guide.pdf"`)
}

func TestSetup_LevelFilters(t *testing.T) {
	defer Setup("info", "text", os.Stderr)

	var buf bytes.Buffer
	Setup("warn", "text", &buf)
	L().Info("hidden")
	L().Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSection(t *testing.T) {
	defer Setup("info", "text", os.Stderr)

	var buf bytes.Buffer
	Setup("info", "text", &buf)
	Section("Ingestion")
	assert.Equal(t, "\n=== Ingestion ===\n", buf.String())
}
