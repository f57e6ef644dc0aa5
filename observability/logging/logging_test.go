package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: " yieldd ", Environment: "test"})
	logger.Info("advanced", "hours", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "advanced", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "yieldd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 3, line["hours"])
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "yieldd", Level: slog.LevelWarn})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestSetupWithOptionsWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yieldd.log")
	logger, closer := SetupWithOptions(Options{Service: "yieldd", File: path, MaxSizeMB: 1, Quiet: true})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Info("to file")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"message":"to file"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, "", MaskField("caller", "").Value.String())
	require.Equal(t, RedactedValue, MaskField("secret", "s3cret").Value.String())
	require.Equal(t, "http://hooks", MaskField("Endpoint", "http://hooks").Value.String())
	require.Equal(t, "  ", MaskValue("  "))
	require.Equal(t, RedactedValue, MaskValue("token"))
}

func TestMaskHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "yieldd"})
	logger.Info("telemetry", MaskHeaders("headers", map[string]string{"api-key": "abc", "team": ""}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	headers, ok := line["headers"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, RedactedValue, headers["api-key"])
	require.Equal(t, "", headers["team"])
}
