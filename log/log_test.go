package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
		ok   bool
	}{
		{"", logrus.InfoLevel, true},
		{"INFO", logrus.InfoLevel, true},
		{"debug", logrus.DebugLevel, true},
		{"trace", logrus.TraceLevel, true},
		{"warning", logrus.WarnLevel, true},
		{"error", logrus.ErrorLevel, true},
		{"critical", logrus.FatalLevel, true},
		{"loud", logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Config{Level: "warn", Console: &buf})
	require.NoError(t, err)
	defer closer.Close()

	Component(l, "batch").Info("hidden")
	Component(l, "batch").Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=batch")
}

func TestNewFileHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(path, []byte("stale line\n"), 0644))

	var console bytes.Buffer
	l, closer, err := New(Config{Level: "info", File: path, Mode: "w", Console: &console})
	require.NoError(t, err)
	l.WithField("sim", 3).Info("Simulation finished")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "w mode must truncate the previous log")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Simulation finished", entry["msg"])
	assert.Equal(t, float64(3), entry["sim"])
	assert.Contains(t, console.String(), "Simulation finished")
}

func TestNewAppendMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"msg\":\"old\"}\n"), 0644))

	l, closer, err := New(Config{File: path, Mode: "a", Console: &bytes.Buffer{}})
	require.NoError(t, err)
	l.Info("new")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)
	_, _, err = New(Config{File: filepath.Join(t.TempDir(), "x.log"), Mode: "r"})
	assert.Error(t, err)
}
