package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Swind/go-task-graph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "text", &buf)

	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected 'test message' in output, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected 'key=value' in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "JSON", &buf)

	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, `"msg":"test message"`) {
		t.Errorf("expected JSON msg field in output, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Errorf("expected JSON key field in output, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// TestSlogAdapter verifies core.Logger fields become slog attributes
// Given: An adapter over a WARN-level text logger
// When: Info and Warn are logged with fields
// Then: Only the warning appears, carrying its fields
func TestSlogAdapter(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	adapter := NewSlogAdapter(NewLoggerWithWriter(slog.LevelWarn, "text", &buf))

	// Act
	adapter.Info("hidden", core.F("pool", "p"))
	adapter.Warn("task rejected", core.F("pool", "p1"), core.F("task", core.TaskID(7)))

	// Assert
	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "task rejected")
	assert.Contains(t, output, "pool=p1")
	assert.Contains(t, output, "task=task-7")
}

// TestSlogAdapter_DrivesScheduler verifies the adapter as PoolConfig.Logger
func TestSlogAdapter_DrivesScheduler(t *testing.T) {
	var buf syncBuffer
	adapter := NewSlogAdapter(NewLoggerWithWriter(slog.LevelInfo, "text", &buf))

	s := core.NewScheduler(&core.PoolConfig{ID: "logged", Workers: 1, Logger: adapter})
	require.NoError(t, s.Shutdown(t.Context(), true))

	output := buf.String()
	assert.Contains(t, output, "scheduler started")
	assert.Contains(t, output, "pool=logged")
	assert.Contains(t, output, "scheduler shutting down")
}

// TestNewFileWriter verifies output lands in the rotating file
func TestNewFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskgraph.log")
	w := NewFileWriter(FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	logger := NewLoggerWithWriter(slog.LevelInfo, "json", w)

	for i := range 3 {
		logger.Info(fmt.Sprintf("line %d", i))
	}
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(content), `"msg":"line`))
}

// syncBuffer is a bytes.Buffer safe for writes from worker goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
