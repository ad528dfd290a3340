package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()
	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		SetFormat("text")
		SetLevel("INFO")
	})

	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugShowsEverything", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, msg := range []string{"debug message", "info message", "warn message", "error message"} {
			assert.Contains(t, out, msg)
		}
	})

	t.Run("WarnHidesDebugAndInfo", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("WARN")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		_ = captureOutput(t)
		SetLevel("ERROR")
		SetLevel("verbose")
		assert.False(t, Enabled(LevelWarn))
		assert.True(t, Enabled(LevelError))
	})
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" warn ")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)

	assert.Equal(t, slog.LevelDebug, LevelDebug.slog())
	assert.Equal(t, slog.LevelError, LevelError.slog())
}

func TestInitLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wc.log")
	t.Cleanup(func() {
		_ = Init(Config{Output: "stderr", Format: "text", Level: "INFO"})
	})

	require.NoError(t, Init(Config{Output: path, Format: "json", Level: "DEBUG"}))
	Debug("to file", KeyPath, "A")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
	assert.Contains(t, string(data), `"path":"A"`)

	assert.Error(t, Init(Config{Output: filepath.Join(path, "nested", "x.log")}))
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")

	Info("node inserted", KeyPath, "A/B", KeyOpDepth, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "node inserted", entry["msg"])
	assert.Equal(t, "A/B", entry[KeyPath])
	assert.EqualValues(t, 2, entry[KeyOpDepth])
}

func TestContextLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")
	SetFormat("json")

	lc := ForWC("op_copy", "/wc", 4).Traced("trace-1", "span-1")
	ctx := WithContext(context.Background(), lc)

	DebugCtx(ctx, "copying", KeySrcPath, "A", KeyDstPath, "B")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "trace-1", entry[KeyTraceID])
	assert.Equal(t, "span-1", entry[KeySpanID])
	assert.Equal(t, "op_copy", entry[KeyOperation])
	assert.Equal(t, "/wc", entry[KeyWCRoot])
	assert.EqualValues(t, 4, entry[KeyWCID])
	assert.NotContains(t, entry, KeyInstance)
	assert.Equal(t, "A", entry[KeySrcPath])
}

func TestInstanceContextLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")
	SetFormat("json")

	DebugCtx(WithContext(context.Background(), ForInstance("scan", 9)), "scan interrupted")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "scan", entry[KeyOperation])
	assert.EqualValues(t, 9, entry[KeyInstance])
	assert.NotContains(t, entry, KeyWCID)
	assert.NotContains(t, entry, KeyWCRoot)
	assert.NotContains(t, entry, KeyTraceID)
}

func TestLogContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Traced("t", "s"))

	lc := ForWC("scan", "/x", 1)
	traced := lc.Traced("t", "s")
	assert.Empty(t, lc.TraceID)
	assert.Equal(t, "t", traced.TraceID)
	assert.Equal(t, []any{KeyTraceID, "t", KeySpanID, "s", KeyOperation, "scan", KeyWCRoot, "/x", KeyWCID, int64(1)}, traced.args())
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, KeyPath, Path("A").Key)
	assert.Equal(t, int64(3), OpDepth(3).Value.Int64())
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, "", Err(nil).Value.String())
	assert.Equal(t, uint64(7), Ident(7).Value.Uint64())
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("tick")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, strings.Count(buf.String(), "tick"))
}
