package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTextLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(NewTextHandler(buf, &slog.HandlerOptions{Level: level}, false))
}

func TestTextHandlerLine(t *testing.T) {
	var buf bytes.Buffer
	log := newTestTextLogger(&buf, slog.LevelDebug)

	log.Info("node inserted", KeyPath, "A/B", KeyOpDepth, 2, "msg2", "two words", "empty", "")

	line := buf.String()
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "INFO  node inserted")
	assert.Contains(t, line, " path=A/B")
	assert.Contains(t, line, " op_depth=2")
	assert.Contains(t, line, ` msg2="two words"`)
	assert.Contains(t, line, ` empty=""`)
	assert.NotContains(t, line, "\033[")
}

func TestTextHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newTestTextLogger(&buf, slog.LevelInfo).
		With(KeyWCRoot, "/wc").
		WithGroup("wq").
		With("id", 7)

	log.Warn("work item failed",
		slog.Group("item", "kind", "file-install"),
		"err", errors.New("no such file"),
		"took", 1500*time.Millisecond,
	)

	line := buf.String()
	assert.Contains(t, line, "WARN  work item failed")
	assert.Contains(t, line, " wc_root=/wc")
	assert.Contains(t, line, " wq.id=7")
	assert.Contains(t, line, " wq.item.kind=file-install")
	assert.Contains(t, line, ` wq.err="no such file"`)
	assert.Contains(t, line, " wq.took=1.5s")
}

func TestTextHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))

	slog.New(h).Info("dropped")
	assert.Empty(t, buf.String())
}

func TestTextHandlerColor(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewTextHandler(&buf, nil, true)).Error("boom", "k", "v")

	line := buf.String()
	assert.Contains(t, line, colorRed+"ERROR"+colorReset)
	assert.Contains(t, line, colorCyan+"k"+colorReset+"=v")
}
