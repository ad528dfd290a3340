package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.False(t, IsEnabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "wc.op_copy", Path("A"), OpDepth(1))
	AddEvent(ctx, "row.inserted")
	EndSpan(span, errors.New("boom"))

	// Noop spans carry no ids.
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOn")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOff")
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestAttributes(t *testing.T) {
	assert.Equal(t, AttrPath, string(Path("A").Key))
	assert.Equal(t, int64(3), Revision(3).Value.AsInt64())
	assert.Equal(t, "memory", Backend("memory").Value.AsString())
	assert.Equal(t, "timer", Filter("timer").Value.AsString())
}

func TestProfilingDisabled(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.False(t, IsProfilingEnabled())
	assert.NoError(t, stop())
}

func TestParseProfileTypes(t *testing.T) {
	types, err := ParseProfileTypes(DefaultProfileTypes)
	require.NoError(t, err)
	assert.Len(t, types, len(DefaultProfileTypes))

	_, err = ParseProfileTypes([]string{"cpu", "heap"})
	assert.ErrorContains(t, err, "heap")
}
