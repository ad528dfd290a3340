package pristine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
	"github.com/marmos91/wcstore/pkg/wc/pristine/memory"
)

func TestChecksum(t *testing.T) {
	assert.Equal(t, "sha1$da39a3ee5e6b4b0d3255bfef95601890afd80709", pristine.Checksum(nil))

	digest, err := pristine.ParseChecksum("sha1$DA39A3EE5E6B4B0D3255BFEF95601890AFD80709")
	require.NoError(t, err)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", digest)

	assert.True(t, pristine.Equal(
		"sha1$da39a3ee5e6b4b0d3255bfef95601890afd80709",
		"sha1$DA39A3EE5E6B4B0D3255BFEF95601890AFD80709"))
	assert.False(t, pristine.Equal("sha1$da39a3ee5e6b4b0d3255bfef95601890afd80709", "garbage"))
}

func TestReadDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := pristine.New(backend, nil)

	checksum, err := s.InstallBytes(ctx, []byte("original"))
	require.NoError(t, err)
	digest, err := pristine.ParseChecksum(checksum)
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, digest, []byte("tampered")))

	_, err = s.Read(ctx, checksum)
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrCorrupt))
}

func TestClosedBackend(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := pristine.New(backend, nil)
	require.NoError(t, s.Close())

	_, err := s.InstallBytes(ctx, []byte("late"))
	assert.ErrorIs(t, err, pristine.ErrStoreClosed)
	assert.ErrorIs(t, s.HealthCheck(ctx), pristine.ErrStoreClosed)
}
