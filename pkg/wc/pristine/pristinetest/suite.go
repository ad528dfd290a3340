// Package pristinetest provides a conformance suite shared by every
// pristine backend.
package pristinetest

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
)

// Factory creates a fresh, empty backend for one subtest.
type Factory func(t *testing.T) pristine.Backend

// RunConformanceSuite exercises a backend through pristine.Store.
func RunConformanceSuite(t *testing.T, factory Factory) {
	t.Run("InstallAndRead", func(t *testing.T) { testInstallAndRead(t, factory) })
	t.Run("InstallIsIdempotent", func(t *testing.T) { testInstallIdempotent(t, factory) })
	t.Run("ReadMissing", func(t *testing.T) { testReadMissing(t, factory) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, factory) })
	t.Run("EmptyText", func(t *testing.T) { testEmptyText(t, factory) })
	t.Run("MalformedChecksum", func(t *testing.T) { testMalformedChecksum(t, factory) })
	t.Run("HealthCheck", func(t *testing.T) { testHealthCheck(t, factory) })
}

func readAll(t *testing.T, s *pristine.Store, checksum string) string {
	t.Helper()
	rc, err := s.Read(context.Background(), checksum)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func testInstallAndRead(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := pristine.New(factory(t), nil)

	checksum, err := s.Install(ctx, strings.NewReader("hello world\n"))
	require.NoError(t, err)
	assert.Equal(t, "sha1$22596363b3de40b06f981fb85d82312e8c0ed511", checksum)

	has, err := s.Has(ctx, checksum)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, "hello world\n", readAll(t, s, checksum))
}

func testInstallIdempotent(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := pristine.New(factory(t), nil)

	first, err := s.InstallBytes(ctx, []byte("same"))
	require.NoError(t, err)
	second, err := s.InstallBytes(ctx, []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "same", readAll(t, s, first))
}

func testReadMissing(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := pristine.New(factory(t), nil)

	missing := pristine.Checksum([]byte("never installed"))
	_, err := s.Read(ctx, missing)
	require.Error(t, err)
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrPristineNotFound))

	has, err := s.Has(ctx, missing)
	require.NoError(t, err)
	assert.False(t, has)
}

func testRemove(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := pristine.New(factory(t), nil)

	checksum, err := s.InstallBytes(ctx, []byte("short-lived"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, checksum))

	has, err := s.Has(ctx, checksum)
	require.NoError(t, err)
	assert.False(t, has)

	// Removing again is not an error.
	require.NoError(t, s.Remove(ctx, checksum))
}

func testEmptyText(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := pristine.New(factory(t), nil)

	checksum, err := s.InstallBytes(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "sha1$da39a3ee5e6b4b0d3255bfef95601890afd80709", checksum)
	assert.Equal(t, "", readAll(t, s, checksum))
}

func testMalformedChecksum(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := pristine.New(factory(t), nil)

	for _, bad := range []string{"", "md5$d41d8cd98f00b204e9800998ecf8427e", "sha1$xyz", "sha1$" + strings.Repeat("g", 40)} {
		_, err := s.Read(ctx, bad)
		assert.True(t, wcerrors.HasCode(err, wcerrors.ErrInvalidArgument), "checksum %q", bad)
	}
}

func testHealthCheck(t *testing.T, factory Factory) {
	s := pristine.New(factory(t), nil)
	assert.NoError(t, s.HealthCheck(context.Background()))
}
