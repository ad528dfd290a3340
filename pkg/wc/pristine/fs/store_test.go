package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/wcstore/pkg/wc/pristine"
	"github.com/marmos91/wcstore/pkg/wc/pristine/fs"
	"github.com/marmos91/wcstore/pkg/wc/pristine/pristinetest"
)

func TestConformance(t *testing.T) {
	pristinetest.RunConformanceSuite(t, func(t *testing.T) pristine.Backend {
		s, err := fs.NewWithPath(filepath.Join(t.TempDir(), "pristine"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFanOutLayout(t *testing.T) {
	base := t.TempDir()
	backend, err := fs.NewWithPath(base)
	require.NoError(t, err)
	s := pristine.New(backend, nil)

	checksum, err := s.InstallBytes(context.Background(), []byte("hello world\n"))
	require.NoError(t, err)
	digest, err := pristine.ParseChecksum(checksum)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(base, digest[:2], digest))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0444), info.Mode().Perm())
}

func TestNewRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := fs.New(fs.Config{BasePath: path})
	assert.Error(t, err)

	_, err = fs.New(fs.Config{})
	assert.Error(t, err)
}

func TestClosed(t *testing.T) {
	backend, err := fs.NewWithPath(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	_, err = backend.Get(context.Background(), "00")
	assert.ErrorIs(t, err, pristine.ErrStoreClosed)
}
