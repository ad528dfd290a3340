package badger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/wcstore/pkg/wc/pristine"
	"github.com/marmos91/wcstore/pkg/wc/pristine/badger"
	"github.com/marmos91/wcstore/pkg/wc/pristine/pristinetest"
)

func TestConformance(t *testing.T) {
	pristinetest.RunConformanceSuite(t, func(t *testing.T) pristine.Backend {
		s, err := badger.NewInMemory(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "pristine.db")

	backend, err := badger.New(ctx, badger.Config{DBPath: dir})
	require.NoError(t, err)
	checksum, err := pristine.New(backend, nil).InstallBytes(ctx, []byte("durable"))
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	backend, err = badger.New(ctx, badger.Config{DBPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	has, err := pristine.New(backend, nil).Has(ctx, checksum)
	require.NoError(t, err)
	assert.True(t, has)

	keys, err := backend.Keys(ctx)
	require.NoError(t, err)
	digest, _ := pristine.ParseChecksum(checksum)
	assert.Equal(t, []string{digest}, keys)
}

func TestRequiresPath(t *testing.T) {
	_, err := badger.New(context.Background(), badger.Config{})
	assert.Error(t, err)
}
