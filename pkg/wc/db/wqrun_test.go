package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
	"github.com/marmos91/wcstore/pkg/wc/pristine/memory"
)

func newDiskRoot(t *testing.T) *Root {
	t.Helper()
	d := New(newTestStore(t), Options{})
	r, err := d.Init(context.Background(), t.TempDir(), InitOptions{
		ReposRootURL: testReposURL,
		ReposUUID:    testReposUUID,
	})
	require.NoError(t, err)
	return r
}

func TestRunWorkQueue(t *testing.T) {
	ctx := context.Background()
	r := newDiskRoot(t)
	texts := pristine.New(memory.New(), nil)

	checksum, err := texts.InstallBytes(ctx, []byte("contents\n"))
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(r.LocalAbspath("old/sub"), 0755))
	require.NoError(t, os.WriteFile(r.LocalAbspath("old/sub/f"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(r.LocalAbspath("gone"), []byte("x"), 0644))

	require.NoError(t, r.WQAdd(ctx,
		FileInstall("A/new", checksum),
		FileRemove("gone"),
		FileRemove("never-existed"),
		DirRemove("old", true),
	))

	n, err := r.RunWorkQueue(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	data, err := os.ReadFile(filepath.Join(r.Abspath(), "A", "new"))
	require.NoError(t, err)
	assert.Equal(t, "contents\n", string(data))
	assert.NoFileExists(t, r.LocalAbspath("gone"))
	assert.NoDirExists(t, r.LocalAbspath("old"))

	left, err := r.WQLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestRunWorkQueue_StopsAtFailure(t *testing.T) {
	ctx := context.Background()
	r := newDiskRoot(t)
	texts := pristine.New(memory.New(), nil)

	missing := pristine.Checksum([]byte("not installed"))
	require.NoError(t, r.WQAdd(ctx, FileRemove("a"), FileInstall("b", missing), FileRemove("c")))

	n, err := r.RunWorkQueue(ctx, texts)
	require.Error(t, err)
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrPristineNotFound))
	assert.Equal(t, 1, n)

	// The failed item stays at the head of the queue.
	next, err := r.WQFetchNext(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, FileInstall("b", missing), next.Item)

	left, err := r.WQLen(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, left)
}

func TestRunWorkQueue_NonRecursiveDirRemove(t *testing.T) {
	ctx := context.Background()
	r := newDiskRoot(t)

	require.NoError(t, os.MkdirAll(r.LocalAbspath("full"), 0755))
	require.NoError(t, os.WriteFile(r.LocalAbspath("full/f"), nil, 0644))
	require.NoError(t, os.MkdirAll(r.LocalAbspath("empty"), 0755))
	require.NoError(t, r.WQAdd(ctx, DirRemove("empty", false), DirRemove("full", false)))

	n, err := r.RunWorkQueue(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, r.LocalAbspath("empty"))
	assert.DirExists(t, r.LocalAbspath("full"))
}
