package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
)

func TestWorkItemCodec(t *testing.T) {
	items := []WorkItem{
		FileRemove("A/f"),
		DirRemove("A/B", true),
		DirRemove("A/C", false),
		FileInstall("A/g", "sha1$0123"),
		FileInstall("with space/g", "sha1$4567"),
	}
	for _, w := range items {
		got, err := UnmarshalWorkItem(MarshalWorkItem(w))
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}

	for _, bad := range []string{"", "(file-remove)", "(file-install A/f)", "(dir-remove A x)", "(explode A)"} {
		_, err := UnmarshalWorkItem([]byte(bad))
		assert.Errorf(t, err, "input %q", bad)
	}
}

func TestWorkQueue_FIFO(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()

	next, err := r.WQFetchNext(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, r.WQAdd(ctx, FileRemove("a"), DirRemove("b", false)))
	require.NoError(t, r.WQAdd(ctx, FileInstall("c", "sha1$cc")))
	n, err := r.WQLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var got []string
	next, err = r.WQFetchNext(ctx, 0)
	require.NoError(t, err)
	for next != nil {
		got = append(got, next.Item.Relpath)
		// Fetching again without acknowledging returns the same item.
		again, err := r.WQFetchNext(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, next.ID, again.ID)

		next, err = r.WQFetchNext(ctx, next.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	_, err = r.WQFetchNext(ctx, 9999)
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrInvalidArgument))
}

func TestWorkQueue_RolledBackWithMutation(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()

	// The delete fails, so its work item must not be queued either.
	err := r.OpDelete(ctx, "missing", "", FileRemove("missing"))
	require.True(t, wcerrors.IsPathNotFound(err))

	n, err := r.WQLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
