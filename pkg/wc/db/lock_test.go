package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
)

// twoOwners opens the same working copy through two DBs sharing one engine,
// giving two independent lock owners.
func twoOwners(t *testing.T) (*Root, *Root) {
	t.Helper()
	st := newTestStore(t)
	ctx := context.Background()

	first, err := New(st, Options{}).Init(ctx, "/wc", InitOptions{ReposRootURL: testReposURL, ReposUUID: testReposUUID})
	require.NoError(t, err)
	checkoutTree(t, first, "A/", "A/B/", "A/B/C/")

	second, err := New(st, Options{}).Open(ctx, "/wc")
	require.NoError(t, err)
	require.Equal(t, first.WCID(), second.WCID())
	require.NotEqual(t, first.OwnerID(), second.OwnerID())
	return first, second
}

func TestObtainLock_Exclusivity(t *testing.T) {
	first, second := twoOwners(t)
	ctx := context.Background()

	require.NoError(t, first.ObtainLock(ctx, "A", LevelsInfinity, false))

	err := second.ObtainLock(ctx, "A/B", 0, false)
	require.True(t, wcerrors.HasCode(err, wcerrors.ErrLocked))
	assert.Contains(t, err.Error(), "'A'")

	// The same owner nests under its own lock.
	require.NoError(t, first.ObtainLock(ctx, "A/B", 0, false))
	assert.True(t, first.OwnsLock("A/B", true))
	assert.True(t, first.OwnsLock("A/B/C", false))
	assert.False(t, second.OwnsLock("A/B", false))

	// Releasing the nested lock keeps the covering one.
	require.NoError(t, first.ReleaseLock(ctx, "A/B"))
	locked, err := second.IsLocked(ctx, "A/B")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, first.ReleaseLock(ctx, "A"))
	locked, err = second.IsLocked(ctx, "A/B")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, second.ObtainLock(ctx, "A/B", 0, false))
}

func TestObtainLock_Levels(t *testing.T) {
	first, second := twoOwners(t)
	ctx := context.Background()

	require.NoError(t, first.ObtainLock(ctx, "A", 1, false))

	err := second.ObtainLock(ctx, "A/B", 0, false)
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrLocked))

	// Two levels down is outside the lock.
	require.NoError(t, second.ObtainLock(ctx, "A/B/C", 0, false))

	// A lock over a subtree holding a foreign lock is refused.
	err = first.ObtainLock(ctx, "A", LevelsInfinity, false)
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrLocked))
}

func TestObtainLock_Steal(t *testing.T) {
	first, second := twoOwners(t)
	ctx := context.Background()

	require.NoError(t, first.ObtainLock(ctx, "A/B", 0, false))
	require.NoError(t, second.ObtainLock(ctx, "A", LevelsInfinity, true))

	assert.True(t, second.OwnsLock("A/B", false))
	err := first.ObtainLock(ctx, "A/B", 0, false)
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrLocked))

	// The stale cache entry of the first owner no longer has a row.
	locked, err := first.IsLocked(ctx, "A/B/C")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestReleaseLock_NotLocked(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()

	err := r.ReleaseLock(ctx, "")
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrNotLocked))

	assert.True(t, wcerrors.HasCode(r.ObtainLock(ctx, "", -2, false), wcerrors.ErrInvalidArgument))
}

func TestDBClose_ReleasesLocks(t *testing.T) {
	first, second := twoOwners(t)
	ctx := context.Background()

	require.NoError(t, first.ObtainLock(ctx, "", LevelsInfinity, false))
	require.NoError(t, first.db.Close(ctx))

	require.NoError(t, second.ObtainLock(ctx, "A", 0, false))
}

func TestRepositoryLock(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "f", "g")

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.LockAdd(ctx, "f", LockInfo{Token: "opaquelocktoken:abc", Owner: "bob", Comment: "editing", Date: when}))

	info, err := r.ReadInfo(ctx, "f")
	require.NoError(t, err)
	require.NotNil(t, info.Lock)
	assert.Equal(t, "opaquelocktoken:abc", info.Lock.Token)
	assert.Equal(t, "bob", info.Lock.Owner)
	assert.Equal(t, "editing", info.Lock.Comment)
	assert.True(t, when.Equal(info.Lock.Date))

	info, err = r.ReadInfo(ctx, "g")
	require.NoError(t, err)
	assert.Nil(t, info.Lock)

	assert.True(t, wcerrors.HasCode(r.LockAdd(ctx, "f", LockInfo{}), wcerrors.ErrInvalidArgument))
	assert.True(t, wcerrors.IsPathNotFound(r.LockAdd(ctx, "missing", LockInfo{Token: "t"})))

	require.NoError(t, r.LockRemove(ctx, "f"))
	info, err = r.ReadInfo(ctx, "f")
	require.NoError(t, err)
	assert.Nil(t, info.Lock)
}
