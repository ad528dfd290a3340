package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
)

func TestOpCopy_BaseTree(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "A/B/", "A/B/g")
	require.NoError(t, r.OpSetProps(ctx, "A/f", Props{"local": "edit"}, nil))

	require.NoError(t, r.OpCopy(ctx, "A", "C"))

	info, err := r.ReadInfo(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, StatusCopied, info.Status)
	assert.True(t, info.OpRoot)
	require.NotNil(t, info.Original)
	assert.Equal(t, "A", info.Original.Relpath)
	assert.Equal(t, int64(1), info.Original.Revision)

	info, err = r.ReadInfo(ctx, "C/B/g")
	require.NoError(t, err)
	assert.Equal(t, StatusCopied, info.Status)
	assert.Equal(t, 1, info.OpDepth)
	assert.False(t, info.OpRoot)
	assert.Equal(t, "sha1$A/B/g", info.Checksum)
	assert.Equal(t, "A/B/g", info.Original.Relpath)

	// Local property edits travel with the copy.
	props, err := r.ReadProps(ctx, "C/f")
	require.NoError(t, err)
	assert.Equal(t, Props{"local": "edit"}, props)
	pristine, err := r.ReadPristineProps(ctx, "C/f")
	require.NoError(t, err)
	assert.Equal(t, Props{}, pristine)

	add, err := r.ScanAddition(ctx, "C/B/g")
	require.NoError(t, err)
	assert.Equal(t, StatusCopied, add.Status)
	assert.Equal(t, "C", add.OpRoot)
	assert.Equal(t, "C/B/g", add.Repos.Relpath)
	assert.Equal(t, "A", add.Original.Relpath)
}

func TestOpCopy_FreshAddIsPlainAdd(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()

	require.NoError(t, r.OpAddFile(ctx, "new", Props{"k": "v"}))
	require.NoError(t, r.OpCopy(ctx, "new", "cp"))

	info, err := r.ReadInfo(ctx, "cp")
	require.NoError(t, err)
	assert.Equal(t, StatusAdded, info.Status)
	assert.Nil(t, info.Original)
	rows := rowsOf(t, r, "cp")
	require.Len(t, rows, 1)
	assert.Equal(t, string(PresenceNormal), rows[0].Presence)
	assert.Nil(t, rows[0].ReposID)

	props, err := r.ReadProps(ctx, "cp")
	require.NoError(t, err)
	assert.Equal(t, Props{"k": "v"}, props)
}

func TestOpCopy_DeletedChildBecomesNotPresent(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "A/g")
	require.NoError(t, r.OpDelete(ctx, "A/g", ""))

	require.NoError(t, r.OpCopy(ctx, "A", "C"))

	info, err := r.ReadInfo(ctx, "C/g")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, info.Status)

	del, err := r.ScanDeletion(ctx, "C/g")
	require.NoError(t, err)
	assert.Equal(t, "C/g", del.WorkDelRelpath)
	assert.Empty(t, del.BaseDelRelpath)
}

func TestOpCopy_Refusals(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "B/")
	require.NoError(t, r.BaseAddExcluded(ctx, "A/secret", loc("A/secret"), KindFile, true))

	t.Run("IntoItself", func(t *testing.T) {
		assert.True(t, wcerrors.HasCode(r.OpCopy(ctx, "A", "A/sub"), wcerrors.ErrInvalidArgument))
	})

	t.Run("Root", func(t *testing.T) {
		assert.True(t, wcerrors.HasCode(r.OpCopy(ctx, "A", ""), wcerrors.ErrInvalidArgument))
	})

	t.Run("DestinationVersioned", func(t *testing.T) {
		assert.True(t, wcerrors.HasCode(r.OpCopy(ctx, "A/f", "B"), wcerrors.ErrPathUnexpectedStatus))
	})

	t.Run("ParentMissing", func(t *testing.T) {
		assert.True(t, wcerrors.IsPathNotFound(r.OpCopy(ctx, "A/f", "nowhere/f")))
	})

	t.Run("ServerExcluded", func(t *testing.T) {
		assert.True(t, wcerrors.HasCode(r.OpCopy(ctx, "A", "C"), wcerrors.ErrPathUnexpectedStatus))
		_, err := r.ReadInfo(ctx, "C")
		assert.True(t, wcerrors.IsPathNotFound(err), "refused copy must not leave rows")
	})

	t.Run("SourceMissing", func(t *testing.T) {
		assert.True(t, wcerrors.IsPathNotFound(r.OpCopy(ctx, "nothing", "B/x")))
	})
}

func TestOpCopyDir_EndToEnd(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()

	params := CopyParams{
		Props:   Props{},
		Changed: ChangeInfo{Revision: 1},
		Origin:  Origin{RootURL: testReposURL, UUID: testReposUUID, Relpath: "", Revision: 1},
	}
	require.NoError(t, r.OpCopyDir(ctx, "A", params, DepthInfinity, nil))

	info, err := r.ReadInfo(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, StatusCopied, info.Status)

	require.NoError(t, r.OpDelete(ctx, "A", ""))
	_, err = r.ReadInfo(ctx, "A")
	assert.True(t, wcerrors.IsPathNotFound(err))
}

func TestOpCopyFile_FoldsIntoCopiedParent(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()

	dir := CopyParams{
		Props:  Props{},
		Origin: Origin{RootURL: testReposURL, UUID: testReposUUID, Relpath: "trunk", Revision: 3},
	}
	require.NoError(t, r.OpCopyDir(ctx, "A", dir, DepthInfinity, []string{"f"}))

	placeholder, err := r.ReadInfo(ctx, "A/f")
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, placeholder.Status)

	t.Run("MatchingOrigin", func(t *testing.T) {
		file := CopyParams{
			Props:  Props{},
			Origin: Origin{RootURL: testReposURL, UUID: testReposUUID, Relpath: "trunk/f", Revision: 3},
		}
		require.NoError(t, r.OpCopyFile(ctx, "A/f", file, "sha1$ff"))
		info, err := r.ReadInfo(ctx, "A/f")
		require.NoError(t, err)
		assert.Equal(t, StatusCopied, info.Status)
		assert.Equal(t, 1, info.OpDepth)
		assert.False(t, info.OpRoot)
	})

	t.Run("ForeignOrigin", func(t *testing.T) {
		require.NoError(t, r.OpCopyDir(ctx, "A/g", CopyParams{
			Props:  Props{},
			Origin: Origin{RootURL: testReposURL, UUID: testReposUUID, Relpath: "branches/x", Revision: 3},
		}, DepthInfinity, nil))
		info, err := r.ReadInfo(ctx, "A/g")
		require.NoError(t, err)
		assert.Equal(t, 2, info.OpDepth)
		assert.True(t, info.OpRoot)
	})
}

func TestOpMove(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "A/B/", "A/B/g")

	require.NoError(t, r.OpMove(ctx, "A", "X"))

	add, err := r.ScanAddition(ctx, "X/B/g")
	require.NoError(t, err)
	assert.Equal(t, StatusMovedHere, add.Status)
	assert.Equal(t, "X", add.OpRoot)
	assert.Equal(t, "A/B/g", add.MovedFromRelpath)
	assert.Equal(t, "A", add.MovedFromOpRoot)
	assert.Equal(t, 1, add.MovedFromOpDepth)

	from, err := r.GetMovedFromInfo(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, "A", from.Relpath)

	del, err := r.ScanDeletion(ctx, "A/B/g")
	require.NoError(t, err)
	assert.Equal(t, "A", del.BaseDelRelpath)
	assert.Equal(t, "X", del.MovedToOpRoot)
	assert.Equal(t, "X/B/g", del.MovedToRelpath)

	info, err := r.ReadInfo(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, info.Status)
	assert.Equal(t, "X", info.MovedTo)
	requireShadowed(t, r)
}

func TestOpMove_FreshAddDegradesToCopy(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	require.NoError(t, r.OpAddDirectory(ctx, "N", nil))

	require.NoError(t, r.OpMove(ctx, "N", "M"))

	info, err := r.ReadInfo(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, StatusAdded, info.Status)
	assert.False(t, info.MovedHere)

	_, err = r.ReadInfo(ctx, "N")
	assert.True(t, wcerrors.IsPathNotFound(err))
}

func TestOpDelete_MoveDestinationMustExist(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "B/")

	err := r.OpDelete(ctx, "A", "nowhere")
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrPathUnexpectedStatus))

	err = r.OpDelete(ctx, "A", "A/inside")
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrInvalidArgument))

	err = r.OpDelete(ctx, "B", "A")
	assert.True(t, wcerrors.HasCode(err, wcerrors.ErrPathUnexpectedStatus), "a BASE node is not a move destination")
}

func TestOpDelete_Refusals(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f")
	require.NoError(t, r.BaseAddExcluded(ctx, "A/secret", loc("A/secret"), KindFile, true))
	require.NoError(t, r.BaseAddExcluded(ctx, "ex", loc("ex"), KindDir, false))

	assert.True(t, wcerrors.HasCode(r.OpDelete(ctx, "", ""), wcerrors.ErrInvalidArgument))
	assert.True(t, wcerrors.HasCode(r.OpDelete(ctx, "A", ""), wcerrors.ErrPathUnexpectedStatus))
	assert.True(t, wcerrors.HasCode(r.OpDelete(ctx, "A/secret", ""), wcerrors.ErrPathUnexpectedStatus))
	assert.True(t, wcerrors.HasCode(r.OpDelete(ctx, "ex", ""), wcerrors.ErrPathUnexpectedStatus))
	assert.True(t, wcerrors.IsPathNotFound(r.OpDelete(ctx, "missing", "")))

	require.NoError(t, r.OpDelete(ctx, "A/f", ""))
	assert.True(t, wcerrors.HasCode(r.OpDelete(ctx, "A/f", ""), wcerrors.ErrPathUnexpectedStatus))
}

func TestOpDelete_ShadowInvariant(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "A/B/", "A/B/g")

	require.NoError(t, r.OpDelete(ctx, "A", ""))
	requireShadowed(t, r)

	for _, p := range []string{"A", "A/f", "A/B", "A/B/g"} {
		info, err := r.ReadInfo(ctx, p)
		require.NoError(t, err)
		assert.Equalf(t, StatusDeleted, info.Status, "status of %s", p)
		assert.Equalf(t, 1, info.OpDepth, "op_depth of %s", p)
	}

	// A replacement with its own child keeps the rest shadowed.
	require.NoError(t, r.OpAddDirectory(ctx, "A", nil))
	require.NoError(t, r.OpAddFile(ctx, "A/h", nil))
	requireShadowed(t, r)

	del, err := r.ScanDeletion(ctx, "A/B/g")
	require.NoError(t, err)
	assert.Equal(t, "A", del.BaseDelRelpath)
}

func TestOpDelete_AddedSubtreeShadowsCopy(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "A/B/", "A/B/g")
	require.NoError(t, r.OpCopy(ctx, "A", "C"))

	require.NoError(t, r.OpDelete(ctx, "C/B", ""))
	requireShadowed(t, r)

	del, err := r.ScanDeletion(ctx, "C/B/g")
	require.NoError(t, err)
	assert.Equal(t, "C/B", del.WorkDelRelpath)
	assert.Empty(t, del.BaseDelRelpath)

	rows := rowsOf(t, r, "C/B/g")
	require.Len(t, rows, 2)
	assert.Equal(t, []int{1, 2}, []int{rows[0].OpDepth, rows[1].OpDepth})
}

func TestNestedMoves(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/B/", "A/B/g")

	// Level one: a child is moved out.
	require.NoError(t, r.OpMove(ctx, "A/B", "X"))
	from, err := r.GetMovedFromInfo(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, "A/B", from.Relpath)

	del, err := r.ScanDeletion(ctx, "A/B/g")
	require.NoError(t, err)
	assert.Equal(t, "A/B", del.BaseDelRelpath)
	assert.Equal(t, "X/g", del.MovedToRelpath)

	// Level two: the parent follows; the child's move source is carried.
	require.NoError(t, r.OpMove(ctx, "A", "C"))
	from, err = r.GetMovedFromInfo(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, "C/B", from.Relpath)

	from, err = r.GetMovedFromInfo(ctx, "C")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, "A", from.Relpath)

	del, err = r.ScanDeletion(ctx, "C/B")
	require.NoError(t, err)
	assert.Equal(t, "X", del.MovedToOpRoot)

	// Level three: moving the moved parent again redirects the original.
	require.NoError(t, r.OpMove(ctx, "C", "D"))
	from, err = r.GetMovedFromInfo(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, "D/B", from.Relpath)

	from, err = r.GetMovedFromInfo(ctx, "D")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, "A", from.Relpath)

	info, err := r.ReadInfo(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "D", info.MovedTo)

	_, err = r.ReadInfo(ctx, "C")
	assert.True(t, wcerrors.IsPathNotFound(err))
	requireShadowed(t, r)
}

func TestNestedMoves_PlainDeleteDegrades(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/B/", "A/B/g")
	require.NoError(t, r.OpMove(ctx, "A/B", "X"))

	require.NoError(t, r.OpDelete(ctx, "A", ""))

	info, err := r.ReadInfo(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, StatusCopied, info.Status)
	assert.False(t, info.MovedHere)

	from, err := r.GetMovedFromInfo(ctx, "X")
	require.NoError(t, err)
	assert.Nil(t, from)
}

func TestCopyTo_OtherRoot(t *testing.T) {
	src := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, src, "A/", "A/f")
	require.NoError(t, src.OpSetProps(ctx, "A/f", Props{"p": "1"}, nil))

	dst, err := src.db.Init(ctx, "/other", InitOptions{
		ReposRootURL: "file:///elsewhere",
		Revision:     0,
	})
	require.NoError(t, err)

	require.NoError(t, src.CopyTo(ctx, "A", dst, "Z"))

	info, err := dst.ReadInfo(ctx, "Z/f")
	require.NoError(t, err)
	assert.Equal(t, StatusCopied, info.Status)
	assert.Equal(t, testReposURL, info.Original.RootURL)
	assert.Equal(t, "A/f", info.Original.Relpath)
	assert.Equal(t, "sha1$A/f", info.Checksum)
	assert.False(t, info.MovedHere)

	props, err := dst.ReadProps(ctx, "Z/f")
	require.NoError(t, err)
	assert.Equal(t, Props{"p": "1"}, props)

	// The source is untouched.
	info, err = src.ReadInfo(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, StatusNormal, info.Status)
}

func TestOpDelete_CaseDistinctSiblings(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "a/", "a/f")

	require.NoError(t, r.OpDelete(ctx, "A", ""))

	info, err := r.ReadInfo(ctx, "a/f")
	require.NoError(t, err)
	assert.Equal(t, StatusNormal, info.Status)
	assert.Len(t, rowsOf(t, r, "a/f"), 1)
	assert.Len(t, rowsOf(t, r, "a"), 1)

	info, err = r.ReadInfo(ctx, "A/f")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, info.Status)
	requireShadowed(t, r)
}

func TestOpDelete_ClearsMovedToIntoDeletedSubtree(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "X")
	require.NoError(t, r.OpAddDirectory(ctx, "C", nil))
	require.NoError(t, r.OpMove(ctx, "X", "C/Y"))

	del, err := r.ScanDeletion(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, "C/Y", del.MovedToRelpath)

	require.NoError(t, r.OpDelete(ctx, "C", ""))

	_, err = r.ReadInfo(ctx, "C/Y")
	assert.True(t, wcerrors.IsPathNotFound(err))

	del, err = r.ScanDeletion(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, del.MovedToRelpath)
	assert.Empty(t, del.MovedToOpRoot)

	info, err := r.ReadInfo(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, info.Status)
	assert.Empty(t, info.MovedTo)
}

func TestOpMove_CarriesMovedToIntoMovedSubtree(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "X", "C/")
	require.NoError(t, r.OpMove(ctx, "X", "C/Y"))

	require.NoError(t, r.OpMove(ctx, "C", "D"))

	del, err := r.ScanDeletion(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "D/Y", del.MovedToRelpath)

	info, err := r.ReadInfo(ctx, "D/Y")
	require.NoError(t, err)
	assert.True(t, info.MovedHere)
}

func TestOpMove_ReplacedCopyIsPlainCopy(t *testing.T) {
	r := newTestRoot(t)
	ctx := context.Background()
	checkoutTree(t, r, "A/", "A/f", "B/", "B/g")
	require.NoError(t, r.OpDelete(ctx, "A", ""))
	require.NoError(t, r.OpCopy(ctx, "B", "A"))

	require.NoError(t, r.OpMove(ctx, "A", "M"))

	info, err := r.ReadInfo(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, StatusCopied, info.Status)
	assert.False(t, info.MovedHere)

	from, err := r.GetMovedFromInfo(ctx, "M")
	require.NoError(t, err)
	assert.Nil(t, from)

	info, err = r.ReadInfo(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, info.Status)
	assert.Empty(t, info.MovedTo)

	del, err := r.ScanDeletion(ctx, "A/f")
	require.NoError(t, err)
	assert.Empty(t, del.MovedToRelpath)
	requireShadowed(t, r)
}
