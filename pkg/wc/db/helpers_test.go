package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/wcstore/internal/relpath"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

const (
	testReposURL  = "file:///r"
	testReposUUID = "4b6f1d0e-5c1a-4b8c-9a3e-0c1f2a3b4c5d"
)

func newTestStore(t *testing.T) *store.GORMStore {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newTestRoot initializes an empty working copy of testReposURL at r1.
func newTestRoot(t *testing.T) *Root {
	t.Helper()
	d := New(newTestStore(t), Options{})
	r, err := d.Init(context.Background(), "/wc", InitOptions{
		ReposRootURL: testReposURL,
		ReposUUID:    testReposUUID,
		Revision:     1,
	})
	require.NoError(t, err)
	require.NoError(t, r.BaseAddDirectory(context.Background(), "", loc(""), Props{}, ChangeInfo{Revision: 1}, DepthInfinity, nil))
	return r
}

func loc(p string) ReposLocation {
	return ReposLocation{RootURL: testReposURL, UUID: testReposUUID, Relpath: p, Revision: 1}
}

// checkoutTree populates BASE with directories (trailing '/') and files.
func checkoutTree(t *testing.T, r *Root, paths ...string) {
	t.Helper()
	ctx := context.Background()
	for _, p := range paths {
		if n := len(p); n > 0 && p[n-1] == '/' {
			p = p[:n-1]
			require.NoError(t, r.BaseAddDirectory(ctx, p, loc(p), Props{}, ChangeInfo{Revision: 1, Author: "alice"}, DepthInfinity, nil))
			continue
		}
		require.NoError(t, r.BaseAddFile(ctx, p, loc(p), Props{}, ChangeInfo{Revision: 1, Author: "alice"}, "sha1$"+p))
	}
}

// rowsOf returns every node row of p, lowest op_depth first.
func rowsOf(t *testing.T, r *Root, p string) []store.Node {
	t.Helper()
	var rows []store.Node
	require.NoError(t, r.db.store.DB().
		Where("wc_id = ? AND local_relpath = ?", r.wcID, p).
		Order("op_depth ASC").Find(&rows).Error)
	return rows
}

// actualCount returns the number of actual rows of the root.
func actualCount(t *testing.T, r *Root) int64 {
	t.Helper()
	var n int64
	require.NoError(t, r.db.store.DB().Model(&store.ActualNode{}).Where("wc_id = ?", r.wcID).Count(&n).Error)
	return n
}

// requireShadowed checks that no path below a WORKING delete at depth k
// shows a present row between the delete and a deeper operation.
func requireShadowed(t *testing.T, r *Root) {
	t.Helper()
	var rows []store.Node
	require.NoError(t, r.db.store.DB().Where("wc_id = ?", r.wcID).
		Order("local_relpath ASC, op_depth ASC").Find(&rows).Error)

	byPath := make(map[string][]store.Node)
	for _, row := range rows {
		byPath[row.LocalRelpath] = append(byPath[row.LocalRelpath], row)
	}
	for _, row := range rows {
		if row.OpDepth == 0 || !Presence(row.Presence).IsDeleteMarker() {
			continue
		}
		for p, prows := range byPath {
			if !relpath.IsStrictAncestor(row.LocalRelpath, p) {
				continue
			}
			var top *store.Node
			for i := range prows {
				if prows[i].OpDepth <= row.OpDepth {
					top = &prows[i]
				}
			}
			if top == nil || top.OpDepth == 0 && !Presence(top.Presence).IsLive() {
				continue
			}
			require.Truef(t, top.OpDepth == row.OpDepth || !Presence(top.Presence).IsLive(),
				"'%s' is present at op_depth %d below the delete of '%s' at %d",
				p, top.OpDepth, row.LocalRelpath, row.OpDepth)
		}
	}
}
