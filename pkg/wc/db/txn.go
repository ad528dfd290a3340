package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/skel"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// txn is the statement layer used inside one engine transaction.
type txn struct {
	tx   *gorm.DB
	root *Root
	ctx  context.Context
}

func (t *txn) wcID() int64 {
	return t.root.wcID
}

func (t *txn) nodes() *gorm.DB {
	return t.tx.Model(&store.Node{}).Scopes(store.ForWC(t.root.wcID))
}

func (t *txn) actuals() *gorm.DB {
	return t.tx.Model(&store.ActualNode{}).Scopes(store.ForWC(t.root.wcID))
}

// ============================================================================
// Node rows
// ============================================================================

// rowsFor returns every row of p, highest op_depth first.
func (t *txn) rowsFor(p string) ([]store.Node, error) {
	return store.All[store.Node](t.nodes().Where("local_relpath = ?", p).Order("op_depth DESC"))
}

// topRow returns the operative row of p, or nil.
func (t *txn) topRow(p string) (*store.Node, error) {
	return store.First[store.Node](t.nodes().Where("local_relpath = ?", p).Order("op_depth DESC"))
}

// topWorkingRow returns the highest row of p above BASE, or nil.
func (t *txn) topWorkingRow(p string) (*store.Node, error) {
	return store.First[store.Node](t.nodes().
		Where("local_relpath = ? AND op_depth > 0", p).Order("op_depth DESC"))
}

// rowAt returns the row of p at exactly depth, or nil.
func (t *txn) rowAt(p string, depth int) (*store.Node, error) {
	return store.First[store.Node](t.nodes().Where("local_relpath = ? AND op_depth = ?", p, depth))
}

// baseRow returns the BASE row of p, or nil.
func (t *txn) baseRow(p string) (*store.Node, error) {
	return t.rowAt(p, 0)
}

// rowBelow returns the highest row of p strictly below depth, or nil.
func (t *txn) rowBelow(p string, depth int) (*store.Node, error) {
	return store.First[store.Node](t.nodes().
		Where("local_relpath = ? AND op_depth < ?", p, depth).Order("op_depth DESC"))
}

// lowestWorkingAbove returns the lowest row of p strictly above depth, or nil.
func (t *txn) lowestWorkingAbove(p string, depth int) (*store.Node, error) {
	return store.First[store.Node](t.nodes().
		Where("local_relpath = ? AND op_depth > ?", p, depth).Order("op_depth ASC"))
}

// subtreeRows returns the rows of p and its descendants at or above depth.
func (t *txn) subtreeRows(p string, minDepth int) ([]store.Node, error) {
	return store.All[store.Node](t.nodes().
		Scopes(store.InSubtree("local_relpath", p)).
		Where("op_depth >= ?", minDepth).
		Order("local_relpath ASC, op_depth DESC"))
}

// putNode inserts n, replacing any row with the same key.
func (t *txn) putNode(n *store.Node) error {
	n.WCID = t.wcID()
	if n.LocalRelpath != "" && n.ParentRelpath == nil {
		n.ParentRelpath = store.StrPtr(relpath.Dirname(n.LocalRelpath))
	}
	if err := t.tx.Where("wc_id = ? AND local_relpath = ? AND op_depth = ?",
		n.WCID, n.LocalRelpath, n.OpDepth).Delete(&store.Node{}).Error; err != nil {
		return err
	}
	return t.tx.Create(n).Error
}

// deleteRow removes one row.
func (t *txn) deleteRow(p string, depth int) error {
	return t.nodes().Where("local_relpath = ? AND op_depth = ?", p, depth).Delete(&store.Node{}).Error
}

// deleteSubtreeAtOrAbove removes the rows of p and its descendants with
// op_depth >= depth.
func (t *txn) deleteSubtreeAtOrAbove(p string, depth int) (int64, error) {
	res := t.nodes().Scopes(store.InSubtree("local_relpath", p)).
		Where("op_depth >= ?", depth).Delete(&store.Node{})
	return res.RowsAffected, res.Error
}

// hasRows reports whether p has any node row.
func (t *txn) hasRows(p string) (bool, error) {
	return store.Exists(t.nodes().Where("local_relpath = ?", p))
}

// ============================================================================
// Actual rows
// ============================================================================

func (t *txn) actualRow(p string) (*store.ActualNode, error) {
	return store.First[store.ActualNode](t.actuals().Where("local_relpath = ?", p))
}

// putActual stores a, or deletes the row when a has no payload.
func (t *txn) putActual(a *store.ActualNode) error {
	a.WCID = t.wcID()
	if a.LocalRelpath != "" && a.ParentRelpath == nil {
		a.ParentRelpath = store.StrPtr(relpath.Dirname(a.LocalRelpath))
	}
	if err := t.tx.Where("wc_id = ? AND local_relpath = ?", a.WCID, a.LocalRelpath).
		Delete(&store.ActualNode{}).Error; err != nil {
		return err
	}
	if a.IsEmpty() {
		return nil
	}
	return t.tx.Create(a).Error
}

// updateActual loads (or starts) the actual row of p, applies fn and stores
// the result, pruning it when empty.
func (t *txn) updateActual(p string, fn func(a *store.ActualNode)) error {
	a, err := t.actualRow(p)
	if err != nil {
		return err
	}
	if a == nil {
		a = &store.ActualNode{LocalRelpath: p}
	}
	fn(a)
	return t.putActual(a)
}

// setActualProps records local property edits. Props equal to the pristine
// set are stored as "no modification".
func (t *txn) setActualProps(p string, props, pristine Props) error {
	var data []byte
	if props != nil && !props.Equal(pristine) {
		data = skel.MarshalProps(props)
	}
	return t.updateActual(p, func(a *store.ActualNode) {
		a.Properties = data
	})
}

// markConflict stores conflict on the actual row of p.
func (t *txn) markConflict(p string, c *Conflict) error {
	data := skel.MarshalConflict(c)
	return t.updateActual(p, func(a *store.ActualNode) {
		a.Conflict = data
	})
}

// ============================================================================
// Row conversion helpers
// ============================================================================

func propsOf(n *store.Node) (Props, error) {
	props, err := skel.UnmarshalProps(n.Properties)
	if err != nil {
		return nil, wcerrors.NewCorruptError(n.LocalRelpath, "unreadable properties at op_depth %d: %v", n.OpDepth, err)
	}
	return props, nil
}

func toMicros(tm time.Time) *int64 {
	if tm.IsZero() {
		return nil
	}
	v := tm.UnixMicro()
	return &v
}

func fromMicros(v *int64) time.Time {
	if v == nil {
		return time.Time{}
	}
	return time.UnixMicro(*v)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt64(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return &n
}

// cloneNode returns a copy of n with pointer fields shared.
func cloneNode(n *store.Node) *store.Node {
	c := *n
	return &c
}

// checkCancel polls ctx and the optional callback between items of long loops.
func (t *txn) checkCancel(p string, cancel func() error) error {
	if err := t.ctx.Err(); err != nil {
		return wcerrors.NewCancelledError(p, err)
	}
	if cancel != nil {
		if err := cancel(); err != nil {
			return wcerrors.NewCancelledError(p, err)
		}
	}
	return nil
}
