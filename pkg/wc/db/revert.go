package db

import (
	"context"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/skel"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// ConflictWriter gives a MoveResolver access to conflicts inside the
// revert's transaction.
type ConflictWriter interface {
	ReadConflict(relpath string) (*Conflict, error)
	MarkConflict(relpath string, c *Conflict) error
}

// MoveResolver is invoked when a revert discards a tree conflict caused by
// a local delete while the node is still part of a moved-away subtree.
// moveSrcOpRoot is the op-root of that move's source.
type MoveResolver interface {
	RaiseMovedAway(ctx context.Context, w ConflictWriter, moveSrcOpRoot string, c *Conflict) error
}

// MarkerResolver records a moved-away tree conflict on the move's source
// op-root unless one is already recorded there.
type MarkerResolver struct{}

// RaiseMovedAway implements MoveResolver.
func (MarkerResolver) RaiseMovedAway(_ context.Context, w ConflictWriter, moveSrcOpRoot string, c *Conflict) error {
	existing, err := w.ReadConflict(moveSrcOpRoot)
	if err != nil {
		return err
	}
	if existing != nil && existing.Tree != nil {
		return nil
	}
	raised := &Conflict{Operation: c.Operation}
	if existing != nil {
		raised.Text, raised.Props = existing.Text, existing.Props
	}
	action := skel.ActionEdit
	if c.Tree != nil && c.Tree.Action != "" {
		action = c.Tree.Action
	}
	raised.Tree = &skel.TreeConflict{
		Reason:        skel.ReasonMovedAway,
		Action:        action,
		MoveSrcOpRoot: moveSrcOpRoot,
	}
	return w.MarkConflict(moveSrcOpRoot, raised)
}

// txConflicts adapts a transaction to ConflictWriter.
type txConflicts struct {
	t *txn
}

func (w txConflicts) ReadConflict(p string) (*Conflict, error) {
	return w.t.conflict(p)
}

func (w txConflicts) MarkConflict(p string, c *Conflict) error {
	return w.t.markConflict(p, c)
}

// OpRevert discards local changes on p. DepthEmpty reverts only p and
// refuses when p roots an operation that still has children in its layer;
// DepthInfinity reverts the whole subtree. cancel, when not nil, is polled
// between items of the recursive variant.
func (r *Root) OpRevert(ctx context.Context, p string, depth Depth, cancel func() error) error {
	if err := validate(p); err != nil {
		return err
	}
	switch depth {
	case DepthEmpty:
		return r.withTx(ctx, "revert", p, func(t *txn) error {
			return t.revertNode(p)
		})
	case DepthInfinity:
		return r.withTx(ctx, "revert_recursive", p, func(t *txn) error {
			return t.revertRecursive(p, cancel)
		})
	default:
		return wcerrors.NewInvalidArgumentError(p, "unsupported revert depth '%s'", depth)
	}
}

// deletedConflict is a tree conflict whose reason is a local delete.
type deletedConflict struct {
	relpath  string
	conflict *Conflict
}

func (t *txn) revertNode(p string) error {
	top, err := t.topRow(p)
	if err != nil {
		return err
	}
	actual, err := t.actualRow(p)
	if err != nil {
		return err
	}
	if top == nil && actual == nil {
		return wcerrors.NewPathNotFoundError(p)
	}

	raised, err := t.deletedConflicts(p, false)
	if err != nil {
		return err
	}

	if top != nil && top.OpDepth > 0 {
		k := relpath.Depth(p)
		if top.OpDepth != k {
			return wcerrors.NewInvalidOperationDepthError(p, "can't revert '%s' without reverting parent", p)
		}
		blocked, err := store.Exists(t.nodes().Where("parent_relpath = ?", p).
			Where("(op_depth > ? OR (op_depth = ? AND presence <> ?))", k, k, string(PresenceBaseDeleted)))
		if err != nil {
			return err
		}
		if blocked {
			return wcerrors.NewInvalidOperationDepthError(p, "can't revert '%s' without reverting children", p)
		}

		if err := t.breakMoves(p, []store.Node{*top}, nil); err != nil {
			return err
		}
		// Deletes of children become operations of their own.
		if err := t.nodes().Scopes(store.StrictlyBelow("local_relpath", p)).
			Where("op_depth = ?", k).Update("op_depth", k+1).Error; err != nil {
			return err
		}
		if err := t.deleteRow(p, k); err != nil {
			return err
		}
	}

	if err := t.revertActual(p); err != nil {
		return err
	}
	return t.raiseMovedAway(p, raised)
}

func (t *txn) revertRecursive(p string, cancel func() error) error {
	top, err := t.topRow(p)
	if err != nil {
		return err
	}
	actual, err := t.actualRow(p)
	if err != nil {
		return err
	}
	if top == nil && actual == nil {
		return wcerrors.NewPathNotFoundError(p)
	}

	k := relpath.Depth(p)
	if top != nil && top.OpDepth > 0 && top.OpDepth != k {
		return wcerrors.NewInvalidOperationDepthError(p, "can't revert '%s' without reverting parent", p)
	}
	selectDepth := max(k, 1)

	raised, err := t.deletedConflicts(p, true)
	if err != nil {
		return err
	}

	rows, err := t.subtreeRows(p, selectDepth)
	if err != nil {
		return err
	}
	if err := t.breakMoves(p, rows, cancel); err != nil {
		return err
	}
	if _, err := t.deleteSubtreeAtOrAbove(p, selectDepth); err != nil {
		return err
	}
	if err := t.pruneActualSubtree(p, cancel); err != nil {
		return err
	}
	if err := t.deleteOrphanWCLocks(p); err != nil {
		return err
	}
	return t.raiseMovedAway(p, raised)
}

// breakMoves turns moves touching the reverted rows into plain copies and
// deletes: a reverted destination clears its source's moved_to, and a
// reverted source clears moved_here on a destination outside p.
func (t *txn) breakMoves(p string, rows []store.Node, cancel func() error) error {
	for i := range rows {
		row := &rows[i]
		if err := t.checkCancel(row.LocalRelpath, cancel); err != nil {
			return err
		}
		if row.MovedHere && row.OpDepth == relpath.Depth(row.LocalRelpath) {
			src, err := store.First[store.Node](t.nodes().Where("moved_to = ?", row.LocalRelpath))
			if err != nil {
				return err
			}
			if src != nil && !relpath.IsAncestor(p, src.LocalRelpath) {
				if err := t.setMovedTo(src.LocalRelpath, src.OpDepth, nil); err != nil {
					return err
				}
			}
		}
		if row.MovedTo != nil && !relpath.IsAncestor(p, *row.MovedTo) {
			if err := t.setMovedHere(*row.MovedTo, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// revertActual clears local property edits and conflicts of p. The
// changelist survives while p keeps node rows.
func (t *txn) revertActual(p string) error {
	a, err := t.actualRow(p)
	if err != nil || a == nil {
		return err
	}
	has, err := t.hasRows(p)
	if err != nil {
		return err
	}
	a.Properties, a.Conflict = nil, nil
	if !has {
		a.Changelist = nil
	}
	return t.putActual(a)
}

// deleteOrphanWCLocks drops persisted working-copy locks in p's subtree
// whose directory no longer has node rows.
func (t *txn) deleteOrphanWCLocks(p string) error {
	return t.tx.Model(&store.WCLock{}).Scopes(store.ForWC(t.wcID())).
		Scopes(store.InSubtree("local_dir_relpath", p)).
		Where("NOT EXISTS (SELECT 1 FROM nodes WHERE nodes.wc_id = wc_lock.wc_id AND nodes.local_relpath = wc_lock.local_dir_relpath)").
		Delete(&store.WCLock{}).Error
}

// deletedConflicts collects tree conflicts caused by a local delete at p,
// or in p's subtree when recursive.
func (t *txn) deletedConflicts(p string, recursive bool) ([]deletedConflict, error) {
	q := t.actuals().Where("conflict_data IS NOT NULL")
	if recursive {
		q = q.Scopes(store.InSubtree("local_relpath", p))
	} else {
		q = q.Where("local_relpath = ?", p)
	}
	actuals, err := store.All[store.ActualNode](q)
	if err != nil {
		return nil, err
	}
	var out []deletedConflict
	for _, a := range actuals {
		c, err := skel.UnmarshalConflict(a.Conflict)
		if err != nil {
			return nil, wcerrors.NewCorruptError(a.LocalRelpath, "unreadable conflict: %v", err)
		}
		if c != nil && c.Tree != nil && c.Tree.Reason == skel.ReasonDeleted {
			out = append(out, deletedConflict{relpath: a.LocalRelpath, conflict: c})
		}
	}
	return out, nil
}

// raiseMovedAway hands each discarded delete conflict whose node is still
// inside a moved-away subtree to the resolver.
func (t *txn) raiseMovedAway(p string, conflicts []deletedConflict) error {
	for _, dc := range conflicts {
		top, err := t.topRow(dc.relpath)
		if err != nil {
			return err
		}
		if top == nil || top.OpDepth == 0 || !Presence(top.Presence).IsDeleteMarker() {
			continue
		}
		del, err := t.scanDeletion(dc.relpath)
		if err != nil {
			return err
		}
		if del.MovedToOpRoot == "" {
			continue
		}
		src, err := t.movedFrom(del.MovedToOpRoot, del.MovedToOpRoot)
		if err != nil {
			return err
		}
		if src == nil || relpath.IsAncestor(p, src.OpRoot) {
			continue
		}
		if err := t.root.db.resolver.RaiseMovedAway(t.ctx, txConflicts{t: t}, src.OpRoot, dc.conflict); err != nil {
			return err
		}
	}
	return nil
}
