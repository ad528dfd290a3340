package db

import (
	"context"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// OpDelete deletes p and its subtree. When movedTo is not empty the delete
// is the source half of a move to movedTo, which must already exist.
func (r *Root) OpDelete(ctx context.Context, p, movedTo string, work ...WorkItem) error {
	if err := validate(p, movedTo); err != nil {
		return err
	}
	return r.withTx(ctx, "delete", p, func(t *txn) error {
		if err := t.delete(p, movedTo); err != nil {
			return err
		}
		return t.addWork(work)
	})
}

// movedAway is a move whose source lies inside a subtree being deleted.
type movedAway struct {
	src string
	dst string
}

func (t *txn) delete(p, movedTo string) error {
	if p == "" {
		return wcerrors.NewInvalidArgumentError(p, "can't delete the working copy root")
	}
	top, err := t.topRow(p)
	if err != nil {
		return err
	}
	if top == nil {
		return wcerrors.NewPathNotFoundError(p)
	}

	pres := Presence(top.Presence)
	switch {
	case pres == PresenceExcluded || pres == PresenceServerExcluded:
		return wcerrors.NewUnexpectedStatusError(p, "can't delete '%s' in state %s", p, pres)
	case top.OpDepth > 0 && pres.IsDeleteMarker(), top.OpDepth == 0 && pres == PresenceNotPresent:
		return wcerrors.NewUnexpectedStatusError(p, "'%s' is already deleted", p)
	}
	serverExcluded, err := store.Exists(t.nodes().
		Scopes(store.StrictlyBelow("local_relpath", p)).
		Where("presence = ?", string(PresenceServerExcluded)))
	if err != nil {
		return err
	}
	if serverExcluded {
		return wcerrors.NewUnexpectedStatusError(p, "can't delete '%s' because it contains nodes excluded by the server", p)
	}
	if movedTo != "" {
		if relpath.IsAncestor(p, movedTo) {
			return wcerrors.NewInvalidArgumentError(movedTo, "can't move '%s' into itself", p)
		}
		dstTop, err := t.topRow(movedTo)
		if err != nil {
			return err
		}
		if dstTop == nil || dstTop.OpDepth == 0 || !Presence(dstTop.Presence).IsLive() {
			return wcerrors.NewUnexpectedStatusError(movedTo, "move destination '%s' is not a local addition", movedTo)
		}
	}

	k := relpath.Depth(p)
	opRoot := top.OpDepth == k
	addWork := !opRoot
	if opRoot {
		below, err := t.rowBelow(p, k)
		if err != nil {
			return err
		}
		addWork = below != nil && Presence(below.Presence).IsLive()
	}

	// Collect move bookkeeping before rows disappear.
	nested, err := t.movesBelow(p, k)
	if err != nil {
		return err
	}
	ownMovedTo := top.MovedTo

	if _, err := t.deleteSubtreeAtOrAbove(p, k); err != nil {
		return err
	}
	if addWork {
		if err := t.shadowSubtree(p, k); err != nil {
			return err
		}
		switch {
		case movedTo != "":
			if err := t.setMovedTo(p, k, &movedTo); err != nil {
				return err
			}
			if err := t.setMovedHere(movedTo, true); err != nil {
				return err
			}
		case ownMovedTo != nil:
			// The replaced node stays moved away.
			if err := t.setMovedTo(p, k, ownMovedTo); err != nil {
				return err
			}
		}
	}

	if err := t.carryNestedMoves(p, movedTo, nested); err != nil {
		return err
	}
	if err := t.fixMovedToInto(p, movedTo); err != nil {
		return err
	}

	if err := t.pruneActualAfterDelete(p); err != nil {
		return err
	}
	return t.removeExternalsBelow(p, KindOf(top.Kind) == KindDir)
}

// KindOf converts a stored kind string.
func KindOf(s string) Kind {
	switch Kind(s) {
	case KindFile, KindDir, KindSymlink:
		return Kind(s)
	default:
		return KindUnknown
	}
}

// movesBelow lists the moves whose source rows lie strictly below p at or
// above depth k.
func (t *txn) movesBelow(p string, k int) ([]movedAway, error) {
	rows, err := store.All[store.Node](t.nodes().
		Scopes(store.StrictlyBelow("local_relpath", p)).
		Where("op_depth >= ? AND moved_to IS NOT NULL", k).
		Order("local_relpath ASC"))
	if err != nil {
		return nil, err
	}
	moves := make([]movedAway, 0, len(rows))
	for _, row := range rows {
		moves = append(moves, movedAway{src: row.LocalRelpath, dst: *row.MovedTo})
	}
	return moves, nil
}

// shadowSubtree adds a delete marker at depth k for every path of p's
// subtree whose operative row is present.
func (t *txn) shadowSubtree(p string, k int) error {
	rows, err := t.subtreeRows(p, 0)
	if err != nil {
		return err
	}
	for _, top := range topRows(rows) {
		if !Presence(top.Presence).IsLive() {
			continue
		}
		if err := t.putNode(&store.Node{
			LocalRelpath: top.LocalRelpath,
			OpDepth:      k,
			Presence:     string(PresenceBaseDeleted),
			Kind:         top.Kind,
		}); err != nil {
			return err
		}
	}
	return nil
}

// carryNestedMoves re-expresses moves out of a deleted subtree. When the
// subtree itself moves, each nested source is re-rooted below movedTo;
// otherwise the nested moves degrade to plain deletes.
func (t *txn) carryNestedMoves(p, movedTo string, nested []movedAway) error {
	for _, mv := range nested {
		dst := mv.dst
		if relpath.IsAncestor(p, dst) {
			if movedTo == "" {
				continue
			}
			dst = relpath.Rebase(dst, p, movedTo)
		}

		if movedTo == "" {
			logger.DebugCtx(t.ctx, "nested move degraded to delete",
				logger.KeySrcPath, mv.src, logger.KeyDstPath, dst)
			if err := t.setMovedHere(dst, false); err != nil {
				return err
			}
			continue
		}

		newSrc := relpath.Rebase(mv.src, p, movedTo)
		row, err := t.topRow(newSrc)
		if err != nil {
			return err
		}
		if row == nil {
			continue
		}
		if err := t.setMovedTo(newSrc, row.OpDepth, &dst); err != nil {
			return err
		}
	}
	return nil
}

// fixMovedToInto rewrites the moved_to of every source whose destination
// lay in p's now deleted subtree. When p moves to movedTo the pointers
// follow it, provided the new location is still moved-here; otherwise the
// source becomes a plain delete.
func (t *txn) fixMovedToInto(p, movedTo string) error {
	sources, err := store.All[store.Node](t.nodes().Scopes(store.InSubtree("moved_to", p)))
	if err != nil {
		return err
	}
	for _, src := range sources {
		var target *string
		if movedTo != "" {
			dst := relpath.Rebase(*src.MovedTo, p, movedTo)
			row, err := t.topWorkingRow(dst)
			if err != nil {
				return err
			}
			if row != nil && row.MovedHere {
				target = &dst
			}
		}
		if target == nil {
			logger.DebugCtx(t.ctx, "move source lost its destination",
				logger.KeySrcPath, src.LocalRelpath, logger.KeyDstPath, *src.MovedTo)
		}
		if err := t.setMovedTo(src.LocalRelpath, src.OpDepth, target); err != nil {
			return err
		}
	}
	return nil
}

// setMovedTo updates the moved_to pointer of one row.
func (t *txn) setMovedTo(p string, depth int, movedTo *string) error {
	return t.nodes().Where("local_relpath = ? AND op_depth = ?", p, depth).
		Update("moved_to", movedTo).Error
}

// setMovedHere sets the moved_here flag on the layer holding dst's
// operative WORKING row, limited to dst's subtree.
func (t *txn) setMovedHere(dst string, movedHere bool) error {
	top, err := t.topWorkingRow(dst)
	if err != nil || top == nil {
		return err
	}
	return t.nodes().Scopes(store.InSubtree("local_relpath", dst)).
		Where("op_depth = ?", top.OpDepth).
		Update("moved_here", movedHere).Error
}

// pruneActualAfterDelete drops actual rows in p's subtree. Changelists
// survive on paths that still have node rows.
func (t *txn) pruneActualAfterDelete(p string) error {
	return t.pruneActualSubtree(p, nil)
}

// pruneActualSubtree clears props and conflicts on p's subtree, keeping
// changelists where node rows remain. cancel is polled per row.
func (t *txn) pruneActualSubtree(p string, cancel func() error) error {
	actuals, err := store.All[store.ActualNode](t.actuals().Scopes(store.InSubtree("local_relpath", p)))
	if err != nil {
		return err
	}
	for i := range actuals {
		a := &actuals[i]
		if err := t.checkCancel(a.LocalRelpath, cancel); err != nil {
			return err
		}
		keep := a.Changelist != nil
		if keep {
			if keep, err = t.hasRows(a.LocalRelpath); err != nil {
				return err
			}
		}
		a.Properties, a.Conflict = nil, nil
		if !keep {
			a.Changelist = nil
		}
		if err := t.putActual(a); err != nil {
			return err
		}
	}
	return nil
}

// removeExternalsBelow drops externals registered at or below p. For a
// file only the file external registered at p is removed.
func (t *txn) removeExternalsBelow(p string, dir bool) error {
	q := t.tx.Model(&store.External{}).Scopes(store.ForWC(t.wcID()))
	if dir {
		q = q.Scopes(store.InSubtree("local_relpath", p))
	} else {
		q = q.Where("local_relpath = ? AND kind = ?", p, string(KindFile))
	}
	return q.Delete(&store.External{}).Error
}

// ============================================================================
// BASE removal
// ============================================================================

// BaseRemove removes the BASE rows of p's subtree, for example after an
// update deleted it. Working rows are kept; delete markers left without
// anything to shadow are removed. Repository locks for the removed nodes
// are dropped. When notPresentRev is above zero a not-present BASE row is
// left at p.
func (r *Root) BaseRemove(ctx context.Context, p string, notPresentRev int64, work ...WorkItem) error {
	if err := validate(p); err != nil {
		return err
	}
	if p == "" {
		return wcerrors.NewInvalidArgumentError(p, "can't remove the working copy root")
	}
	return r.withTx(ctx, "base_remove", p, func(t *txn) error {
		base, err := t.baseRow(p)
		if err != nil {
			return err
		}
		if base == nil {
			return wcerrors.NewPathNotFoundError(p)
		}

		bases, err := store.All[store.Node](t.nodes().
			Scopes(store.InSubtree("local_relpath", p)).Where("op_depth = 0"))
		if err != nil {
			return err
		}
		for _, b := range bases {
			if b.ReposID == nil || b.ReposPath == nil {
				continue
			}
			if err := t.tx.Where("repos_id = ? AND repos_relpath = ?", *b.ReposID, *b.ReposPath).
				Delete(&store.Lock{}).Error; err != nil {
				return err
			}
		}

		if err := t.nodes().Scopes(store.InSubtree("local_relpath", p)).
			Where("op_depth = 0").Delete(&store.Node{}).Error; err != nil {
			return err
		}

		// Delete markers whose lowest shadowed row was BASE now shadow nothing.
		rows, err := t.subtreeRows(p, 1)
		if err != nil {
			return err
		}
		for i := len(rows) - 1; i >= 0; i-- {
			row := rows[i]
			if Presence(row.Presence) != PresenceBaseDeleted {
				continue
			}
			below, err := t.rowBelow(row.LocalRelpath, row.OpDepth)
			if err != nil {
				return err
			}
			if below == nil {
				if err := t.deleteRow(row.LocalRelpath, row.OpDepth); err != nil {
					return err
				}
			}
		}

		if notPresentRev > 0 {
			if err := t.putNode(&store.Node{
				LocalRelpath: p,
				ReposID:      base.ReposID,
				ReposPath:    base.ReposPath,
				Revision:     store.Int64Ptr(notPresentRev),
				Presence:     string(PresenceNotPresent),
				Kind:         base.Kind,
			}); err != nil {
				return err
			}
		}

		if err := t.pruneActualSubtreeOrphans(p); err != nil {
			return err
		}
		return t.addWork(work)
	})
}

// pruneActualSubtreeOrphans removes actual rows in p's subtree that lost
// every node row and carry no conflict.
func (t *txn) pruneActualSubtreeOrphans(p string) error {
	actuals, err := store.All[store.ActualNode](t.actuals().Scopes(store.InSubtree("local_relpath", p)))
	if err != nil {
		return err
	}
	for i := range actuals {
		a := &actuals[i]
		if a.Conflict != nil {
			continue
		}
		has, err := t.hasRows(a.LocalRelpath)
		if err != nil {
			return err
		}
		if !has {
			a.Properties, a.Changelist = nil, nil
			if err := t.putActual(a); err != nil {
				return err
			}
		}
	}
	return nil
}
