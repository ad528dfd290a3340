package db

import (
	"context"
	"time"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/skel"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// CommitParams describe a completed commit.
type CommitParams struct {
	NewRevision   int64
	ChangedDate   time.Time
	ChangedAuthor string

	// Checksum, when set, is the committed text of the commit root.
	Checksum string

	KeepChangelists bool
	// KeepLocks retains repository locks on committed nodes.
	KeepLocks bool

	WorkItems []WorkItem
}

// location of a committed path in the new BASE.
type committedLoc struct {
	reposID   int64
	reposPath string
}

// GlobalCommit folds every WORKING layer and local property edit in p's
// subtree into BASE at params.NewRevision. Additions become normal BASE
// nodes at the location below their committed parent, deletions leave a
// not-present BASE node at their root, and moves lose their bookkeeping.
func (r *Root) GlobalCommit(ctx context.Context, p string, params CommitParams) error {
	if err := validate(p); err != nil {
		return err
	}
	if params.NewRevision <= 0 {
		return wcerrors.NewInvalidArgumentError(p, "invalid commit revision %d", params.NewRevision)
	}
	return r.withTx(ctx, "commit", p, func(t *txn) error {
		return t.globalCommit(p, params)
	})
}

func (t *txn) globalCommit(p string, params CommitParams) error {
	conflicted, err := store.Exists(t.actuals().
		Scopes(store.InSubtree("local_relpath", p)).Where("conflict_data IS NOT NULL"))
	if err != nil {
		return err
	}
	if conflicted {
		return wcerrors.NewUnexpectedStatusError(p, "can't commit '%s' while it has unresolved conflicts", p)
	}

	rows, err := t.subtreeRows(p, 0)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return wcerrors.NewPathNotFoundError(p)
	}
	actuals, err := store.All[store.ActualNode](t.actuals().Scopes(store.InSubtree("local_relpath", p)))
	if err != nil {
		return err
	}
	actualByPath := make(map[string]*store.ActualNode, len(actuals))
	for i := range actuals {
		actualByPath[actuals[i].LocalRelpath] = &actuals[i]
	}

	// Moves leaving or entering the subtree become plain copies and deletes.
	if err := t.clearMovesAcross(p); err != nil {
		return err
	}

	locs := make(map[string]committedLoc)
	deleted := make(map[string]bool)
	changed := ChangeInfo{Revision: params.NewRevision, Date: params.ChangedDate, Author: params.ChangedAuthor}
	var committed []committedLoc

	// Rows are ordered by relpath, so parents are visited before children.
	for _, top := range topRows(rows) {
		q := top.LocalRelpath
		if q != p && deleted[relpath.Dirname(q)] {
			deleted[q] = true
			base, err := t.baseRow(q)
			if err != nil {
				return err
			}
			if base != nil && base.ReposID != nil && base.ReposPath != nil {
				committed = append(committed, committedLoc{reposID: *base.ReposID, reposPath: *base.ReposPath})
			}
			if err := t.nodes().Where("local_relpath = ?", q).Delete(&store.Node{}).Error; err != nil {
				return err
			}
			continue
		}

		pres := Presence(top.Presence)
		actual := actualByPath[q]
		switch {
		case top.OpDepth == 0:
			loc := committedLoc{reposID: store.Deref(top.ReposID), reposPath: store.Deref(top.ReposPath)}
			locs[q] = loc
			if actual == nil || actual.Properties == nil || !pres.IsLive() {
				continue
			}
			base := cloneNode(&top)
			base.Properties = actual.Properties
			stampCommitted(base, changed)
			if err := t.putNode(base); err != nil {
				return err
			}
			committed = append(committed, loc)

		case pres.IsDeleteMarker():
			loc, err := t.commitLocation(q, locs)
			if err != nil {
				return err
			}
			deleted[q] = true
			if err := t.nodes().Where("local_relpath = ?", q).Delete(&store.Node{}).Error; err != nil {
				return err
			}
			if err := t.putNode(&store.Node{
				LocalRelpath: q,
				ReposID:      &loc.reposID,
				ReposPath:    store.StrPtr(loc.reposPath),
				Revision:     store.Int64Ptr(params.NewRevision),
				Presence:     string(PresenceNotPresent),
				Kind:         top.Kind,
			}); err != nil {
				return err
			}
			committed = append(committed, loc)

		case pres.IsLive():
			loc, err := t.commitLocation(q, locs)
			if err != nil {
				return err
			}
			base := cloneNode(&top)
			base.OpDepth = 0
			base.Presence = string(PresenceNormal)
			base.ReposID = &loc.reposID
			base.ReposPath = store.StrPtr(loc.reposPath)
			base.MovedHere, base.MovedTo = false, nil
			if actual != nil && actual.Properties != nil {
				base.Properties = actual.Properties
			}
			if base.Properties == nil {
				base.Properties = skel.MarshalProps(Props{})
			}
			if q == p && params.Checksum != "" {
				base.Checksum = store.StrPtr(params.Checksum)
			}
			stampCommitted(base, changed)
			if err := t.nodes().Where("local_relpath = ?", q).Delete(&store.Node{}).Error; err != nil {
				return err
			}
			if err := t.putNode(base); err != nil {
				return err
			}
			locs[q] = loc
			committed = append(committed, loc)

		default:
			// Excluded in WORKING: nothing reaches the repository.
			if err := t.nodes().Where("local_relpath = ? AND op_depth > 0", q).Delete(&store.Node{}).Error; err != nil {
				return err
			}
		}
	}

	for _, a := range actuals {
		a.Properties = nil
		if !params.KeepChangelists {
			a.Changelist = nil
		}
		if a.Changelist != nil {
			has, err := t.hasRows(a.LocalRelpath)
			if err != nil {
				return err
			}
			if !has {
				a.Changelist = nil
			}
		}
		if err := t.putActual(&a); err != nil {
			return err
		}
	}

	if !params.KeepLocks {
		for _, loc := range committed {
			if err := t.tx.Where("repos_id = ? AND repos_relpath = ?", loc.reposID, loc.reposPath).
				Delete(&store.Lock{}).Error; err != nil {
				return err
			}
		}
	}

	logger.DebugCtx(t.ctx, "commit folded into BASE",
		logger.KeyPath, p, logger.KeyRevision, params.NewRevision, logger.KeyRows, len(committed))
	return t.addWork(params.WorkItems)
}

// stampCommitted marks n as committed in changed.Revision.
func stampCommitted(n *store.Node, changed ChangeInfo) {
	n.Revision = store.Int64Ptr(changed.Revision)
	n.ChangedRevision = store.Int64Ptr(changed.Revision)
	n.ChangedDate = toMicros(changed.Date)
	n.ChangedAuthor = optString(changed.Author)
}

// commitLocation returns the repository location q commits to: below its
// committed parent, or, for the commit root, below the nearest BASE
// ancestor.
func (t *txn) commitLocation(q string, locs map[string]committedLoc) (committedLoc, error) {
	if parent, ok := locs[relpath.Dirname(q)]; ok && q != "" {
		return committedLoc{
			reposID:   parent.reposID,
			reposPath: relpath.Join(parent.reposPath, relpath.Basename(q)),
		}, nil
	}
	base, err := t.baseRow(q)
	if err != nil {
		return committedLoc{}, err
	}
	if base != nil && base.ReposID != nil && base.ReposPath != nil {
		return committedLoc{reposID: *base.ReposID, reposPath: *base.ReposPath}, nil
	}
	loc, err := t.effectiveLocation(q)
	if err != nil {
		return committedLoc{}, err
	}
	id, err := t.reposIDFor(&Origin{RootURL: loc.RootURL, UUID: loc.UUID})
	if err != nil {
		return committedLoc{}, err
	}
	return committedLoc{reposID: id, reposPath: loc.Relpath}, nil
}

// clearMovesAcross drops move bookkeeping that links p's subtree with the
// rest of the working copy.
func (t *txn) clearMovesAcross(p string) error {
	moves, err := store.All[store.Node](t.nodes().
		Where("moved_to IS NOT NULL").Order("local_relpath ASC"))
	if err != nil {
		return err
	}
	for _, row := range moves {
		srcInside := relpath.IsAncestor(p, row.LocalRelpath)
		dstInside := relpath.IsAncestor(p, *row.MovedTo)
		switch {
		case srcInside && !dstInside:
			if err := t.setMovedHere(*row.MovedTo, false); err != nil {
				return err
			}
		case !srcInside && dstInside:
			if err := t.setMovedTo(row.LocalRelpath, row.OpDepth, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
