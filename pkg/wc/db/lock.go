package db

import (
	"context"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/internal/relpath"
	"github.com/marmos91/wcstore/pkg/metrics"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// LevelsInfinity locks a directory and everything below it.
const LevelsInfinity = -1

// ownedLock is a working-copy lock held through this root. Nested locks
// are granted under an owned covering lock and have no persisted row.
type ownedLock struct {
	relpath string
	levels  int
	nested  bool
}

// covers reports whether a lock at dir with levels reaches p.
func covers(dir string, levels int, p string) bool {
	if !relpath.IsAncestor(dir, p) {
		return false
	}
	return levels == LevelsInfinity || relpath.Depth(p)-relpath.Depth(dir) <= levels
}

// ObtainLock locks p for levels directory levels (LevelsInfinity for the
// whole subtree). Locks of other owners inside the requested scope fail the
// call unless steal is set, in which case they are removed. A covering
// ancestor lock of another owner always fails with WC_LOCKED; one owned by
// this root makes the call succeed.
func (r *Root) ObtainLock(ctx context.Context, p string, levels int, steal bool) error {
	if err := validate(p); err != nil {
		return err
	}
	if levels < LevelsInfinity {
		return wcerrors.NewInvalidArgumentError(p, "invalid lock levels %d", levels)
	}

	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	var nested bool
	err := r.withTx(ctx, "obtain_lock", p, func(t *txn) error {
		locks := t.tx.Model(&store.WCLock{}).Scopes(store.ForWC(t.wcID()))

		inside, err := store.All[store.WCLock](locks.Scopes(store.InSubtree("local_dir_relpath", p)))
		if err != nil {
			return err
		}
		for _, l := range inside {
			if !covers(p, levels, l.LocalDirRelpath) || l.OwnerID == r.ownerID {
				continue
			}
			if !steal {
				return wcerrors.NewLockedError(p, l.LocalDirRelpath)
			}
			logger.WarnCtx(t.ctx, "stealing working copy lock",
				logger.KeyPath, l.LocalDirRelpath, logger.KeyLockOwner, l.OwnerID)
			if err := t.tx.Where("wc_id = ? AND local_dir_relpath = ?", l.WCID, l.LocalDirRelpath).
				Delete(&store.WCLock{}).Error; err != nil {
				return err
			}
		}

		var ancestors []string
		for cur := p; cur != ""; {
			cur = relpath.Dirname(cur)
			ancestors = append(ancestors, cur)
		}
		if len(ancestors) > 0 {
			above, err := store.All[store.WCLock](t.tx.Model(&store.WCLock{}).Scopes(store.ForWC(t.wcID())).
				Where("local_dir_relpath IN ?", ancestors))
			if err != nil {
				return err
			}
			for _, l := range above {
				if !covers(l.LocalDirRelpath, l.LockedLevels, p) {
					continue
				}
				if l.OwnerID != r.ownerID {
					return wcerrors.NewLockedError(p, l.LocalDirRelpath)
				}
				nested = true
				return nil
			}
		}

		existing, err := store.First[store.WCLock](t.tx.Model(&store.WCLock{}).Scopes(store.ForWC(t.wcID())).
			Where("local_dir_relpath = ?", p))
		if err != nil {
			return err
		}
		if existing != nil && existing.OwnerID == r.ownerID {
			existing.LockedLevels = levels
			return t.tx.Save(existing).Error
		}
		return t.tx.Create(&store.WCLock{
			WCID:            t.wcID(),
			LocalDirRelpath: p,
			LockedLevels:    levels,
			OwnerID:         r.ownerID,
		}).Error
	})
	if err != nil {
		if wcerrors.IsLocked(err) {
			metrics.RecordLockConflict(r.db.metrics)
			logger.WarnCtx(ctx, "working copy lock conflict", logger.KeyPath, p, logger.Err(err))
		}
		return err
	}

	r.rememberLock(ownedLock{relpath: p, levels: levels, nested: nested})
	return nil
}

// rememberLock records l in the in-memory cache, replacing an entry for the
// same path. lockMu must be held.
func (r *Root) rememberLock(l ownedLock) {
	for i := range r.ownedLocks {
		if r.ownedLocks[i].relpath == l.relpath {
			if r.ownedLocks[i].nested && !l.nested {
				r.ownedLocks[i] = l
			}
			return
		}
	}
	r.ownedLocks = append(r.ownedLocks, l)
}

// ReleaseLock releases the lock this root holds exactly at p.
func (r *Root) ReleaseLock(ctx context.Context, p string) error {
	if err := validate(p); err != nil {
		return err
	}

	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	idx := -1
	for i, l := range r.ownedLocks {
		if l.relpath == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		return wcerrors.NewNotLockedError(p)
	}
	if !r.ownedLocks[idx].nested {
		err := r.withTx(ctx, "release_lock", p, func(t *txn) error {
			return t.tx.Where("wc_id = ? AND local_dir_relpath = ? AND owner_id = ?", r.wcID, p, r.ownerID).
				Delete(&store.WCLock{}).Error
		})
		if err != nil {
			return err
		}
	}
	r.ownedLocks = append(r.ownedLocks[:idx], r.ownedLocks[idx+1:]...)
	return nil
}

// OwnsLock reports whether this root holds a lock on p: exactly at p when
// exact is set, otherwise any lock whose scope reaches p. Only the
// in-memory cache is consulted.
func (r *Root) OwnsLock(p string, exact bool) bool {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	for _, l := range r.ownedLocks {
		if exact {
			if l.relpath == p {
				return true
			}
			continue
		}
		if covers(l.relpath, l.levels, p) {
			return true
		}
	}
	return false
}

// IsLocked reports whether any persisted lock, held by any owner, covers p.
// It is how a stale lock left by a crashed process is detected.
func (r *Root) IsLocked(ctx context.Context, p string) (bool, error) {
	if err := validate(p); err != nil {
		return false, err
	}
	var locked bool
	err := r.withTx(ctx, "is_locked", p, func(t *txn) error {
		candidates := []string{p}
		for cur := p; cur != ""; {
			cur = relpath.Dirname(cur)
			candidates = append(candidates, cur)
		}
		rows, err := store.All[store.WCLock](t.tx.Model(&store.WCLock{}).Scopes(store.ForWC(t.wcID())).
			Where("local_dir_relpath IN ?", candidates))
		if err != nil {
			return err
		}
		for _, l := range rows {
			if covers(l.LocalDirRelpath, l.LockedLevels, p) {
				locked = true
				return nil
			}
		}
		return nil
	})
	return locked, err
}

// releaseAll removes every persisted lock owned by this root and empties
// the cache.
func (r *Root) releaseAll(ctx context.Context) error {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if len(r.ownedLocks) == 0 {
		return nil
	}
	err := r.withTx(ctx, "release_all_locks", "", func(t *txn) error {
		return t.tx.Where("wc_id = ? AND owner_id = ?", r.wcID, r.ownerID).Delete(&store.WCLock{}).Error
	})
	r.ownedLocks = nil
	return err
}
