package db

import (
	"context"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// LockAdd caches the repository lock held on p's BASE location.
func (r *Root) LockAdd(ctx context.Context, p string, lock LockInfo) error {
	if err := validate(p); err != nil {
		return err
	}
	if lock.Token == "" {
		return wcerrors.NewInvalidArgumentError(p, "lock token is required")
	}
	return r.withTx(ctx, "lock_add", p, func(t *txn) error {
		base, err := t.lockableBase(p)
		if err != nil {
			return err
		}
		row := &store.Lock{
			ReposID:      *base.ReposID,
			ReposRelpath: *base.ReposPath,
			LockToken:    lock.Token,
			LockOwner:    optString(lock.Owner),
			LockComment:  optString(lock.Comment),
			LockDate:     toMicros(lock.Date),
		}
		return t.tx.Save(row).Error
	})
}

// LockRemove drops the cached repository lock on p's BASE location.
func (r *Root) LockRemove(ctx context.Context, p string) error {
	if err := validate(p); err != nil {
		return err
	}
	return r.withTx(ctx, "lock_remove", p, func(t *txn) error {
		base, err := t.lockableBase(p)
		if err != nil {
			return err
		}
		return t.tx.Where("repos_id = ? AND repos_relpath = ?", *base.ReposID, *base.ReposPath).
			Delete(&store.Lock{}).Error
	})
}

func (t *txn) lockableBase(p string) (*store.Node, error) {
	base, err := t.baseRow(p)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, wcerrors.NewPathNotFoundError(p)
	}
	if Presence(base.Presence) != PresenceNormal || base.ReposID == nil || base.ReposPath == nil {
		return nil, wcerrors.NewUnexpectedStatusError(p, "'%s' has no repository node to lock", p)
	}
	return base, nil
}
