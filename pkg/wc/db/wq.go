package db

import (
	"context"
	"fmt"

	"github.com/marmos91/wcstore/pkg/metrics"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/skel"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// WorkKind names a deferred filesystem operation.
type WorkKind string

const (
	// WorkFileRemove removes a working file.
	WorkFileRemove WorkKind = "file-remove"
	// WorkDirRemove removes a working directory, recursively when requested.
	WorkDirRemove WorkKind = "dir-remove"
	// WorkFileInstall installs the pristine text with Checksum as a working file.
	WorkFileInstall WorkKind = "file-install"
)

// WorkItem is one deferred filesystem side effect. Mutators enqueue work
// items in the same transaction as the row changes that require them.
type WorkItem struct {
	Kind      WorkKind
	Relpath   string
	Checksum  string
	Recursive bool
}

// FileRemove returns a work item removing the working file at relpath.
func FileRemove(relpath string) WorkItem {
	return WorkItem{Kind: WorkFileRemove, Relpath: relpath}
}

// DirRemove returns a work item removing the working directory at relpath.
func DirRemove(relpath string, recursive bool) WorkItem {
	return WorkItem{Kind: WorkDirRemove, Relpath: relpath, Recursive: recursive}
}

// FileInstall returns a work item installing pristine text at relpath.
func FileInstall(relpath, checksum string) WorkItem {
	return WorkItem{Kind: WorkFileInstall, Relpath: relpath, Checksum: checksum}
}

// MarshalWorkItem encodes w as a skel: (<kind> <relpath> [<checksum>|<recursive>]).
func MarshalWorkItem(w WorkItem) []byte {
	s := skel.List(skel.String(string(w.Kind)), skel.String(w.Relpath))
	switch w.Kind {
	case WorkFileInstall:
		s.Append(skel.String(w.Checksum))
	case WorkDirRemove:
		recursive := int64(0)
		if w.Recursive {
			recursive = 1
		}
		s.Append(skel.Int(recursive))
	}
	return skel.Marshal(s)
}

// UnmarshalWorkItem decodes a work item produced by MarshalWorkItem.
func UnmarshalWorkItem(data []byte) (WorkItem, error) {
	s, err := skel.Unmarshal(data)
	if err != nil {
		return WorkItem{}, err
	}
	if s.IsAtom || s.Len() < 2 {
		return WorkItem{}, fmt.Errorf("%w: work item needs kind and path", skel.ErrMalformed)
	}
	w := WorkItem{Kind: WorkKind(s.At(0).Text()), Relpath: s.At(1).Text()}
	switch w.Kind {
	case WorkFileRemove:
	case WorkFileInstall:
		if s.Len() != 3 {
			return WorkItem{}, fmt.Errorf("%w: file-install needs a checksum", skel.ErrMalformed)
		}
		w.Checksum = s.At(2).Text()
	case WorkDirRemove:
		if s.Len() != 3 {
			return WorkItem{}, fmt.Errorf("%w: dir-remove needs a recursion flag", skel.ErrMalformed)
		}
		n, err := s.At(2).Int64()
		if err != nil {
			return WorkItem{}, err
		}
		w.Recursive = n != 0
	default:
		return WorkItem{}, fmt.Errorf("%w: unknown work item %q", skel.ErrMalformed, w.Kind)
	}
	return w, nil
}

// QueuedWork is a work item together with its queue id.
type QueuedWork struct {
	ID   int64
	Item WorkItem
}

// addWork enqueues items inside the current transaction.
func (t *txn) addWork(items []WorkItem) error {
	for _, w := range items {
		row := &store.WorkQueueItem{WCID: t.wcID(), Work: MarshalWorkItem(w)}
		if err := t.tx.Create(row).Error; err != nil {
			return fmt.Errorf("enqueue work: %w", err)
		}
	}
	return nil
}

func (t *txn) workQueue() *store.WorkQueueItem {
	return &store.WorkQueueItem{}
}

// WQAdd enqueues work items.
func (r *Root) WQAdd(ctx context.Context, items ...WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	var n int64
	err := r.withTx(ctx, "wq_add", "", func(t *txn) error {
		if err := t.addWork(items); err != nil {
			return err
		}
		var err error
		n, err = t.wqLen()
		return err
	})
	if err == nil {
		metrics.SetWorkQueueDepth(r.db.metrics, int(n))
	}
	return err
}

// WQFetchNext acknowledges completedID (when non-zero) and returns the
// pending item with the lowest id, or nil when the queue is drained.
func (r *Root) WQFetchNext(ctx context.Context, completedID int64) (*QueuedWork, error) {
	var (
		next *QueuedWork
		n    int64
	)
	err := r.withTx(ctx, "wq_fetch_next", "", func(t *txn) error {
		if completedID != 0 {
			res := t.tx.Model(t.workQueue()).Scopes(store.ForWC(t.wcID())).
				Where("id = ?", completedID).Delete(t.workQueue())
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return wcerrors.NewInvalidArgumentError("", "no work item with id %d", completedID)
			}
		}

		row, err := store.First[store.WorkQueueItem](t.tx.Model(t.workQueue()).
			Scopes(store.ForWC(t.wcID())).Order("id ASC"))
		if err != nil {
			return err
		}
		if row != nil {
			item, err := UnmarshalWorkItem(row.Work)
			if err != nil {
				return wcerrors.NewCorruptError("", "unreadable work item %d: %v", row.ID, err)
			}
			next = &QueuedWork{ID: row.ID, Item: item}
		}
		n, err = t.wqLen()
		return err
	})
	if err == nil {
		metrics.SetWorkQueueDepth(r.db.metrics, int(n))
	}
	return next, err
}

// WQLen returns the number of pending work items.
func (r *Root) WQLen(ctx context.Context) (int64, error) {
	var n int64
	err := r.withTx(ctx, "wq_len", "", func(t *txn) error {
		var err error
		n, err = t.wqLen()
		return err
	})
	return n, err
}

func (t *txn) wqLen() (int64, error) {
	var n int64
	err := t.tx.Model(t.workQueue()).Scopes(store.ForWC(t.wcID())).Count(&n).Error
	return n, err
}
