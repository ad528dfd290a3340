package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/bufpool"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
)

// LocalAbspath maps a relpath to its native absolute path below the root.
func (r *Root) LocalAbspath(p string) string {
	return filepath.Join(r.abspath, filepath.FromSlash(p))
}

// RunWorkQueue drains the work queue, applying each item to the working
// files below the root. An item is acknowledged only after it has been
// applied, so an interrupted run resumes with the failed item. Returns the
// number of items applied.
func (r *Root) RunWorkQueue(ctx context.Context, texts *pristine.Store) (int, error) {
	var (
		done      int
		completed int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		next, err := r.WQFetchNext(ctx, completed)
		if err != nil {
			return done, err
		}
		if completed != 0 {
			done++
		}
		if next == nil {
			return done, nil
		}
		if err := r.applyWork(ctx, texts, next.Item); err != nil {
			return done, fmt.Errorf("work item %d (%s %q): %w", next.ID, next.Item.Kind, next.Item.Relpath, err)
		}
		logger.DebugCtx(ctx, "work item applied",
			logger.KeyWorkItemID, next.ID, logger.KeyOperation, string(next.Item.Kind), logger.KeyPath, next.Item.Relpath)
		completed = next.ID
	}
}

func (r *Root) applyWork(ctx context.Context, texts *pristine.Store, w WorkItem) error {
	target := r.LocalAbspath(w.Relpath)
	switch w.Kind {
	case WorkFileRemove:
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil

	case WorkDirRemove:
		if w.Recursive {
			return os.RemoveAll(target)
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil

	case WorkFileInstall:
		if texts == nil {
			return errors.New("no pristine store to install from")
		}
		return installFile(ctx, texts, w.Checksum, target)

	default:
		return fmt.Errorf("unknown work item kind %q", w.Kind)
	}
}

// installFile writes the pristine text to a temporary sibling of target
// and renames it into place.
func installFile(ctx context.Context, texts *pristine.Store, checksum, target string) error {
	rc, err := texts.Read(ctx, checksum)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".wcstore-install-*")
	if err != nil {
		return err
	}
	if _, err := bufpool.Copy(tmp, rc, -1); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
