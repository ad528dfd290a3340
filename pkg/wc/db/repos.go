package db

import (
	"context"
	"fmt"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

type reposInfo struct {
	rootURL string
	uuid    string
}

// ensureRepos returns the id of the repository row for rootURL, creating it
// on first use. It runs in its own short transaction so that ids are only
// cached once they are durable.
func (r *Root) ensureRepos(ctx context.Context, rootURL, reposUUID string) (int64, error) {
	if rootURL == "" {
		return 0, wcerrors.NewInvalidArgumentError("", "repository root URL is required")
	}
	rootURL = relpath.CanonicalURL(rootURL)

	r.reposMu.RLock()
	id, ok := r.reposByURL[rootURL]
	r.reposMu.RUnlock()
	if ok {
		return id, nil
	}

	db := r.db.store.DB().WithContext(ctx)
	row, err := store.First[store.Repository](db.Where("root = ?", rootURL))
	if err != nil {
		return 0, fmt.Errorf("lookup repository: %w", err)
	}
	if row == nil {
		row = &store.Repository{Root: rootURL, UUID: reposUUID}
		if err := db.Create(row).Error; err != nil {
			if !store.IsUniqueConstraintError(err) {
				return 0, fmt.Errorf("create repository: %w", err)
			}
			// Lost a race with another writer; the row exists now.
			row, err = store.First[store.Repository](db.Where("root = ?", rootURL))
			if err != nil || row == nil {
				return 0, fmt.Errorf("lookup repository after conflict: %w", err)
			}
		}
	} else if reposUUID != "" && row.UUID != reposUUID {
		return 0, wcerrors.NewInvalidArgumentError("",
			"repository '%s' has UUID '%s', not '%s'", rootURL, row.UUID, reposUUID)
	}

	r.cacheRepos(row)
	return row.ID, nil
}

func (r *Root) cacheRepos(row *store.Repository) {
	r.reposMu.Lock()
	r.reposByURL[row.Root] = row.ID
	r.reposByID[row.ID] = reposInfo{rootURL: row.Root, uuid: row.UUID}
	r.reposMu.Unlock()
}

// reposInfo resolves a repository id through the root's cache.
func (t *txn) reposInfo(id int64) (reposInfo, error) {
	t.root.reposMu.RLock()
	info, ok := t.root.reposByID[id]
	t.root.reposMu.RUnlock()
	if ok {
		return info, nil
	}

	row, err := store.First[store.Repository](t.tx.Model(&store.Repository{}).Where("id = ?", id))
	if err != nil {
		return reposInfo{}, err
	}
	if row == nil {
		return reposInfo{}, wcerrors.NewCorruptError("", "no repository with id %d", id)
	}
	t.root.cacheRepos(row)
	return reposInfo{rootURL: row.Root, uuid: row.UUID}, nil
}

// location builds the ReposLocation stored on a row.
func (t *txn) location(n *store.Node) (ReposLocation, error) {
	if n.ReposID == nil || n.ReposPath == nil {
		return ReposLocation{}, nil
	}
	info, err := t.reposInfo(*n.ReposID)
	if err != nil {
		return ReposLocation{}, err
	}
	return ReposLocation{
		RootURL:  info.rootURL,
		UUID:     info.uuid,
		Relpath:  *n.ReposPath,
		Revision: store.Deref(n.Revision),
	}, nil
}

// origin returns the copy-from origin recorded on a working row, or nil.
func (t *txn) origin(n *store.Node) (*Origin, error) {
	if n.OpDepth == 0 || n.ReposID == nil || n.ReposPath == nil {
		return nil, nil
	}
	loc, err := t.location(n)
	if err != nil {
		return nil, err
	}
	return &Origin{RootURL: loc.RootURL, UUID: loc.UUID, Relpath: loc.Relpath, Revision: loc.Revision}, nil
}
