package db

import (
	"context"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// External is an externals definition registered in the working copy.
type External struct {
	Relpath string
	// DefiningDir is the directory whose property defines the external.
	DefiningDir string
	Kind        Kind
	Presence    Presence

	Repos        ReposLocation
	PegRevision  int64
	OperationRev int64
}

// ExternalAdd registers (or replaces) the external at ext.Relpath.
func (r *Root) ExternalAdd(ctx context.Context, ext External) error {
	if err := validate(ext.Relpath, ext.DefiningDir); err != nil {
		return err
	}
	if ext.Relpath == "" || !relpath.IsStrictAncestor(ext.DefiningDir, ext.Relpath) {
		return wcerrors.NewInvalidArgumentError(ext.Relpath, "external must live below its defining directory '%s'", ext.DefiningDir)
	}
	if ext.Presence == "" {
		ext.Presence = PresenceNormal
	}
	reposID, err := r.ensureRepos(ctx, ext.Repos.RootURL, ext.Repos.UUID)
	if err != nil {
		return err
	}
	return r.withTx(ctx, "external_add", ext.Relpath, func(t *txn) error {
		return t.tx.Save(&store.External{
			WCID:                   t.wcID(),
			LocalRelpath:           ext.Relpath,
			ParentRelpath:          relpath.Dirname(ext.Relpath),
			ReposID:                reposID,
			Presence:               string(ext.Presence),
			Kind:                   string(ext.Kind),
			DefLocalRelpath:        ext.DefiningDir,
			DefReposRelpath:        ext.Repos.Relpath,
			DefOperationalRevision: optInt64(ext.OperationRev),
			DefRevision:            optInt64(ext.PegRevision),
		}).Error
	})
}

// ExternalRemove unregisters the external at p.
func (r *Root) ExternalRemove(ctx context.Context, p string) error {
	if err := validate(p); err != nil {
		return err
	}
	return r.withTx(ctx, "external_remove", p, func(t *txn) error {
		res := t.tx.Where("wc_id = ? AND local_relpath = ?", t.wcID(), p).Delete(&store.External{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return wcerrors.NewPathNotFoundError(p)
		}
		return nil
	})
}

// ReadExternal returns the external registered at p.
func (r *Root) ReadExternal(ctx context.Context, p string) (*External, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var ext *External
	err := r.withTx(ctx, "read_external", p, func(t *txn) error {
		row, err := store.First[store.External](t.tx.Model(&store.External{}).
			Scopes(store.ForWC(t.wcID())).Where("local_relpath = ?", p))
		if err != nil {
			return err
		}
		if row == nil {
			return wcerrors.NewPathNotFoundError(p)
		}
		ext, err = t.external(row)
		return err
	})
	return ext, err
}

// ExternalsDefinedBelow returns every external defined at or below dir,
// ordered by relpath.
func (r *Root) ExternalsDefinedBelow(ctx context.Context, dir string) ([]External, error) {
	if err := validate(dir); err != nil {
		return nil, err
	}
	var out []External
	err := r.withTx(ctx, "externals_below", dir, func(t *txn) error {
		rows, err := store.All[store.External](t.tx.Model(&store.External{}).
			Scopes(store.ForWC(t.wcID()), store.InSubtree("def_local_relpath", dir)).
			Order("local_relpath ASC"))
		if err != nil {
			return err
		}
		for i := range rows {
			ext, err := t.external(&rows[i])
			if err != nil {
				return err
			}
			out = append(out, *ext)
		}
		return nil
	})
	return out, err
}

func (t *txn) external(row *store.External) (*External, error) {
	info, err := t.reposInfo(row.ReposID)
	if err != nil {
		return nil, err
	}
	return &External{
		Relpath:     row.LocalRelpath,
		DefiningDir: row.DefLocalRelpath,
		Kind:        KindOf(row.Kind),
		Presence:    Presence(row.Presence),
		Repos: ReposLocation{
			RootURL:  info.rootURL,
			UUID:     info.uuid,
			Relpath:  row.DefReposRelpath,
			Revision: store.Deref(row.DefRevision),
		},
		PegRevision:  store.Deref(row.DefRevision),
		OperationRev: store.Deref(row.DefOperationalRevision),
	}, nil
}
