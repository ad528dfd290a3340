package db

import (
	"context"
	"sort"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/skel"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// ReadInfo returns the composite view of p.
//
// The operative row is the one with the highest op_depth. A WORKING row is
// mapped to deleted (not-present, base-deleted) or to the added family,
// where moved-here and copy-from information on the row itself refine added
// into moved-here or copied.
func (r *Root) ReadInfo(ctx context.Context, p string) (*Info, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var info *Info
	err := r.withTx(ctx, "read_info", p, func(t *txn) error {
		var err error
		info, err = t.readInfo(p)
		return err
	})
	return info, err
}

func (t *txn) readInfo(p string) (*Info, error) {
	rows, err := t.rowsFor(p)
	if err != nil {
		return nil, err
	}
	actual, err := t.actualRow(p)
	if err != nil {
		return nil, err
	}
	return t.composeInfo(p, rows, actual)
}

// composeInfo merges the rows of one path (highest op_depth first) with its
// actual row.
func (t *txn) composeInfo(p string, rows []store.Node, actual *store.ActualNode) (*Info, error) {
	if len(rows) == 0 {
		if actual == nil {
			return nil, wcerrors.NewPathNotFoundError(p)
		}
		// An actual row without nodes may only exist to carry a tree conflict.
		if actual.Conflict == nil {
			return nil, wcerrors.NewCorruptError(p, "corrupt data for '%s': actual row without node", p)
		}
		return &Info{
			Relpath:    p,
			Status:     StatusNormal,
			Kind:       KindUnknown,
			Conflicted: true,
			Changelist: store.Deref(actual.Changelist),
		}, nil
	}

	top := &rows[0]
	info := &Info{
		Relpath:      p,
		Kind:         Kind(top.Kind),
		OpDepth:      top.OpDepth,
		Depth:        Depth(store.Deref(top.Depth)),
		Checksum:     store.Deref(top.Checksum),
		Target:       store.Deref(top.SymlinkTarget),
		RecordedSize: store.Deref(top.TranslatedSize),
		RecordedTime: fromMicros(top.LastModTime),
		MovedHere:    top.MovedHere,
		Changed: ChangeInfo{
			Revision: store.Deref(top.ChangedRevision),
			Date:     fromMicros(top.ChangedDate),
			Author:   store.Deref(top.ChangedAuthor),
		},
	}

	if top.OpDepth == 0 {
		info.Status = baseStatus(Presence(top.Presence))
		loc, err := t.location(top)
		if err != nil {
			return nil, err
		}
		info.Repos = loc
		info.Revision = loc.Revision
	} else {
		info.Status = workingStatus(Presence(top.Presence))
		info.OpRoot = top.OpDepth == relpath.Depth(p)
		origin, err := t.origin(top)
		if err != nil {
			return nil, err
		}
		info.Original = origin
		if info.Status == StatusAdded {
			switch {
			case top.MovedHere:
				info.Status = StatusMovedHere
			case origin != nil:
				info.Status = StatusCopied
			}
		}
	}

	// Plain additions have no pristine text; BASE files and copies must.
	if Presence(top.Presence) == PresenceNormal && top.Kind == string(KindFile) &&
		top.Checksum == nil && (top.OpDepth == 0 || top.ReposID != nil) {
		return nil, wcerrors.NewCorruptError(p, "file node at op_depth %d has no checksum", top.OpDepth)
	}

	info.HadProps = len(top.Properties) > 0 && string(top.Properties) != "()"

	working := 0
	var base *store.Node
	for i := range rows {
		row := &rows[i]
		if row.OpDepth == 0 {
			base = row
		} else {
			working++
		}
		if info.MovedTo == "" && row.MovedTo != nil {
			info.MovedTo = *row.MovedTo
		}
	}
	info.HaveBase = base != nil
	info.HaveWork = working > 0
	info.HaveMoreWork = working > 1

	if base != nil {
		info.FileExternal = base.FileExternal
		if Presence(base.Presence) == PresenceNormal {
			lock, err := t.lockFor(base)
			if err != nil {
				return nil, err
			}
			info.Lock = lock
		}
	}

	if actual != nil {
		info.Changelist = store.Deref(actual.Changelist)
		info.Conflicted = actual.Conflict != nil
		info.PropsMod = actual.Properties != nil
	}
	return info, nil
}

// lockFor returns the repository lock on a BASE row's location.
func (t *txn) lockFor(base *store.Node) (*LockInfo, error) {
	if base.ReposID == nil || base.ReposPath == nil {
		return nil, nil
	}
	row, err := store.First[store.Lock](t.tx.Model(&store.Lock{}).
		Where("repos_id = ? AND repos_relpath = ?", *base.ReposID, *base.ReposPath))
	if err != nil || row == nil {
		return nil, err
	}
	return &LockInfo{
		Token:   row.LockToken,
		Owner:   store.Deref(row.LockOwner),
		Comment: store.Deref(row.LockComment),
		Date:    fromMicros(row.LockDate),
	}, nil
}

// BaseGetInfo returns the BASE view of p.
func (r *Root) BaseGetInfo(ctx context.Context, p string) (*Info, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var info *Info
	err := r.withTx(ctx, "base_get_info", p, func(t *txn) error {
		base, err := t.baseRow(p)
		if err != nil {
			return err
		}
		if base == nil {
			return wcerrors.NewPathNotFoundError(p)
		}
		info, err = t.composeInfo(p, []store.Node{*base}, nil)
		return err
	})
	return info, err
}

// ReadProps returns the actual properties of p: local edits when present,
// otherwise the pristine set.
func (r *Root) ReadProps(ctx context.Context, p string) (Props, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var props Props
	err := r.withTx(ctx, "read_props", p, func(t *txn) error {
		actual, err := t.actualRow(p)
		if err != nil {
			return err
		}
		top, err := t.topRow(p)
		if err != nil {
			return err
		}
		if top == nil {
			return wcerrors.NewPathNotFoundError(p)
		}
		if !Presence(top.Presence).IsLive() {
			return wcerrors.NewUnexpectedStatusError(p, "the node '%s' has no properties in state %s", p, top.Presence)
		}
		if actual != nil && actual.Properties != nil {
			props, err = skel.UnmarshalProps(actual.Properties)
			if err != nil {
				return wcerrors.NewCorruptError(p, "unreadable actual properties: %v", err)
			}
			return nil
		}
		props, err = propsOf(top)
		return err
	})
	return props, err
}

// ReadPristineProps returns the properties of the node as it would be
// committed. For a deleted node that is the set of the node being deleted.
func (r *Root) ReadPristineProps(ctx context.Context, p string) (Props, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var props Props
	err := r.withTx(ctx, "read_pristine_props", p, func(t *txn) error {
		var err error
		props, err = t.pristineProps(p)
		return err
	})
	return props, err
}

func (t *txn) pristineProps(p string) (Props, error) {
	top, err := t.topRow(p)
	if err != nil {
		return nil, err
	}
	if top == nil {
		return nil, wcerrors.NewPathNotFoundError(p)
	}
	row := top
	if Presence(top.Presence) == PresenceBaseDeleted {
		row, err = t.rowBelow(p, top.OpDepth)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, wcerrors.NewCorruptError(p, "delete marker at op_depth %d shadows nothing", top.OpDepth)
		}
	}
	if !Presence(row.Presence).IsLive() {
		return nil, wcerrors.NewUnexpectedStatusError(p, "the node '%s' has no pristine properties in state %s", p, row.Presence)
	}
	return propsOf(row)
}

// ReadChildren returns the names of the children of dir across all layers,
// including actual-only (conflict) children, sorted.
func (r *Root) ReadChildren(ctx context.Context, dir string) ([]string, error) {
	if err := validate(dir); err != nil {
		return nil, err
	}
	var names []string
	err := r.withTx(ctx, "read_children", dir, func(t *txn) error {
		var err error
		names, err = t.children(dir)
		return err
	})
	return names, err
}

func (t *txn) children(dir string) ([]string, error) {
	var paths []string
	if err := t.nodes().Where("parent_relpath = ?", dir).
		Distinct("local_relpath").Pluck("local_relpath", &paths).Error; err != nil {
		return nil, err
	}
	var actualPaths []string
	if err := t.actuals().Where("parent_relpath = ?", dir).
		Pluck("local_relpath", &actualPaths).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(paths)+len(actualPaths))
	var names []string
	for _, p := range append(paths, actualPaths...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		names = append(names, relpath.Basename(p))
	}
	sort.Strings(names)
	return names, nil
}

// ReadChildrenInfo returns the composite view of every child of dir,
// keyed by child name, using one query per table.
func (r *Root) ReadChildrenInfo(ctx context.Context, dir string) (map[string]*Info, error) {
	if err := validate(dir); err != nil {
		return nil, err
	}
	var out map[string]*Info
	err := r.withTx(ctx, "read_children_info", dir, func(t *txn) error {
		rows, err := store.All[store.Node](t.nodes().Where("parent_relpath = ?", dir).
			Order("local_relpath ASC, op_depth DESC"))
		if err != nil {
			return err
		}
		actuals, err := store.All[store.ActualNode](t.actuals().Where("parent_relpath = ?", dir))
		if err != nil {
			return err
		}
		infos, err := t.composeBatch(rows, actuals)
		if err != nil {
			return err
		}
		out = make(map[string]*Info, len(infos))
		for p, info := range infos {
			out[relpath.Basename(p)] = info
		}
		return nil
	})
	return out, err
}

// ReadSubtreeInfo returns the composite view of p and every descendant,
// keyed by relpath. It is the recursive batch form of ReadInfo.
func (r *Root) ReadSubtreeInfo(ctx context.Context, p string) (map[string]*Info, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var out map[string]*Info
	err := r.withTx(ctx, "read_subtree_info", p, func(t *txn) error {
		rows, err := t.subtreeRows(p, 0)
		if err != nil {
			return err
		}
		actuals, err := store.All[store.ActualNode](t.actuals().Scopes(store.InSubtree("local_relpath", p)))
		if err != nil {
			return err
		}
		out, err = t.composeBatch(rows, actuals)
		if err == nil && len(out) == 0 {
			err = wcerrors.NewPathNotFoundError(p)
		}
		return err
	})
	return out, err
}

// composeBatch groups rows (ordered by relpath, op_depth desc) per path and
// composes each with its actual row.
func (t *txn) composeBatch(rows []store.Node, actuals []store.ActualNode) (map[string]*Info, error) {
	actualByPath := make(map[string]*store.ActualNode, len(actuals))
	for i := range actuals {
		actualByPath[actuals[i].LocalRelpath] = &actuals[i]
	}

	out := make(map[string]*Info)
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].LocalRelpath == rows[start].LocalRelpath {
			end++
		}
		p := rows[start].LocalRelpath
		info, err := t.composeInfo(p, rows[start:end], actualByPath[p])
		if err != nil {
			return nil, err
		}
		out[p] = info
		delete(actualByPath, p)
		start = end
	}

	for p, actual := range actualByPath {
		info, err := t.composeInfo(p, nil, actual)
		if err != nil {
			return nil, err
		}
		out[p] = info
	}
	return out, nil
}

// ReadConflict returns the conflict recorded on p, or nil.
func (r *Root) ReadConflict(ctx context.Context, p string) (*Conflict, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var c *Conflict
	err := r.withTx(ctx, "read_conflict", p, func(t *txn) error {
		var err error
		c, err = t.conflict(p)
		return err
	})
	return c, err
}

func (t *txn) conflict(p string) (*Conflict, error) {
	actual, err := t.actualRow(p)
	if err != nil || actual == nil {
		return nil, err
	}
	c, err := skel.UnmarshalConflict(actual.Conflict)
	if err != nil {
		return nil, wcerrors.NewCorruptError(p, "unreadable conflict: %v", err)
	}
	return c, nil
}
