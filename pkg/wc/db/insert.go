package db

import (
	"context"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/skel"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// ============================================================================
// insert-base
// ============================================================================

// InsertBase writes the BASE row described by n together with its incomplete
// children, actual properties, conflict and work items, and keeps working
// deletes of the parent consistent with the new child.
func (r *Root) InsertBase(ctx context.Context, n *BaseNode) error {
	if err := validate(n.Relpath); err != nil {
		return err
	}
	if n.Presence == PresenceBaseDeleted {
		return wcerrors.NewInvalidArgumentError(n.Relpath, "presence '%s' is only valid above BASE", n.Presence)
	}
	if err := checkContent(n.Relpath, n.Presence, n.Content, n.Props, true); err != nil {
		return err
	}
	reposID, err := r.ensureRepos(ctx, n.Repos.RootURL, n.Repos.UUID)
	if err != nil {
		return err
	}
	return r.withTx(ctx, "insert_base", n.Relpath, func(t *txn) error {
		return t.insertBase(n, reposID)
	})
}

// checkContent enforces the representation rules shared by both inserts.
// Files with a repository origin must carry a checksum.
func checkContent(p string, presence Presence, content NodeContent, props Props, versioned bool) error {
	if content == nil {
		return wcerrors.NewInvalidArgumentError(p, "node content is required")
	}
	switch presence {
	case PresenceNormal, PresenceIncomplete, PresenceNotPresent, PresenceExcluded,
		PresenceServerExcluded, PresenceBaseDeleted:
	default:
		return wcerrors.NewInvalidArgumentError(p, "unknown presence '%s'", presence)
	}
	if fc, ok := content.(FileContent); ok && versioned && presence.IsLive() && fc.Checksum == "" {
		return wcerrors.NewCorruptError(p, "can't insert file '%s' without a checksum", p)
	}
	if props != nil && !presence.IsLive() {
		return wcerrors.NewInvalidArgumentError(p, "properties are only allowed on present nodes, not %s", presence)
	}
	return nil
}

// applyContent copies the kind-specific fields of c onto row.
func applyContent(row *store.Node, c NodeContent) {
	row.Kind = string(c.Kind())
	switch c := c.(type) {
	case DirContent:
		depth := c.Depth
		if depth == DepthUnknown {
			depth = DepthInfinity
		}
		row.Depth = store.StrPtr(string(depth))
	case FileContent:
		row.Checksum = optString(c.Checksum)
		if c.RecordedSize > 0 || !c.RecordedTime.IsZero() {
			row.TranslatedSize = store.Int64Ptr(c.RecordedSize)
			row.LastModTime = toMicros(c.RecordedTime)
		}
	case SymlinkContent:
		row.SymlinkTarget = optString(c.Target)
	}
}

func (t *txn) insertBase(n *BaseNode, reposID int64) error {
	p := n.Relpath
	row := &store.Node{
		LocalRelpath:    p,
		OpDepth:         0,
		ReposID:         &reposID,
		ReposPath:       store.StrPtr(n.Repos.Relpath),
		Revision:        store.Int64Ptr(n.Repos.Revision),
		Presence:        string(n.Presence),
		Properties:      skel.MarshalProps(n.Props),
		ChangedRevision: optInt64(n.Changed.Revision),
		ChangedDate:     toMicros(n.Changed.Date),
		ChangedAuthor:   optString(n.Changed.Author),
		FileExternal:    n.FileExternal,
	}
	applyContent(row, n.Content)
	if err := t.putNode(row); err != nil {
		return err
	}

	if dc, ok := n.Content.(DirContent); ok && n.Presence.IsLive() {
		if err := t.insertIncompleteChildren(p, 0, &reposID, n.Repos.Relpath, n.Repos.Revision, dc.Children); err != nil {
			return err
		}
	}

	if p != "" {
		switch {
		case n.Presence.IsLive():
			if err := t.extendParentDelete(p, n.Content.Kind()); err != nil {
				return err
			}
		case n.Presence == PresenceNotPresent || n.Presence == PresenceExcluded || n.Presence == PresenceServerExcluded:
			if err := t.retractParentDelete(p); err != nil {
				return err
			}
		}
	}

	return t.finishInsert(p, n.UpdateActualProps, n.ActualProps, n.Conflict, n.WorkItems)
}

// extendParentDelete adds a delete marker for a new BASE child when its
// parent is deleted or replaced in WORKING and the child is not already
// shadowed at that depth.
func (t *txn) extendParentDelete(p string, kind Kind) error {
	parentRow, err := t.lowestWorkingAbove(relpath.Dirname(p), 0)
	if err != nil || parentRow == nil {
		return err
	}
	childRow, err := t.lowestWorkingAbove(p, 0)
	if err != nil {
		return err
	}
	if childRow != nil && childRow.OpDepth <= parentRow.OpDepth {
		return nil
	}
	return t.putNode(&store.Node{
		LocalRelpath: p,
		OpDepth:      parentRow.OpDepth,
		Presence:     string(PresenceBaseDeleted),
		Kind:         string(kind),
	})
}

// retractParentDelete removes a stray delete marker once the BASE node it
// shadowed is no longer present.
func (t *txn) retractParentDelete(p string) error {
	row, err := t.lowestWorkingAbove(p, 0)
	if err != nil || row == nil {
		return err
	}
	if Presence(row.Presence) != PresenceBaseDeleted {
		return nil
	}
	return t.deleteRow(p, row.OpDepth)
}

// insertIncompleteChildren adds incomplete placeholder rows for the named
// children of dir at depth, leaving existing rows alone.
func (t *txn) insertIncompleteChildren(dir string, depth int, reposID *int64, reposPath string, rev int64, children []string) error {
	for _, name := range children {
		child := relpath.Join(dir, name)
		if err := relpath.Validate(child); err != nil || relpath.Dirname(child) != dir {
			return wcerrors.NewInvalidArgumentError(child, "invalid child name '%s'", name)
		}
		existing, err := t.rowAt(child, depth)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		row := &store.Node{
			LocalRelpath: child,
			OpDepth:      depth,
			Presence:     string(PresenceIncomplete),
			Kind:         string(KindUnknown),
		}
		if reposID != nil {
			row.ReposID = reposID
			row.ReposPath = store.StrPtr(relpath.Join(reposPath, name))
			row.Revision = store.Int64Ptr(rev)
		}
		if err := t.putNode(row); err != nil {
			return err
		}
	}
	return nil
}

// finishInsert applies the actual-row and work-queue side effects shared by
// every insert.
func (t *txn) finishInsert(p string, updateActual bool, actualProps Props, c *Conflict, work []WorkItem) error {
	if updateActual {
		pristine, err := t.livePristine(p)
		if err != nil {
			return err
		}
		if err := t.setActualProps(p, actualProps, pristine); err != nil {
			return err
		}
	}
	if c != nil {
		if err := t.markConflict(p, c); err != nil {
			return err
		}
	}
	return t.addWork(work)
}

// livePristine returns the properties of the operative row when it is
// present, or nil.
func (t *txn) livePristine(p string) (Props, error) {
	top, err := t.topRow(p)
	if err != nil || top == nil || !Presence(top.Presence).IsLive() {
		return nil, err
	}
	return propsOf(top)
}

// ============================================================================
// insert-working
// ============================================================================

// InsertWorking writes the WORKING row described by n at n.OpDepth.
func (r *Root) InsertWorking(ctx context.Context, n *WorkingNode) error {
	if err := validate(n.Relpath); err != nil {
		return err
	}
	if n.OpDepth < 1 || n.OpDepth > relpath.Depth(n.Relpath) {
		return wcerrors.NewInvalidArgumentError(n.Relpath, "op_depth %d is out of range for '%s'", n.OpDepth, n.Relpath)
	}
	if err := checkContent(n.Relpath, n.Presence, n.Content, n.Props, n.Origin != nil); err != nil {
		return err
	}
	var reposID *int64
	if n.Origin != nil {
		id, err := r.ensureRepos(ctx, n.Origin.RootURL, n.Origin.UUID)
		if err != nil {
			return err
		}
		reposID = &id
	}
	return r.withTx(ctx, "insert_working", n.Relpath, func(t *txn) error {
		return t.insertWorking(n, reposID)
	})
}

func (t *txn) insertWorking(n *WorkingNode, reposID *int64) error {
	p := n.Relpath
	row := &store.Node{
		LocalRelpath:    p,
		OpDepth:         n.OpDepth,
		Presence:        string(n.Presence),
		MovedHere:       n.MovedHere,
		Properties:      skel.MarshalProps(n.Props),
		ChangedRevision: optInt64(n.Changed.Revision),
		ChangedDate:     toMicros(n.Changed.Date),
		ChangedAuthor:   optString(n.Changed.Author),
	}
	var originPath string
	var originRev int64
	if n.Origin != nil {
		originPath, originRev = n.Origin.Relpath, n.Origin.Revision
		row.ReposID = reposID
		row.ReposPath = store.StrPtr(originPath)
		row.Revision = store.Int64Ptr(originRev)
	}
	applyContent(row, n.Content)

	// A replaced row keeps the move bookkeeping of the row it replaces.
	existing, err := t.rowAt(p, n.OpDepth)
	if err != nil {
		return err
	}
	if existing != nil {
		row.MovedTo = existing.MovedTo
	}
	if err := t.putNode(row); err != nil {
		return err
	}

	if n.NotPresentOpDepth > 0 && n.NotPresentOpDepth < n.OpDepth {
		np := &store.Node{
			LocalRelpath: p,
			OpDepth:      n.NotPresentOpDepth,
			Presence:     string(PresenceNotPresent),
			Kind:         row.Kind,
			ReposID:      row.ReposID,
			ReposPath:    row.ReposPath,
			Revision:     row.Revision,
		}
		if err := t.putNode(np); err != nil {
			return err
		}
	}

	if dc, ok := n.Content.(DirContent); ok && n.Presence.IsLive() {
		if err := t.insertIncompleteChildren(p, n.OpDepth, reposID, originPath, originRev, dc.Children); err != nil {
			return err
		}
	}

	return t.finishInsert(p, n.UpdateActualProps, n.ActualProps, n.Conflict, n.WorkItems)
}

// ============================================================================
// Convenience inserters
// ============================================================================

// BaseAddDirectory records a directory checked out from loc.
func (r *Root) BaseAddDirectory(ctx context.Context, p string, loc ReposLocation, props Props, changed ChangeInfo, depth Depth, children []string) error {
	return r.InsertBase(ctx, &BaseNode{
		Relpath:  p,
		Presence: PresenceNormal,
		Repos:    loc,
		Props:    nonNilProps(props),
		Changed:  changed,
		Content:  DirContent{Depth: depth, Children: children},
	})
}

// BaseAddFile records a file checked out from loc.
func (r *Root) BaseAddFile(ctx context.Context, p string, loc ReposLocation, props Props, changed ChangeInfo, checksum string) error {
	return r.InsertBase(ctx, &BaseNode{
		Relpath:  p,
		Presence: PresenceNormal,
		Repos:    loc,
		Props:    nonNilProps(props),
		Changed:  changed,
		Content:  FileContent{Checksum: checksum},
	})
}

// BaseAddSymlink records a symlink checked out from loc.
func (r *Root) BaseAddSymlink(ctx context.Context, p string, loc ReposLocation, props Props, changed ChangeInfo, target string) error {
	return r.InsertBase(ctx, &BaseNode{
		Relpath:  p,
		Presence: PresenceNormal,
		Repos:    loc,
		Props:    nonNilProps(props),
		Changed:  changed,
		Content:  SymlinkContent{Target: target},
	})
}

// BaseAddNotPresent records that loc does not exist at its revision.
func (r *Root) BaseAddNotPresent(ctx context.Context, p string, loc ReposLocation, kind Kind) error {
	return r.InsertBase(ctx, &BaseNode{
		Relpath:  p,
		Presence: PresenceNotPresent,
		Repos:    loc,
		Content:  AbsentContent{NodeKind: kind},
	})
}

// BaseAddExcluded records a node excluded from the working copy, either by
// the user or, when serverExcluded, by repository authorization.
func (r *Root) BaseAddExcluded(ctx context.Context, p string, loc ReposLocation, kind Kind, serverExcluded bool) error {
	presence := PresenceExcluded
	if serverExcluded {
		presence = PresenceServerExcluded
	}
	return r.InsertBase(ctx, &BaseNode{
		Relpath:  p,
		Presence: presence,
		Repos:    loc,
		Content:  AbsentContent{NodeKind: kind},
	})
}

// OpAddDirectory schedules a new directory for addition.
func (r *Root) OpAddDirectory(ctx context.Context, p string, props Props) error {
	return r.opAdd(ctx, p, props, DirContent{Depth: DepthInfinity})
}

// OpAddFile schedules a new file for addition.
func (r *Root) OpAddFile(ctx context.Context, p string, props Props) error {
	return r.opAdd(ctx, p, props, FileContent{})
}

// OpAddSymlink schedules a new symlink for addition.
func (r *Root) OpAddSymlink(ctx context.Context, p, target string, props Props) error {
	return r.opAdd(ctx, p, props, SymlinkContent{Target: target})
}

func (r *Root) opAdd(ctx context.Context, p string, props Props, content NodeContent) error {
	if err := validate(p); err != nil {
		return err
	}
	if p == "" {
		return wcerrors.NewInvalidArgumentError(p, "can't add the working copy root")
	}
	n := &WorkingNode{
		Relpath:  p,
		Presence: PresenceNormal,
		OpDepth:  relpath.Depth(p),
		Props:    nonNilProps(props),
		Content:  content,
	}
	return r.withTx(ctx, "op_add", p, func(t *txn) error {
		top, err := t.topRow(p)
		if err != nil {
			return err
		}
		if top != nil && !Presence(top.Presence).IsDeleteMarker() &&
			!(top.OpDepth == 0 && !Presence(top.Presence).IsLive()) {
			return wcerrors.NewUnexpectedStatusError(p, "'%s' is already under version control", p)
		}
		return t.insertWorking(n, nil)
	})
}

func nonNilProps(p Props) Props {
	if p == nil {
		return Props{}
	}
	return p
}
