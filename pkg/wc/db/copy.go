package db

import (
	"context"
	"slices"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/skel"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// copyItem is one destination row planned from a source node. Planning
// decodes properties so that the same items can be applied to another root.
type copyItem struct {
	relpath  string
	presence Presence
	kind     string
	props    Props
	// actual holds local property edits of the source, nil when none.
	actual Props

	checksum      *string
	target        *string
	depth         *string
	changedRev    *int64
	changedDate   *int64
	changedAuthor *string
	size          *int64
	mtime         *int64

	origin    *Origin
	movedHere bool
	// deletedRoot marks the op-root of a source delete; it is dropped when
	// the destination already shows deleted.
	deletedRoot bool
}

// OpCopy copies src and its subtree to dst as a new WORKING layer.
func (r *Root) OpCopy(ctx context.Context, src, dst string) error {
	if err := validateCopy(src, dst); err != nil {
		return err
	}
	return r.withTx(ctx, "copy", dst, func(t *txn) error {
		_, err := t.copy(src, dst, dst, false)
		return err
	})
}

// OpMove copies src to dst as a move and deletes src, recording the move on
// both halves.
func (r *Root) OpMove(ctx context.Context, src, dst string) error {
	if err := validateCopy(src, dst); err != nil {
		return err
	}
	return r.withTx(ctx, "move", dst, func(t *txn) error {
		moved, err := t.copy(src, dst, dst, true)
		if err != nil {
			return err
		}
		if !moved {
			// Adds and copies travel as plain copies.
			return t.delete(src, "")
		}
		return t.delete(src, dst)
	})
}

// CopyTo copies src into another working-copy root. Properties and
// checksums are re-read and re-encoded and repository ids are mapped into
// the destination root. Cross-root copies never record a move.
func (r *Root) CopyTo(ctx context.Context, src string, dstRoot *Root, dst string) error {
	if dstRoot == r {
		return r.OpCopy(ctx, src, dst)
	}
	if err := validate(src, dst); err != nil {
		return err
	}
	if dst == "" {
		return wcerrors.NewInvalidArgumentError(dst, "can't copy onto the working copy root")
	}

	var items []copyItem
	err := r.withTx(ctx, "copy_export", src, func(t *txn) error {
		return t.planCopy(src, dst, false, true, false, &items)
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, it := range items {
		if it.origin == nil || seen[it.origin.RootURL] {
			continue
		}
		seen[it.origin.RootURL] = true
		if _, err := dstRoot.ensureRepos(ctx, it.origin.RootURL, it.origin.UUID); err != nil {
			return err
		}
	}

	return dstRoot.withTx(ctx, "copy_import", dst, func(t *txn) error {
		if err := t.checkCopyDestination(dst); err != nil {
			return err
		}
		return t.applyCopy(items, dst)
	})
}

func validateCopy(src, dst string) error {
	if err := validate(src, dst); err != nil {
		return err
	}
	if dst == "" {
		return wcerrors.NewInvalidArgumentError(dst, "can't copy onto the working copy root")
	}
	if relpath.IsAncestor(src, dst) {
		return wcerrors.NewInvalidArgumentError(dst, "can't copy '%s' into itself", src)
	}
	return nil
}

// copy plans and applies a same-root copy of src to dst. dstOpRoot names
// the root of the operation dst belongs to. moved reports whether the
// copy root was recorded as moved-here.
func (t *txn) copy(src, dst, dstOpRoot string, isMove bool) (moved bool, err error) {
	if err := t.checkCopyDestination(dst); err != nil {
		return false, err
	}
	var items []copyItem
	if err := t.planCopy(src, dst, isMove, true, false, &items); err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}
	return items[0].movedHere, t.applyCopy(items, dstOpRoot)
}

// checkCopyDestination requires a present parent directory and a
// destination that is free: unversioned, deleted, absent from BASE or an
// incomplete placeholder.
func (t *txn) checkCopyDestination(dst string) error {
	parent, err := t.topRow(relpath.Dirname(dst))
	if err != nil {
		return err
	}
	if parent == nil {
		return wcerrors.NewPathNotFoundError(relpath.Dirname(dst))
	}
	if !Presence(parent.Presence).IsLive() || parent.Kind != string(KindDir) {
		return wcerrors.NewUnexpectedStatusError(dst, "the parent of '%s' is not a present directory", dst)
	}

	top, err := t.topRow(dst)
	if err != nil || top == nil {
		return err
	}
	pres := Presence(top.Presence)
	switch {
	case top.OpDepth > 0 && (pres.IsDeleteMarker() || pres == PresenceIncomplete):
	case top.OpDepth == 0 && !pres.IsLive() && pres != PresenceServerExcluded:
	default:
		return wcerrors.NewUnexpectedStatusError(dst, "'%s' is already under version control", dst)
	}
	return nil
}

// infoForCopy derives the effective status of src and the repository
// location a copy of it originates from.
func (t *txn) infoForCopy(src string, top *store.Node) (status Status, origin *Origin, opRoot bool, err error) {
	pres := Presence(top.Presence)
	if top.OpDepth == 0 {
		origin, err = t.originOf(top)
		return baseStatus(pres), origin, false, err
	}

	opRoot = top.OpDepth == relpath.Depth(src)
	switch pres {
	case PresenceIncomplete:
		return StatusIncomplete, nil, opRoot, nil
	case PresenceNormal:
		origin, err = t.originOf(top)
		switch {
		case top.MovedHere:
			status = StatusMovedHere
		case origin != nil:
			status = StatusCopied
		default:
			status = StatusAdded
		}
		return status, origin, opRoot, err
	case PresenceBaseDeleted, PresenceNotPresent:
		if top.ReposID != nil {
			origin, err = t.originOf(top)
			return StatusDeleted, origin, opRoot, err
		}
		// The copy originates from whatever the delete shadows.
		below, err := t.rowBelow(src, top.OpDepth)
		if err != nil || below == nil {
			return StatusDeleted, nil, opRoot, err
		}
		origin, err = t.originOf(below)
		return StatusDeleted, origin, opRoot, err
	case PresenceExcluded:
		if top.ReposID != nil {
			origin, err = t.originOf(top)
			return StatusExcluded, origin, opRoot, err
		}
		parentTop, err := t.topRow(relpath.Dirname(src))
		if err != nil || parentTop == nil {
			return StatusExcluded, nil, opRoot, err
		}
		parentOrigin, err := t.originOf(parentTop)
		if err != nil || parentOrigin == nil {
			return StatusExcluded, nil, opRoot, err
		}
		parentOrigin.Relpath = relpath.Join(parentOrigin.Relpath, relpath.Basename(src))
		return StatusExcluded, parentOrigin, opRoot, nil
	default:
		return workingStatus(pres), nil, opRoot, nil
	}
}

// originOf returns the repository location recorded on any row as an Origin.
func (t *txn) originOf(n *store.Node) (*Origin, error) {
	if n.ReposID == nil || n.ReposPath == nil {
		return nil, nil
	}
	loc, err := t.location(n)
	if err != nil {
		return nil, err
	}
	return &Origin{RootURL: loc.RootURL, UUID: loc.UUID, Relpath: loc.Relpath, Revision: loc.Revision}, nil
}

// planCopy appends the destination rows for src (and, for present
// directories, its children) to items in pre-order.
func (t *txn) planCopy(src, dst string, isMove, isRoot, movedHere bool, items *[]copyItem) error {
	if err := t.checkCancel(src, nil); err != nil {
		return err
	}
	top, err := t.topRow(src)
	if err != nil {
		return err
	}
	if top == nil {
		return wcerrors.NewPathNotFoundError(src)
	}
	status, origin, opRoot, err := t.infoForCopy(src, top)
	if err != nil {
		return err
	}

	it := copyItem{relpath: dst, kind: top.Kind, origin: origin}
	switch status {
	case StatusNormal, StatusAdded, StatusCopied, StatusMovedHere:
		it.presence = PresenceNormal
	case StatusDeleted:
		it.presence = PresenceNotPresent
		it.deletedRoot = opRoot
	case StatusNotPresent:
		it.presence = PresenceNotPresent
	case StatusExcluded:
		it.presence = PresenceExcluded
	case StatusServerExcluded:
		return wcerrors.NewUnexpectedStatusError(src, "cannot copy '%s' excluded by server", src)
	default:
		return wcerrors.NewUnexpectedStatusError(src, "cannot handle status %s of '%s'", status, src)
	}
	if it.presence != PresenceNormal && origin == nil {
		return nil
	}

	if isRoot {
		movedHere = isMove && !(opRoot && (status == StatusAdded || status == StatusCopied))
	}
	it.movedHere = movedHere

	if it.presence == PresenceNormal {
		if it.props, err = propsOf(top); err != nil {
			return err
		}
		it.checksum, it.target, it.depth = top.Checksum, top.SymlinkTarget, top.Depth
		it.changedRev, it.changedDate, it.changedAuthor = top.ChangedRevision, top.ChangedDate, top.ChangedAuthor
		it.size, it.mtime = top.TranslatedSize, top.LastModTime

		actual, err := t.actualRow(src)
		if err != nil {
			return err
		}
		if actual != nil && actual.Properties != nil {
			if it.actual, err = skel.UnmarshalProps(actual.Properties); err != nil {
				return wcerrors.NewCorruptError(src, "unreadable actual properties: %v", err)
			}
		}
	}
	*items = append(*items, it)

	if it.presence != PresenceNormal || top.Kind != string(KindDir) {
		return nil
	}
	children, err := t.gatherRepoChildren(src, top.OpDepth)
	if err != nil {
		return err
	}
	for _, name := range children {
		if err := t.planCopy(relpath.Join(src, name), relpath.Join(dst, name), isMove, false, movedHere, items); err != nil {
			return err
		}
	}
	return nil
}

// gatherRepoChildren returns the names of the children of dir present in
// the layer at opDepth, plus children that were added on top of it as
// their own operations.
func (t *txn) gatherRepoChildren(dir string, opDepth int) ([]string, error) {
	var paths []string
	err := t.nodes().
		Where("parent_relpath = ? AND file_external = ?", dir, false).
		Where("((op_depth = ? AND presence <> ?) OR (op_depth > ? AND op_depth = ? AND presence = ?))",
			opDepth, string(PresenceBaseDeleted), opDepth, relpath.Depth(dir)+1, string(PresenceNormal)).
		Distinct("local_relpath").Pluck("local_relpath", &paths).Error
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, relpath.Basename(p))
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// applyCopy writes planned items. The first item is the copy root; its
// op_depth comes from opDepthForCopy when it is also the operation root.
func (t *txn) applyCopy(items []copyItem, dstOpRoot string) error {
	root := &items[0]
	opDepth, npDepth := relpath.Depth(dstOpRoot), 0
	if root.relpath == dstOpRoot {
		var err error
		if opDepth, npDepth, err = t.opDepthForCopy(root.relpath, root.origin); err != nil {
			return err
		}
	}

	for i := range items {
		it := &items[i]
		if it.deletedRoot {
			info, err := t.readInfo(it.relpath)
			if err != nil && !wcerrors.IsPathNotFound(err) {
				return err
			}
			if info != nil && info.Status == StatusDeleted {
				continue
			}
		}

		row := &store.Node{
			LocalRelpath:    it.relpath,
			OpDepth:         opDepth,
			Presence:        string(it.presence),
			Kind:            it.kind,
			MovedHere:       it.movedHere,
			Checksum:        it.checksum,
			SymlinkTarget:   it.target,
			Depth:           it.depth,
			ChangedRevision: it.changedRev,
			ChangedDate:     it.changedDate,
			ChangedAuthor:   it.changedAuthor,
			TranslatedSize:  it.size,
			LastModTime:     it.mtime,
		}
		if it.presence == PresenceNormal {
			row.Properties = skel.MarshalProps(nonNilProps(it.props))
		}
		if it.origin != nil {
			id, err := t.reposIDFor(it.origin)
			if err != nil {
				return err
			}
			row.ReposID = &id
			row.ReposPath = store.StrPtr(it.origin.Relpath)
			row.Revision = store.Int64Ptr(it.origin.Revision)
		}

		existing, err := t.rowAt(it.relpath, opDepth)
		if err != nil {
			return err
		}
		if existing != nil {
			row.MovedTo = existing.MovedTo
		}
		if err := t.putNode(row); err != nil {
			return err
		}

		if i == 0 && npDepth > 0 && npDepth < opDepth {
			np := &store.Node{
				LocalRelpath: it.relpath,
				OpDepth:      npDepth,
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

		if it.actual != nil {
			if err := t.setActualProps(it.relpath, it.actual, it.props); err != nil {
				return err
			}
		}
	}
	return t.shadowUncovered(root.relpath, opDepth)
}

// reposIDFor resolves an origin's repository inside the transaction. The
// repository row must already exist.
func (t *txn) reposIDFor(o *Origin) (int64, error) {
	url := relpath.CanonicalURL(o.RootURL)
	t.root.reposMu.RLock()
	id, ok := t.root.reposByURL[url]
	t.root.reposMu.RUnlock()
	if ok {
		return id, nil
	}
	row, err := store.First[store.Repository](t.tx.Model(&store.Repository{}).Where("root = ?", url))
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, wcerrors.NewCorruptError("", "repository '%s' is not registered", url)
	}
	t.root.cacheRepos(row)
	return row.ID, nil
}

// opDepthForCopy picks the op_depth for a copy rooted at dst. A direct
// child copied from the matching location of an already copied parent
// folds into the parent's layer; otherwise dst becomes a new op-root. When
// dst already holds an incomplete placeholder of another layer, npDepth
// names that layer so it can be marked not-present.
func (t *txn) opDepthForCopy(dst string, origin *Origin) (opDepth, npDepth int, err error) {
	opDepth = relpath.Depth(dst)
	if origin == nil || dst == "" {
		return opDepth, 0, nil
	}

	incomplete := -1
	own, err := t.topWorkingRow(dst)
	if err != nil {
		return 0, 0, err
	}
	if own != nil && Presence(own.Presence) == PresenceIncomplete {
		incomplete = own.OpDepth
	}

	parent, err := t.topWorkingRow(relpath.Dirname(dst))
	if err != nil {
		return 0, 0, err
	}
	if parent != nil && parent.OpDepth < opDepth && Presence(parent.Presence).IsLive() {
		po, err := t.originOf(parent)
		if err != nil {
			return 0, 0, err
		}
		if po != nil && relpath.CanonicalURL(po.RootURL) == relpath.CanonicalURL(origin.RootURL) &&
			po.Revision == origin.Revision &&
			relpath.Join(po.Relpath, relpath.Basename(dst)) == origin.Relpath &&
			(incomplete < 0 || incomplete == parent.OpDepth) {
			return parent.OpDepth, 0, nil
		}
	}
	if incomplete > 0 {
		npDepth = incomplete
	}
	return opDepth, npDepth, nil
}

// shadowUncovered adds delete markers at depth for every descendant of p
// whose operative row is a present node below depth.
func (t *txn) shadowUncovered(p string, depth int) error {
	rows, err := store.All[store.Node](t.nodes().
		Scopes(store.StrictlyBelow("local_relpath", p)).
		Order("local_relpath ASC, op_depth DESC"))
	if err != nil {
		return err
	}
	for _, top := range topRows(rows) {
		if top.OpDepth >= depth || !Presence(top.Presence).IsLive() {
			continue
		}
		if err := t.putNode(&store.Node{
			LocalRelpath: top.LocalRelpath,
			OpDepth:      depth,
			Presence:     string(PresenceBaseDeleted),
			Kind:         top.Kind,
		}); err != nil {
			return err
		}
	}
	return nil
}

// topRows keeps the first row of every path from rows ordered by
// (local_relpath, op_depth DESC).
func topRows(rows []store.Node) []store.Node {
	var out []store.Node
	for i := range rows {
		if i > 0 && rows[i].LocalRelpath == rows[i-1].LocalRelpath {
			continue
		}
		out = append(out, rows[i])
	}
	return out
}

// ============================================================================
// Copies recorded from an external source
// ============================================================================

// CopyParams describe a node copied from the repository rather than from
// another local node.
type CopyParams struct {
	Props   Props
	Changed ChangeInfo
	Origin  Origin
	IsMove  bool

	Conflict  *Conflict
	WorkItems []WorkItem
}

// OpCopyDir records p as a copy of the directory at params.Origin. Children
// are inserted as incomplete placeholders.
func (r *Root) OpCopyDir(ctx context.Context, p string, params CopyParams, depth Depth, children []string) error {
	return r.opCopyShadowed(ctx, p, params, DirContent{Depth: depth, Children: children})
}

// OpCopyFile records p as a copy of the file at params.Origin.
func (r *Root) OpCopyFile(ctx context.Context, p string, params CopyParams, checksum string) error {
	return r.opCopyShadowed(ctx, p, params, FileContent{Checksum: checksum})
}

// OpCopySymlink records p as a copy of the symlink at params.Origin.
func (r *Root) OpCopySymlink(ctx context.Context, p string, params CopyParams, target string) error {
	return r.opCopyShadowed(ctx, p, params, SymlinkContent{Target: target})
}

func (r *Root) opCopyShadowed(ctx context.Context, p string, params CopyParams, content NodeContent) error {
	if err := validate(p); err != nil {
		return err
	}
	if p == "" {
		return wcerrors.NewInvalidArgumentError(p, "can't copy onto the working copy root")
	}
	if err := checkContent(p, PresenceNormal, content, params.Props, true); err != nil {
		return err
	}
	reposID, err := r.ensureRepos(ctx, params.Origin.RootURL, params.Origin.UUID)
	if err != nil {
		return err
	}
	origin := params.Origin
	return r.withTx(ctx, "copy", p, func(t *txn) error {
		if err := t.checkCopyDestination(p); err != nil {
			return err
		}
		opDepth, npDepth, err := t.opDepthForCopy(p, &origin)
		if err != nil {
			return err
		}
		n := &WorkingNode{
			Relpath:           p,
			Presence:          PresenceNormal,
			OpDepth:           opDepth,
			Props:             nonNilProps(params.Props),
			Changed:           params.Changed,
			Content:           content,
			Origin:            &origin,
			MovedHere:         params.IsMove,
			NotPresentOpDepth: npDepth,
			Conflict:          params.Conflict,
			WorkItems:         params.WorkItems,
		}
		if err := t.insertWorking(n, &reposID); err != nil {
			return err
		}
		return t.shadowUncovered(p, opDepth)
	})
}
