package db

import (
	"context"

	"github.com/marmos91/wcstore/internal/relpath"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// ScanDeletion walks the op-roots above a deleted path and reports where
// the BASE deletion is rooted, where a deletion inside a WORKING subtree is
// rooted, and where the node was moved to.
func (r *Root) ScanDeletion(ctx context.Context, p string) (*DeletionInfo, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var info *DeletionInfo
	err := r.withTx(ctx, "scan_deletion", p, func(t *txn) error {
		var err error
		info, err = t.scanDeletion(p)
		return err
	})
	return info, err
}

func (t *txn) scanDeletion(p string) (*DeletionInfo, error) {
	top, err := t.topRow(p)
	if err != nil {
		return nil, err
	}
	if top == nil {
		return nil, wcerrors.NewPathNotFoundError(p)
	}
	if top.OpDepth == 0 || !Presence(top.Presence).IsDeleteMarker() {
		return nil, wcerrors.NewUnexpectedStatusError(p, "expected node '%s' to be deleted", p)
	}

	info := &DeletionInfo{}
	if top.MovedTo != nil {
		// A moved-away node carried along by the move of an ancestor.
		info.MovedToOpRoot = *top.MovedTo
		info.MovedToRelpath = *top.MovedTo
	}
	if Presence(top.Presence) == PresenceNotPresent && top.OpDepth < relpath.Depth(p) {
		// Not present inside a copied tree.
		info.WorkDelRelpath = p
	}

	cur, depth := p, top.OpDepth
	for depth > 0 {
		root := relpath.Prefix(cur, depth)
		rootRow, err := t.rowAt(root, depth)
		if err != nil {
			return nil, err
		}
		if rootRow == nil {
			return nil, wcerrors.NewCorruptError(p, "no op-root row for '%s' at op_depth %d", root, depth)
		}
		if info.MovedToOpRoot == "" && rootRow.MovedTo != nil {
			info.MovedToOpRoot = *rootRow.MovedTo
			info.MovedToRelpath = relpath.Rebase(p, root, *rootRow.MovedTo)
		}

		below, err := t.rowBelow(root, depth)
		if err != nil {
			return nil, err
		}
		if Presence(rootRow.Presence).IsDeleteMarker() {
			if below == nil {
				return nil, wcerrors.NewCorruptError(p, "delete of '%s' at op_depth %d shadows nothing", root, depth)
			}
			if below.OpDepth == 0 {
				info.BaseDelRelpath = root
				break
			}
			if info.WorkDelRelpath == "" {
				info.WorkDelRelpath = root
			}
		} else {
			// An addition layer; it replaces whatever lies below it.
			if below == nil {
				break
			}
			if below.OpDepth == 0 {
				info.BaseDelRelpath = root
				break
			}
		}
		cur, depth = root, below.OpDepth
	}
	return info, nil
}

// ScanAddition reports how an added path came to be: its op-root, the
// repository location it will have once committed, its copy-from origin and,
// for moves, where it was moved from.
func (r *Root) ScanAddition(ctx context.Context, p string) (*AdditionInfo, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var info *AdditionInfo
	err := r.withTx(ctx, "scan_addition", p, func(t *txn) error {
		var err error
		info, err = t.scanAddition(p)
		return err
	})
	return info, err
}

func (t *txn) scanAddition(p string) (*AdditionInfo, error) {
	top, err := t.topRow(p)
	if err != nil {
		return nil, err
	}
	if top == nil {
		return nil, wcerrors.NewPathNotFoundError(p)
	}
	if top.OpDepth == 0 || !Presence(top.Presence).IsLive() {
		return nil, wcerrors.NewUnexpectedStatusError(p, "expected node '%s' to be added", p)
	}

	opRoot := relpath.Prefix(p, top.OpDepth)
	rootRow, err := t.rowAt(opRoot, top.OpDepth)
	if err != nil {
		return nil, err
	}
	if rootRow == nil {
		return nil, wcerrors.NewCorruptError(p, "no op-root row for '%s' at op_depth %d", opRoot, top.OpDepth)
	}

	info := &AdditionInfo{Status: StatusAdded, OpRoot: opRoot}
	if rootRow.ReposID != nil {
		info.Status = StatusCopied
		if info.Original, err = t.origin(rootRow); err != nil {
			return nil, err
		}
	}
	if rootRow.MovedHere {
		info.Status = StatusMovedHere
		from, err := t.movedFrom(opRoot, p)
		if err != nil {
			return nil, err
		}
		if from != nil {
			info.MovedFromRelpath = from.Relpath
			info.MovedFromOpRoot = from.OpRoot
			info.MovedFromOpDepth = from.OpDepth
		}
	}

	if info.Repos, err = t.effectiveLocation(opRoot); err != nil {
		return nil, err
	}
	if rest, _ := relpath.SkipAncestor(opRoot, p); rest != "" {
		info.Repos.Relpath = relpath.Join(info.Repos.Relpath, rest)
	}
	return info, nil
}

// effectiveLocation derives the repository location an added op-root will
// have once committed: the nearest ancestor BASE location plus the
// remaining path. Holes in the ancestor chain are skipped.
func (t *txn) effectiveLocation(opRoot string) (ReposLocation, error) {
	cur := opRoot
	for cur != "" {
		parent := relpath.Dirname(cur)
		base, err := t.baseRow(parent)
		if err != nil {
			return ReposLocation{}, err
		}
		if base != nil {
			loc, err := t.location(base)
			if err != nil {
				return ReposLocation{}, err
			}
			rest, _ := relpath.SkipAncestor(parent, opRoot)
			loc.Relpath = relpath.Join(loc.Relpath, rest)
			loc.Revision = 0
			return loc, nil
		}
		cur = parent
	}
	return ReposLocation{}, wcerrors.NewCorruptError(opRoot, "no BASE ancestor for added node '%s'", opRoot)
}

// GetMovedFromInfo returns the delete-half of the move that produced p, or
// nil when p was not moved here.
func (r *Root) GetMovedFromInfo(ctx context.Context, p string) (*MovedFromInfo, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	var info *MovedFromInfo
	err := r.withTx(ctx, "moved_from_info", p, func(t *txn) error {
		top, err := t.topRow(p)
		if err != nil {
			return err
		}
		if top == nil {
			return wcerrors.NewPathNotFoundError(p)
		}
		if top.OpDepth == 0 || !top.MovedHere {
			return nil
		}
		info, err = t.movedFrom(relpath.Prefix(p, top.OpDepth), p)
		return err
	})
	return info, err
}

// movedFrom finds the delete-half whose moved_to names opRoot and maps p
// below it.
func (t *txn) movedFrom(opRoot, p string) (*MovedFromInfo, error) {
	src, err := store.First[store.Node](t.nodes().Where("moved_to = ?", opRoot).Order("op_depth DESC"))
	if err != nil || src == nil {
		return nil, err
	}
	return &MovedFromInfo{
		Relpath: relpath.Rebase(p, opRoot, src.LocalRelpath),
		OpRoot:  src.LocalRelpath,
		OpDepth: src.OpDepth,
	}, nil
}
