package db

import (
	"context"

	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// OpSetProps records props as the actual property set of p. A set equal
// to the pristine properties clears the local modification.
func (r *Root) OpSetProps(ctx context.Context, p string, props Props, c *Conflict, work ...WorkItem) error {
	if err := validate(p); err != nil {
		return err
	}
	return r.withTx(ctx, "set_props", p, func(t *txn) error {
		top, err := t.topRow(p)
		if err != nil {
			return err
		}
		if top == nil {
			return wcerrors.NewPathNotFoundError(p)
		}
		if !Presence(top.Presence).IsLive() {
			return wcerrors.NewUnexpectedStatusError(p, "can't set properties on '%s' in state %s", p, top.Presence)
		}
		return t.finishInsert(p, true, nonNilProps(props), c, work)
	})
}

// SetChangelist assigns p to changelist, or removes it from its changelist
// when changelist is empty.
func (r *Root) SetChangelist(ctx context.Context, p, changelist string) error {
	if err := validate(p); err != nil {
		return err
	}
	return r.withTx(ctx, "set_changelist", p, func(t *txn) error {
		top, err := t.topRow(p)
		if err != nil {
			return err
		}
		if top == nil {
			return wcerrors.NewPathNotFoundError(p)
		}
		if changelist != "" && (top.Kind != string(KindFile) || !Presence(top.Presence).IsLive()) {
			return wcerrors.NewUnexpectedStatusError(p, "only present files can be in a changelist")
		}
		return t.updateActual(p, func(a *store.ActualNode) {
			a.Changelist = optString(changelist)
		})
	})
}

// MarkConflict records c on p, replacing any previous description.
func (r *Root) MarkConflict(ctx context.Context, p string, c *Conflict, work ...WorkItem) error {
	if err := validate(p); err != nil {
		return err
	}
	if c.IsEmpty() {
		return wcerrors.NewInvalidArgumentError(p, "empty conflict description")
	}
	return r.withTx(ctx, "mark_conflict", p, func(t *txn) error {
		if err := t.markConflict(p, c); err != nil {
			return err
		}
		return t.addWork(work)
	})
}

// ResolveConflict clears the selected conflict kinds on p. The actual row
// is pruned once nothing remains.
func (r *Root) ResolveConflict(ctx context.Context, p string, text bool, props []string, tree bool) error {
	if err := validate(p); err != nil {
		return err
	}
	return r.withTx(ctx, "resolve_conflict", p, func(t *txn) error {
		c, err := t.conflict(p)
		if err != nil {
			return err
		}
		if c == nil {
			return wcerrors.NewUnexpectedStatusError(p, "'%s' is not in conflict", p)
		}
		if text {
			c.Text = false
		}
		if len(props) > 0 {
			resolved := make(map[string]bool, len(props))
			for _, name := range props {
				resolved[name] = true
			}
			kept := c.Props[:0]
			for _, name := range c.Props {
				if !resolved[name] {
					kept = append(kept, name)
				}
			}
			c.Props = kept
		}
		if tree {
			c.Tree = nil
		}
		return t.markConflict(p, c)
	})
}

// HasLocalMods reports whether p's subtree carries any WORKING layer, local
// property edit or conflict. cancel, when not nil, is polled per row.
func (r *Root) HasLocalMods(ctx context.Context, p string, cancel func() error) (bool, error) {
	if err := validate(p); err != nil {
		return false, err
	}
	var modified bool
	err := r.withTx(ctx, "has_local_mods", p, func(t *txn) error {
		rows, err := store.All[store.Node](t.nodes().
			Scopes(store.InSubtree("local_relpath", p)).
			Select("local_relpath", "op_depth").Order("local_relpath ASC"))
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := t.checkCancel(row.LocalRelpath, cancel); err != nil {
				return err
			}
			if row.OpDepth > 0 {
				modified = true
				return nil
			}
		}

		actuals, err := store.All[store.ActualNode](t.actuals().
			Scopes(store.InSubtree("local_relpath", p)))
		if err != nil {
			return err
		}
		for _, a := range actuals {
			if err := t.checkCancel(a.LocalRelpath, cancel); err != nil {
				return err
			}
			if a.Properties != nil || a.Conflict != nil {
				modified = true
				return nil
			}
		}
		return nil
	})
	return modified, err
}
