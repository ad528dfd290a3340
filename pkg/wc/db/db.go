// Package db implements the working-copy metadata store: layered node rows
// addressed by (local_relpath, op_depth), the read path that composes them,
// the add/copy/move/delete/revert/commit mutators, the move and delete
// scanners, working-copy locks and the deferred work queue.
//
// Every mutation runs inside one engine transaction, so callers never
// observe a half-applied operation.
package db

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/internal/relpath"
	"github.com/marmos91/wcstore/internal/telemetry"
	"github.com/marmos91/wcstore/pkg/metrics"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// Options configure a DB.
type Options struct {
	// Metrics may be nil.
	Metrics metrics.WCMetrics

	// Resolver is invoked when a revert discards a node whose tree conflict
	// was caused by a delete. Defaults to MarkerResolver.
	Resolver MoveResolver
}

// DB is the process-wide entry point. It owns the engine handle and the
// cache of opened working-copy roots.
type DB struct {
	store    *store.GORMStore
	metrics  metrics.WCMetrics
	resolver MoveResolver

	mu    sync.Mutex
	roots map[string]*Root
}

// New creates a DB on top of an opened engine.
func New(st *store.GORMStore, opts Options) *DB {
	d := &DB{
		store:    st,
		metrics:  opts.Metrics,
		resolver: opts.Resolver,
		roots:    make(map[string]*Root),
	}
	if d.resolver == nil {
		d.resolver = MarkerResolver{}
	}
	return d
}

// Store returns the underlying engine.
func (d *DB) Store() *store.GORMStore {
	return d.store
}

// Root is one working-copy administrative scope. Roots are cached per DB
// for the DB's lifetime; the lock cache and repository cache live here.
type Root struct {
	db      *DB
	abspath string
	wcID    int64
	ownerID string

	lockMu     sync.Mutex
	ownedLocks []ownedLock

	reposMu    sync.RWMutex
	reposByID  map[int64]reposInfo
	reposByURL map[string]int64
}

// Abspath returns the root's absolute local path.
func (r *Root) Abspath() string {
	return r.abspath
}

// WCID returns the surrogate id of the root.
func (r *Root) WCID() int64 {
	return r.wcID
}

// OwnerID identifies this handle in persisted working-copy locks.
func (r *Root) OwnerID() string {
	return r.ownerID
}

func (d *DB) newRoot(abspath string, wcID int64) *Root {
	return &Root{
		db:         d,
		abspath:    abspath,
		wcID:       wcID,
		ownerID:    uuid.NewString(),
		reposByID:  make(map[int64]reposInfo),
		reposByURL: make(map[string]int64),
	}
}

// InitOptions describe a fresh working copy.
type InitOptions struct {
	ReposRootURL string
	ReposUUID    string
	// RootRelpath is the repository path checked out at the root.
	RootRelpath string
	Revision    int64
	Depth       Depth
}

// Init creates a working copy rooted at abspath: the root record, the
// repository record and the BASE row of the root directory. A root checked
// out at a revision above zero starts incomplete until it is populated.
func (d *DB) Init(ctx context.Context, abspath string, opts InitOptions) (*Root, error) {
	abspath = filepath.Clean(abspath)
	if opts.ReposUUID == "" {
		opts.ReposUUID = uuid.NewString()
	}
	if opts.Depth == DepthUnknown {
		opts.Depth = DepthInfinity
	}
	if err := relpath.Validate(opts.RootRelpath); err != nil {
		return nil, wcerrors.NewInvalidArgumentError("", "%v", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.roots[abspath]; ok {
		return nil, wcerrors.NewInvalidArgumentError("", "working copy already open at '%s'", abspath)
	}

	wcRow := &store.WCRoot{LocalAbspath: store.StrPtr(abspath)}
	if err := d.store.DB().WithContext(ctx).Create(wcRow).Error; err != nil {
		if store.IsUniqueConstraintError(err) {
			return nil, wcerrors.NewInvalidArgumentError("", "working copy already exists at '%s'", abspath)
		}
		return nil, fmt.Errorf("create wcroot: %w", err)
	}

	root := d.newRoot(abspath, wcRow.ID)
	reposID, err := root.ensureRepos(ctx, opts.ReposRootURL, opts.ReposUUID)
	if err != nil {
		return nil, err
	}

	presence := PresenceNormal
	if opts.Revision > 0 {
		presence = PresenceIncomplete
	}
	err = root.withTx(ctx, "init", "", func(t *txn) error {
		return t.putNode(&store.Node{
			WCID:         root.wcID,
			LocalRelpath: "",
			OpDepth:      0,
			ReposID:      &reposID,
			ReposPath:    store.StrPtr(opts.RootRelpath),
			Revision:     store.Int64Ptr(opts.Revision),
			Presence:     string(presence),
			Kind:         string(KindDir),
			Depth:        store.StrPtr(string(opts.Depth)),
		})
	})
	if err != nil {
		return nil, err
	}

	d.roots[abspath] = root
	logger.InfoCtx(ctx, "working copy initialized",
		logger.KeyWCRoot, abspath, logger.KeyWCID, root.wcID, logger.KeyReposRoot, opts.ReposRootURL)
	return root, nil
}

// Open returns the cached root for abspath, loading it on first use.
func (d *DB) Open(ctx context.Context, abspath string) (*Root, error) {
	abspath = filepath.Clean(abspath)

	d.mu.Lock()
	defer d.mu.Unlock()
	if root, ok := d.roots[abspath]; ok {
		return root, nil
	}

	row, err := store.First[store.WCRoot](d.store.DB().WithContext(ctx).Where("local_abspath = ?", abspath))
	if err != nil {
		return nil, fmt.Errorf("lookup wcroot: %w", err)
	}
	if row == nil {
		return nil, wcerrors.NewPathNotFoundError(abspath)
	}

	root := d.newRoot(abspath, row.ID)
	d.roots[abspath] = root
	return root, nil
}

// Close drops the cached roots and releases every lock they still own.
func (d *DB) Close(ctx context.Context) error {
	d.mu.Lock()
	roots := d.roots
	d.roots = make(map[string]*Root)
	d.mu.Unlock()

	var errs error
	for _, root := range roots {
		errs = wcerrors.Compose(errs, root.releaseAll(ctx))
	}
	return errs
}

// ============================================================================
// Transactions
// ============================================================================

// withTx runs fn in one engine transaction, traced and measured as op.
func (r *Root) withTx(ctx context.Context, op, path string, fn func(t *txn) error) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "wc."+op, telemetry.Path(path))
	ctx = logger.WithContext(ctx, logger.ForWC(op, r.abspath, r.wcID).
		Traced(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))
	defer func() {
		telemetry.EndSpan(span, err)
		metrics.ObserveOperation(r.db.metrics, op, time.Since(start), err)
		switch {
		case err == nil:
			logger.DebugCtx(ctx, "wc operation", logger.KeyPath, path,
				logger.KeyDurationMs, logger.Duration(start))
		case wcerrors.HasCode(err, wcerrors.ErrCorrupt):
			logger.ErrorCtx(ctx, "wc corruption detected", logger.KeyPath, path, logger.Err(err))
		default:
			logger.DebugCtx(ctx, "wc operation failed", logger.KeyPath, path, logger.Err(err))
		}
	}()

	return r.db.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txn{tx: tx, root: r, ctx: ctx})
	})
}

// validate checks relpath arguments before any statement runs.
func validate(paths ...string) error {
	for _, p := range paths {
		if err := relpath.Validate(p); err != nil {
			return wcerrors.NewInvalidArgumentError(p, "%v", err)
		}
	}
	return nil
}
