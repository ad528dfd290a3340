package kevent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/wcstore/internal/logger"
)

// vnodeWatcher feeds FilterVnode knotes from an fsnotify watcher. Paths
// are registered once through Registry.WatchPath, which hands out the
// ident used in registrations.
type vnodeWatcher struct {
	mu      sync.Mutex
	paths   map[uint64]string
	idents  map[string]uint64
	next    uint64
	watcher *fsnotify.Watcher
	watches map[string]*vnodeWatch
}

type vnodeWatch struct {
	knotes []*Knote
	size   int64
}

func newVnodeWatcher() *vnodeWatcher {
	return &vnodeWatcher{
		paths:   make(map[uint64]string),
		idents:  make(map[string]uint64),
		watches: make(map[string]*vnodeWatch),
	}
}

func (w *vnodeWatcher) ident(path string) (uint64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNoEntry, abs)
		}
		return 0, fmt.Errorf("%w: %s: %w", ErrBadDescriptor, abs, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.idents[abs]; ok {
		return id, nil
	}
	w.next++
	w.paths[w.next] = abs
	w.idents[abs] = w.next
	return w.next, nil
}

func (w *vnodeWatcher) add(kn *Knote) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path, ok := w.paths[kn.ev.Ident]
	if !ok {
		return fmt.Errorf("%w: unknown vnode ident %d", ErrBadDescriptor, kn.ev.Ident)
	}
	if watch, ok := w.watches[path]; ok {
		watch.knotes = append(watch.knotes, kn)
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoEntry, path)
	}
	if w.watcher == nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("%w: fsnotify: %w", ErrNoMemory, err)
		}
		w.watcher = watcher
		go w.run(watcher)
	}
	if err := w.watcher.Add(path); err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrNoEntry, path, err)
	}
	w.watches[path] = &vnodeWatch{knotes: []*Knote{kn}, size: info.Size()}
	return nil
}

func (w *vnodeWatcher) remove(kn *Knote) {
	w.mu.Lock()
	path := w.paths[kn.ev.Ident]
	watch, ok := w.watches[path]
	if !ok {
		w.mu.Unlock()
		return
	}
	watch.knotes = without(watch.knotes, kn)
	if len(watch.knotes) > 0 {
		w.mu.Unlock()
		return
	}
	delete(w.watches, path)
	// fsnotify drops watches on removed paths by itself.
	_ = w.watcher.Remove(path)

	var idle *fsnotify.Watcher
	if len(w.watches) == 0 {
		idle, w.watcher = w.watcher, nil
	}
	w.mu.Unlock()

	if idle != nil {
		if err := idle.Close(); err != nil {
			logger.Warn("kevent vnode watcher close failed", logger.Err(err))
		}
	}
}

func (w *vnodeWatcher) run(watcher *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("kevent vnode watcher error", logger.Err(err))
		}
	}
}

type vnodeDelivery struct {
	kn   *Knote
	hint uint32
}

func (w *vnodeWatcher) dispatch(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)

	var out []vnodeDelivery
	w.mu.Lock()
	if watch, ok := w.watches[name]; ok {
		var hint uint32
		if ev.Has(fsnotify.Write) {
			hint |= NoteWrite
			if info, err := os.Stat(name); err == nil {
				if info.Size() > watch.size {
					hint |= NoteExtend
				}
				watch.size = info.Size()
			}
		}
		if ev.Has(fsnotify.Remove) {
			hint |= NoteDelete
		}
		if ev.Has(fsnotify.Rename) {
			hint |= NoteRename
		}
		if ev.Has(fsnotify.Chmod) {
			hint |= NoteAttrib
		}
		if hint != 0 {
			for _, kn := range watch.knotes {
				out = append(out, vnodeDelivery{kn, hint})
			}
		}
	}
	if dir := filepath.Dir(name); dir != name && ev.Has(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
		if watch, ok := w.watches[dir]; ok {
			for _, kn := range watch.knotes {
				out = append(out, vnodeDelivery{kn, NoteWrite})
			}
		}
	}
	w.mu.Unlock()

	for _, d := range out {
		d.kn.Notify(int64(d.hint))
	}
}

// vnodeFilter implements FilterVnode. FFlags accumulate the NOTE_* vnode
// events seen since the last delivery; a deleted path also reports EvEOF.
type vnodeFilter struct {
	w *vnodeWatcher
}

func (*vnodeFilter) IsFD() bool { return false }

func (f *vnodeFilter) Attach(kn *Knote) error {
	if err := f.w.add(kn); err != nil {
		return err
	}
	kn.ev.Flags |= EvClear
	return nil
}

func (f *vnodeFilter) Detach(kn *Knote) {
	f.w.remove(kn)
}

func (*vnodeFilter) Event(kn *Knote, hint int64) bool {
	if hint == 0 {
		return kn.ev.FFlags != 0
	}
	note := uint32(hint)
	if note&NoteDelete != 0 {
		kn.ev.Flags |= EvEOF
	}
	kn.ev.FFlags |= note & kn.sfflags
	return kn.ev.FFlags != 0
}
