// Package watch provides a recursive filesystem watcher that keeps one watch
// per directory under a root and delivers normalized change events.
//
// A Watcher installs a watch on every directory it finds, snapshots each
// newly watched directory so entries created before the watch existed are
// still reported, suppresses the duplicate creates that race produces, and
// pairs the two halves of a rename into a single move event.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Watcher maintains the watch tree for one root and turns raw notifications
// into Events. All classification, correlation and emission for live
// notifications happen on a single goroutine; directory listings and
// snapshots run on their own goroutines so one slow directory never stalls
// live delivery for another.
type Watcher struct {
	root      string
	rootIsDir bool
	opts      Options
	mask      Mask
	deliver   map[Kind]bool
	logger    *zap.Logger

	notifier Notifier
	lister   Lister
	tree     *watchTree
	dedup    *dedupCache
	renames  *renameCorrelator

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	// emitMu orders emissions across the event loop and snapshot goroutines.
	emitMu sync.Mutex

	mu        sync.Mutex
	started   bool
	closed    bool
	closeOnce sync.Once
	closeErr  error

	droppedErrors atomic.Uint64
}

// New creates a Watcher for root using the configured backend.
func New(root string, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	notifier, err := NewNotifier(opts.Backend, opts.EventBufferSize)
	if err != nil {
		return nil, err
	}

	w, err := NewWithNotifier(root, opts, notifier, NewLister(!opts.DontFollow))
	if err != nil {
		_ = notifier.Close()
		return nil, err
	}
	return w, nil
}

// NewWithNotifier creates a Watcher over an existing primitive and lister.
// The Watcher takes ownership of notifier and closes it on Close.
func NewWithNotifier(root string, opts Options, notifier Notifier, lister Lister) (*Watcher, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}

	mask, err := MaskFor(opts.Events...)
	if err != nil {
		return nil, err
	}
	if opts.Recursive && info.IsDir() {
		// Tree maintenance needs these whatever the subscriber asked for.
		mask |= InCreate | InMovedTo | InMoveSelf
	}
	mask = AddFlags(mask, opts.OnlyDir, opts.DontFollow, opts.OneShot)

	deliver := make(map[Kind]bool)
	for _, k := range opts.Events {
		for _, m := range k.Members() {
			deliver[m] = true
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(opts.LogLevel, false)
	}

	renames, err := newRenameCorrelator(opts.RenameCapacity)
	if err != nil {
		return nil, fmt.Errorf("create rename correlator: %w", err)
	}

	return &Watcher{
		root:      abs,
		rootIsDir: info.IsDir(),
		opts:      opts,
		mask:      mask,
		deliver:   deliver,
		logger:    logger.With(zap.String("root", abs)),
		notifier:  notifier,
		lister:    lister,
		tree:      newWatchTree(),
		dedup:     newDedupCache(opts.DedupWindow),
		renames:   renames,
		events:    make(chan Event, opts.EventBufferSize),
		errors:    make(chan error, opts.ErrorBufferSize),
		done:      make(chan struct{}),
	}, nil
}

// Start installs the root watch and begins processing notifications. It
// returns once the recursive install has been issued, not when every
// subtree is watched. Cancelling ctx closes the watcher.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.started {
		return errors.New("watcher already started")
	}

	res, err := w.watchDir(w.root, false)
	if err != nil {
		return &WatchError{Op: "watch", Path: w.root, Err: err}
	}
	w.started = true

	w.wg.Add(1)
	go w.run()

	if w.rootIsDir {
		w.spawnDescend(w.root, res == installNew && !w.opts.SkipExisting)
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = w.Close()
			case <-w.done:
			}
		}()
	}

	w.logger.Debug("watch started",
		zap.Bool("recursive", w.opts.Recursive),
		zap.Uint32("mask", uint32(w.mask)),
	)
	return nil
}

// Close releases every installed watch and stops emission. Events and
// Errors are closed once in-flight work has drained. Close is idempotent.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.done)
		w.mu.Unlock()

		// Wait out any send that passed its closed check before done was closed.
		w.emitMu.Lock()
		w.emitMu.Unlock()

		w.release(w.tree.close())
		err := w.notifier.Close()

		w.wg.Wait()
		close(w.events)
		close(w.errors)

		if err != nil {
			w.closeErr = fmt.Errorf("close notifier: %w", err)
		}
		w.logger.Debug("watch closed")
	})
	return w.closeErr
}

// Events returns the channel of normalized events. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of non-fatal diagnostics. It is closed by Close.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Root returns the absolute path being watched.
func (w *Watcher) Root() string { return w.root }

// Watched returns the sorted paths that currently hold a watch.
func (w *Watcher) Watched() []string { return w.tree.paths() }

// DroppedErrors returns the number of diagnostics dropped because the error channel was full.
func (w *Watcher) DroppedErrors() uint64 { return w.droppedErrors.Load() }

func (w *Watcher) isClosed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// spawn runs fn on a tracked goroutine unless the watcher is closing.
// Callers always hold a wg slot themselves, so Add never races Wait at zero.
func (w *Watcher) spawn(fn func()) {
	if w.isClosed() {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()

	events := w.notifier.Events()
	errs := w.notifier.Errors()
	for {
		select {
		case <-w.done:
			return
		case raw, ok := <-events:
			if !ok {
				w.logger.Warn("notification stream ended")
				w.drainNotifierErrors(errs)
				return
			}
			w.handle(raw)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.emitError(&WatchError{Op: "notify", Path: w.root, Err: err})
		case <-ticker.C:
			if n := w.dedup.sweep(); n > 0 {
				w.logger.Debug("dedup entries expired", zap.Int("count", n))
			}
		}
	}
}

// drainNotifierErrors forwards the errors a stopped primitive queued before
// closing its event stream.
func (w *Watcher) drainNotifierErrors(errs <-chan error) {
	for errs != nil {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.emitError(&WatchError{Op: "notify", Path: w.root, Err: err})
		default:
			return
		}
	}
}

// handle routes one raw notification. It runs only on the event loop.
func (w *Watcher) handle(raw RawEvent) {
	kind, err := Classify(raw.Mask)
	if err != nil {
		w.emitError(&WatchError{Op: "classify", Path: w.root, Err: err})
		return
	}
	if kind == EventQOverflow {
		w.emitError(&WatchError{Op: "notify", Path: w.root, Err: ErrQueueOverflow})
		return
	}

	dir, ok := w.tree.lookup(raw.Handle)
	if !ok {
		w.logger.Debug("event for released watch",
			zap.Int32("handle", int32(raw.Handle)),
			zap.String("event", string(kind)),
		)
		return
	}

	path := dir
	if raw.Name != "" {
		path = filepath.Join(dir, raw.Name)
	}
	isDir := raw.Mask&InIsDir != 0

	w.logger.Debug("raw event",
		zap.String("path", path),
		zap.String("event", string(kind)),
		zap.Uint32("cookie", raw.Cookie),
	)

	ev := Event{Kind: kind, Path: path, IsDir: isDir, ModTime: time.Now()}

	var attached bool
	switch kind {
	case EventCreate:
		if isDir && w.opts.Recursive {
			res, err := w.watchDir(path, false)
			if err != nil {
				w.reportError("watch", path, err)
			}
			attached = res == installNew
		}
		w.emitOnce(ev)
	case EventMoveFrom:
		w.renames.recordSource(raw.Cookie, path)
		w.emit(ev)
	case EventMoveTo:
		ev.From, _ = w.renames.resolve(raw.Cookie)
		if isDir && w.opts.Recursive {
			res, err := w.watchDir(path, true)
			if err != nil {
				w.reportError("watch", path, err)
			}
			attached = res == installNew
		}
		w.emit(ev)
	case EventDeleteSelf, EventMoveSelf:
		ev.Path, ev.Dir = dir, filepath.Dir(dir)
		ev.IsDir = dir != w.root || w.rootIsDir
		if kind == EventMoveSelf {
			if from, moved := w.tree.takeMovedFrom(raw.Handle); moved {
				// Renamed within the tree; the watch already follows the new path.
				ev.Path, ev.Dir = from, filepath.Dir(from)
			} else if dir != w.root {
				w.release(w.tree.removeSubtree(dir))
			}
		}
		w.emit(ev)
	case EventIgnored:
		w.tree.remove(raw.Handle)
		w.logger.Debug("watch released by primitive", zap.String("path", dir))
		w.emit(ev)
	default:
		w.emit(ev)
	}

	for _, k := range kind.FanOut() {
		fan := ev
		fan.Kind = k
		w.emit(fan)
	}

	if attached {
		w.spawnDescend(path, true)
	}
}

// watchDir installs the watch for dir. Installing an already-watched path is
// a no-op reported as installExisting.
func (w *Watcher) watchDir(dir string, rebind bool) (installResult, error) {
	res, h, err := w.tree.install(dir, rebind, func() (Handle, error) {
		return w.notifier.AddWatch(dir, w.mask)
	})
	if err != nil {
		return res, err
	}

	switch res {
	case installNew:
		w.logger.Debug("watch installed", zap.String("path", dir), zap.Int32("handle", int32(h)))
	case installRebound:
		w.logger.Debug("watch moved", zap.String("path", dir), zap.Int32("handle", int32(h)))
	case installAlias:
		w.logger.Debug("directory already watched under another path", zap.String("path", dir))
	}
	return res, nil
}

func (w *Watcher) spawnDescend(dir string, snapshot bool) {
	w.spawn(func() { w.descend(dir, snapshot) })
}

// descend snapshots a newly watched directory and installs watches on its
// subdirectories, siblings concurrently. A child that appears between the
// listing and its watch is caught by the child's own snapshot.
func (w *Watcher) descend(dir string, snapshot bool) {
	if snapshot {
		w.snapshot(dir)
	}
	if !w.opts.Recursive {
		return
	}

	names, err := w.lister.ChildDirs(dir)
	if err != nil {
		w.reportError("list", dir, err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(w.opts.Concurrency)
	for _, name := range names {
		child := filepath.Join(dir, name)
		g.Go(func() error {
			if w.isClosed() {
				return nil
			}
			res, err := w.watchDir(child, false)
			if err != nil {
				w.reportError("watch", child, err)
				return nil
			}
			if res != installNew {
				return nil
			}
			if snapshot {
				// The child may postdate the parent's snapshot; report it before its contents.
				w.emitOnce(Event{Kind: EventCreate, Path: child, IsDir: true, ModTime: time.Now()})
			}
			w.descend(child, snapshot)
			return nil
		})
	}
	_ = g.Wait()
}

// snapshot emits a synthetic create for every entry of dir through the dedup cache.
func (w *Watcher) snapshot(dir string) {
	entries, err := w.lister.Entries(dir)
	if err != nil {
		w.reportError("list", dir, err)
		return
	}
	for _, e := range entries {
		if w.isClosed() {
			return
		}
		w.emitOnce(Event{
			Kind:    EventCreate,
			Path:    filepath.Join(dir, e.Name),
			IsDir:   e.IsDir,
			ModTime: e.ModTime,
		})
	}
}

// release removes watches the tree no longer tracks.
func (w *Watcher) release(handles []Handle) {
	for _, h := range handles {
		if err := w.notifier.RemoveWatch(h); err != nil {
			// Already gone when the directory was deleted.
			w.logger.Debug("remove watch", zap.Int32("handle", int32(h)), zap.Error(err))
		}
	}
}

func (w *Watcher) wants(ev Event) bool {
	if !w.deliver[ev.Kind] {
		return false
	}
	name := filepath.Base(ev.Path)
	if w.opts.ExcludeHidden && isHidden(ev.Path) {
		return false
	}
	if w.opts.Pattern != "" {
		if matched, _ := filepath.Match(w.opts.Pattern, name); !matched {
			return false
		}
	}
	if w.opts.IgnorePattern != "" {
		if matched, _ := filepath.Match(w.opts.IgnorePattern, name); matched {
			return false
		}
	}
	return true
}

func (w *Watcher) emit(ev Event) {
	if !w.wants(ev) {
		return
	}
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	w.send(ev)
}

// emitOnce delivers ev unless the same (kind, path) was delivered within the dedup window.
func (w *Watcher) emitOnce(ev Event) {
	if !w.wants(ev) {
		return
	}
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if !w.dedup.admit(ev.Kind, ev.Path) {
		w.logger.Debug("duplicate suppressed", zap.String("path", ev.Path), zap.String("event", string(ev.Kind)))
		return
	}
	w.send(ev)
}

// send must be called with emitMu held.
func (w *Watcher) send(ev Event) {
	if w.isClosed() {
		return
	}
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Watcher) reportError(op, path string, err error) {
	if errors.Is(err, ErrClosed) {
		return
	}
	if isTolerated(err) {
		w.logger.Debug("skipping subtree", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return
	}
	w.emitError(&WatchError{Op: op, Path: path, Err: err})
}

func (w *Watcher) emitError(err error) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if w.isClosed() {
		return
	}
	w.logger.Warn("watch error", zap.Error(err))
	select {
	case w.errors <- err:
	case <-w.done:
	default:
		count := w.droppedErrors.Add(1)
		w.logger.Warn("error buffer full, dropping diagnostic",
			zap.Error(err),
			zap.Uint64("total_dropped", count),
		)
	}
}
