package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyNotifier adapts fsnotify to the raw Notifier contract. fsnotify
// does not expose rename cookies, so renames surface as an unpaired
// moved_from followed by a create for the destination.
type fsnotifyNotifier struct {
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	next     Handle
	byPath   map[string]Handle
	byHandle map[Handle]fsWatch

	events chan RawEvent
	errors chan error
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

type fsWatch struct {
	path string
	mask Mask
}

func newFsnotifyNotifier(bufferSize int) (Notifier, error) {
	w, err := fsnotify.NewBufferedWatcher(uint(bufferSize))
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}

	n := &fsnotifyNotifier{
		watcher:  w,
		byPath:   make(map[string]Handle),
		byHandle: make(map[Handle]fsWatch),
		events:   make(chan RawEvent, bufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go n.forward()
	return n, nil
}

func (n *fsnotifyNotifier) Events() <-chan RawEvent { return n.events }

func (n *fsnotifyNotifier) Errors() <-chan error { return n.errors }

// AddWatch returns the existing handle for an already-watched path, updating its mask.
func (n *fsnotifyNotifier) AddWatch(path string, mask Mask) (Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if h, ok := n.byPath[path]; ok {
		n.byHandle[h] = fsWatch{path: path, mask: mask}
		return h, nil
	}
	if mask&InOnlyDir != 0 {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			return 0, &os.PathError{Op: "watch", Path: path, Err: fmt.Errorf("not a directory")}
		}
	}
	if err := n.watcher.Add(path); err != nil {
		return 0, err
	}
	n.next++
	n.byPath[path] = n.next
	n.byHandle[n.next] = fsWatch{path: path, mask: mask}
	return n.next, nil
}

func (n *fsnotifyNotifier) RemoveWatch(h Handle) error {
	n.mu.Lock()
	w, ok := n.byHandle[h]
	if ok {
		delete(n.byHandle, h)
		delete(n.byPath, w.path)
	}
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("remove watch %d: unknown handle", h)
	}
	return n.watcher.Remove(w.path)
}

func (n *fsnotifyNotifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.watcher.Close()
		<-n.exited
	})
	return err
}

func (n *fsnotifyNotifier) forward() {
	defer func() {
		close(n.events)
		close(n.errors)
		close(n.exited)
	}()

	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			for _, raw := range n.translate(event) {
				select {
				case n.events <- raw:
				case <-n.done:
					return
				}
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			select {
			case n.errors <- fmt.Errorf("watcher error: %w", err):
			case <-n.done:
				return
			}
		}
	}
}

var fsnotifyOps = []struct {
	op     fsnotify.Op
	child  Mask
	parent Mask
}{
	{fsnotify.Create, InCreate, 0},
	{fsnotify.Write, InModify, InModify},
	{fsnotify.Remove, InDelete, InDeleteSelf},
	{fsnotify.Rename, InMovedFrom, InMoveSelf},
	{fsnotify.Chmod, InAttrib, InAttrib},
}

// translate turns one fsnotify event into raw records for the containing
// directory's watch and, when the path is itself watched, a self record.
func (n *fsnotifyNotifier) translate(event fsnotify.Event) []RawEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	name := filepath.Clean(event.Name)
	parent, parentOK := n.byPath[filepath.Dir(name)]
	self, selfOK := n.byPath[name]

	var isDir Mask
	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(name); err == nil && info.IsDir() {
			isDir = InIsDir
		}
	} else if selfOK {
		isDir = InIsDir
	}

	var out []RawEvent
	for _, o := range fsnotifyOps {
		if !event.Has(o.op) {
			continue
		}
		if parentOK && n.byHandle[parent].mask&o.child != 0 {
			out = append(out, RawEvent{Handle: parent, Mask: o.child | isDir, Name: filepath.Base(name)})
		}
		if selfOK && o.parent != 0 && n.byHandle[self].mask&o.parent != 0 {
			out = append(out, RawEvent{Handle: self, Mask: o.parent})
		}
	}
	if selfOK && event.Has(fsnotify.Remove) {
		// fsnotify drops the watch itself; report it the way inotify does.
		delete(n.byHandle, self)
		delete(n.byPath, name)
		out = append(out, RawEvent{Handle: self, Mask: InIgnored})
	}
	return out
}
