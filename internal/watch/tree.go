package watch

import (
	"os"
	"sort"
	"strings"
	"sync"
)

type installResult int

const (
	installExisting installResult = iota // path already had a watch
	installNew                           // first watch for this path
	installAlias                         // the primitive returned a handle already bound to another live path
	installRebound                       // a moved directory's handle was re-keyed to this path
)

type watchNode struct {
	path   string
	handle Handle
	// movedFrom is set on the top node of a re-keyed subtree until its move_self arrives.
	movedFrom string
}

// watchTree maps directory paths to installed watch handles. install is
// atomic with respect to concurrent installers for the same path.
type watchTree struct {
	mu       sync.Mutex
	closed   bool
	byPath   map[string]*watchNode
	byHandle map[Handle]*watchNode
}

func newWatchTree() *watchTree {
	return &watchTree{
		byPath:   make(map[string]*watchNode),
		byHandle: make(map[Handle]*watchNode),
	}
}

// install binds path to the handle returned by add unless path is already watched.
// With rebind set, a handle already bound elsewhere is treated as a moved
// directory and its subtree is re-keyed under path; otherwise it is an alias
// (a symlink or bind mount back into the tree) and left alone.
func (t *watchTree) install(path string, rebind bool, add func() (Handle, error)) (installResult, Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return installExisting, 0, ErrClosed
	}
	if n, ok := t.byPath[path]; ok {
		return installExisting, n.handle, nil
	}

	h, err := add()
	if err != nil {
		return installExisting, 0, err
	}

	if n, ok := t.byHandle[h]; ok {
		if !rebind {
			return installAlias, h, nil
		}
		t.rekeyLocked(n.path, path)
		return installRebound, h, nil
	}

	n := &watchNode{path: path, handle: h}
	t.byPath[path] = n
	t.byHandle[h] = n
	return installNew, h, nil
}

func (t *watchTree) rekeyLocked(from, to string) {
	prefix := from + string(os.PathSeparator)
	for p, n := range t.byPath {
		switch {
		case p == from:
			n.path = to
			n.movedFrom = from
		case strings.HasPrefix(p, prefix):
			n.path = to + p[len(from):]
		default:
			continue
		}
		delete(t.byPath, p)
	}
	for _, n := range t.byHandle {
		if n.path == to || strings.HasPrefix(n.path, to+string(os.PathSeparator)) {
			t.byPath[n.path] = n
		}
	}
}

// lookup returns the path bound to h.
func (t *watchTree) lookup(h Handle) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byHandle[h]
	if !ok {
		return "", false
	}
	return n.path, true
}

// takeMovedFrom returns and clears the pre-move path recorded for h.
func (t *watchTree) takeMovedFrom(h Handle) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byHandle[h]
	if !ok || n.movedFrom == "" {
		return "", false
	}
	from := n.movedFrom
	n.movedFrom = ""
	return from, true
}

// remove drops the node for h, e.g. after the primitive reported it ignored.
func (t *watchTree) remove(h Handle) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byHandle[h]
	if !ok {
		return "", false
	}
	delete(t.byHandle, h)
	if cur, ok := t.byPath[n.path]; ok && cur == n {
		delete(t.byPath, n.path)
	}
	return n.path, true
}

// removeSubtree drops path and every node beneath it and returns their handles.
func (t *watchTree) removeSubtree(path string) []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := path + string(os.PathSeparator)
	var handles []Handle
	for p, n := range t.byPath {
		if p != path && !strings.HasPrefix(p, prefix) {
			continue
		}
		delete(t.byPath, p)
		delete(t.byHandle, n.handle)
		handles = append(handles, n.handle)
	}
	return handles
}

// close empties the tree, refuses further installs and returns every handle.
func (t *watchTree) close() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	handles := make([]Handle, 0, len(t.byHandle))
	for h := range t.byHandle {
		handles = append(handles, h)
	}
	t.byPath = make(map[string]*watchNode)
	t.byHandle = make(map[Handle]*watchNode)
	return handles
}

func (t *watchTree) paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.byPath))
	for p := range t.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
