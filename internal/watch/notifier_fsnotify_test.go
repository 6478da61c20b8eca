package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFsnotify(t *testing.T) *fsnotifyNotifier {
	t.Helper()
	n, err := newFsnotifyNotifier(16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n.(*fsnotifyNotifier)
}

func TestFsnotifyTranslate(t *testing.T) {
	n := newTestFsnotify(t)
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	hr, err := n.AddWatch(root, InAllEvents)
	require.NoError(t, err)
	hs, err := n.AddWatch(sub, InAllEvents)
	require.NoError(t, err)

	again, err := n.AddWatch(root, InAllEvents)
	require.NoError(t, err)
	assert.Equal(t, hr, again, "same path keeps its handle")

	raws := n.translate(fsnotify.Event{Name: sub, Op: fsnotify.Create})
	require.Len(t, raws, 1)
	assert.Equal(t, RawEvent{Handle: hr, Mask: InCreate | InIsDir, Name: "sub"}, raws[0])

	raws = n.translate(fsnotify.Event{Name: filepath.Join(sub, "f"), Op: fsnotify.Write})
	require.Len(t, raws, 1)
	assert.Equal(t, RawEvent{Handle: hs, Mask: InModify, Name: "f"}, raws[0])

	raws = n.translate(fsnotify.Event{Name: sub, Op: fsnotify.Rename})
	assert.Equal(t, []RawEvent{
		{Handle: hr, Mask: InMovedFrom | InIsDir, Name: "sub"},
		{Handle: hs, Mask: InMoveSelf},
	}, raws)

	raws = n.translate(fsnotify.Event{Name: sub, Op: fsnotify.Remove})
	assert.Equal(t, []RawEvent{
		{Handle: hr, Mask: InDelete | InIsDir, Name: "sub"},
		{Handle: hs, Mask: InDeleteSelf},
		{Handle: hs, Mask: InIgnored},
	}, raws)
	_, watched := n.byHandle[hs]
	assert.False(t, watched)
}

func TestFsnotifyMaskFilter(t *testing.T) {
	n := newTestFsnotify(t)
	root := t.TempDir()

	h, err := n.AddWatch(root, InCreate)
	require.NoError(t, err)

	assert.Empty(t, n.translate(fsnotify.Event{Name: filepath.Join(root, "f"), Op: fsnotify.Chmod}))
	raws := n.translate(fsnotify.Event{Name: filepath.Join(root, "f"), Op: fsnotify.Create | fsnotify.Chmod})
	assert.Equal(t, []RawEvent{{Handle: h, Mask: InCreate, Name: "f"}}, raws)
}

func TestFsnotifyOnlyDir(t *testing.T) {
	n := newTestFsnotify(t)
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := n.AddWatch(file, InModify|InOnlyDir)
	assert.Error(t, err)
}

func TestFsnotifyDelivers(t *testing.T) {
	n := newTestFsnotify(t)
	root := t.TempDir()
	h, err := n.AddWatch(root, InCreate)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), nil, 0o644))
	select {
	case raw := <-n.Events():
		assert.Equal(t, h, raw.Handle)
		assert.Equal(t, "f", raw.Name)
		assert.NotZero(t, raw.Mask&InCreate)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fsnotify event")
	}

	require.NoError(t, n.RemoveWatch(h))
	assert.Error(t, n.RemoveWatch(h))
}

func TestWatcherOnFsnotifyBackend(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, Options{Recursive: true, Backend: BackendFsnotify, SkipExisting: true})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	dir := filepath.Join(root, "d")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.Eventually(t, func() bool { return contains(w.Watched(), dir) }, 2*time.Second, 10*time.Millisecond)

	file := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Kind == EventCreate && ev.Path == file {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for nested create")
		}
	}
}
