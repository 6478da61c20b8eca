package watch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addHandle(h Handle) func() (Handle, error) {
	return func() (Handle, error) { return h, nil }
}

func TestTreeInstallIdempotent(t *testing.T) {
	tree := newWatchTree()

	res, h, err := tree.install("/r", false, addHandle(1))
	require.NoError(t, err)
	assert.Equal(t, installNew, res)
	assert.Equal(t, Handle(1), h)

	calls := 0
	res, h, err = tree.install("/r", false, func() (Handle, error) {
		calls++
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, installExisting, res)
	assert.Equal(t, Handle(1), h)
	assert.Zero(t, calls, "primitive must not be called for a watched path")
}

func TestTreeInstallError(t *testing.T) {
	tree := newWatchTree()
	boom := errors.New("boom")

	_, _, err := tree.install("/r", false, func() (Handle, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, tree.paths())
}

func TestTreeAlias(t *testing.T) {
	tree := newWatchTree()
	_, _, err := tree.install("/r/a", false, addHandle(2))
	require.NoError(t, err)

	// A symlink back to /r/a yields the same handle
	res, _, err := tree.install("/r/link", false, addHandle(2))
	require.NoError(t, err)
	assert.Equal(t, installAlias, res)
	assert.Equal(t, []string{"/r/a"}, tree.paths())
}

func TestTreeRebind(t *testing.T) {
	tree := newWatchTree()
	for p, h := range map[string]Handle{"/r": 1, "/r/a": 2, "/r/a/b": 3, "/r/ab": 4} {
		_, _, err := tree.install(p, false, addHandle(h))
		require.NoError(t, err)
	}

	res, h, err := tree.install("/r/z", true, addHandle(2))
	require.NoError(t, err)
	assert.Equal(t, installRebound, res)
	assert.Equal(t, Handle(2), h)
	assert.Equal(t, []string{"/r", "/r/ab", "/r/z", "/r/z/b"}, tree.paths())

	p, ok := tree.lookup(3)
	require.True(t, ok)
	assert.Equal(t, "/r/z/b", p)

	from, ok := tree.takeMovedFrom(2)
	require.True(t, ok)
	assert.Equal(t, "/r/a", from)
	_, ok = tree.takeMovedFrom(2)
	assert.False(t, ok)
}

func TestTreeRemoveSubtree(t *testing.T) {
	tree := newWatchTree()
	for p, h := range map[string]Handle{"/r": 1, "/r/a": 2, "/r/a/b": 3, "/r/ab": 4} {
		_, _, err := tree.install(p, false, addHandle(h))
		require.NoError(t, err)
	}

	handles := tree.removeSubtree("/r/a")
	assert.ElementsMatch(t, []Handle{2, 3}, handles)
	assert.Equal(t, []string{"/r", "/r/ab"}, tree.paths())

	_, ok := tree.lookup(3)
	assert.False(t, ok)
}

func TestTreeRemove(t *testing.T) {
	tree := newWatchTree()
	_, _, err := tree.install("/r", false, addHandle(1))
	require.NoError(t, err)

	p, ok := tree.remove(1)
	require.True(t, ok)
	assert.Equal(t, "/r", p)
	_, ok = tree.remove(1)
	assert.False(t, ok)
	assert.Empty(t, tree.paths())
}

func TestTreeClose(t *testing.T) {
	tree := newWatchTree()
	_, _, err := tree.install("/r", false, addHandle(1))
	require.NoError(t, err)
	_, _, err = tree.install("/r/a", false, addHandle(2))
	require.NoError(t, err)

	assert.ElementsMatch(t, []Handle{1, 2}, tree.close())
	assert.Empty(t, tree.paths())

	_, _, err = tree.install("/r/b", false, addHandle(3))
	assert.ErrorIs(t, err, ErrClosed)
}
