package watch

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
)

// Entry is one directory child found by a Lister.
type Entry struct {
	Name    string
	IsDir   bool
	ModTime time.Time
}

// Lister enumerates directory contents for recursive installation and snapshots.
type Lister interface {
	// ChildDirs returns the sorted names of the subdirectories of dir.
	ChildDirs(dir string) ([]string, error)
	// Entries returns every child of dir with its metadata.
	Entries(dir string) ([]Entry, error)
}

// direntLister lists directories with godirwalk, reusing scratch buffers
// between calls.
type direntLister struct {
	followSymlinks bool
	scratch        sync.Pool
}

// NewLister returns the default Lister. Symlinked directories are treated as
// directories only when followSymlinks is set.
func NewLister(followSymlinks bool) Lister {
	return &direntLister{
		followSymlinks: followSymlinks,
		scratch: sync.Pool{
			New: func() any {
				b := make([]byte, godirwalk.MinimumScratchBufferSize)
				return &b
			},
		},
	}
}

func (l *direntLister) readDirents(dir string) (godirwalk.Dirents, error) {
	buf := l.scratch.Get().(*[]byte)
	defer l.scratch.Put(buf)

	dirents, err := godirwalk.ReadDirents(dir, *buf)
	if err != nil {
		return nil, err
	}
	sort.Sort(dirents)
	return dirents, nil
}

// isDir resolves symlinks when following them so a linked directory is descended.
func (l *direntLister) isDir(dir string, de *godirwalk.Dirent) bool {
	if de.IsDir() {
		return true
	}
	if !de.IsSymlink() || !l.followSymlinks {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, de.Name()))
	return err == nil && info.IsDir()
}

func (l *direntLister) ChildDirs(dir string) ([]string, error) {
	dirents, err := l.readDirents(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirents))
	for _, de := range dirents {
		if l.isDir(dir, de) {
			names = append(names, de.Name())
		}
	}
	return names, nil
}

func (l *direntLister) Entries(dir string) ([]Entry, error) {
	dirents, err := l.readDirents(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := os.Lstat(filepath.Join(dir, de.Name()))
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			IsDir:   l.isDir(dir, de),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}
