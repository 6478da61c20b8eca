package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrUnknownEvent is reported for raw masks and kind names that do not map to a kind.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrWatchLimit is reported when the primitive refuses more watches.
	ErrWatchLimit = errors.New("watch limit reached")
	// ErrQueueOverflow is reported when the primitive dropped notifications.
	ErrQueueOverflow = errors.New("event queue overflow")
	// ErrClosed is returned by operations on a closed watcher.
	ErrClosed = errors.New("watcher closed")
)

// Event is a normalized filesystem change delivered to subscribers
type Event struct {
	Kind    Kind      `json:"event"`
	Path    string    `json:"path"`           // Absolute path of the entry
	IsDir   bool      `json:"is_dir"`         // Whether the entry is a directory
	ModTime time.Time `json:"time"`           // Modification time, or detection time for live events
	From    string    `json:"from,omitempty"` // Pre-rename path for move_to and move
	Dir     string    `json:"dir,omitempty"`  // Containing directory for delete_self and move_self
}

func (e Event) String() string {
	s := fmt.Sprintf("%s: %s", strings.ToUpper(string(e.Kind)), e.Path)
	if e.From != "" {
		s += " (from " + e.From + ")"
	}
	return s
}

// WatchError records a non-fatal failure and the path it concerns.
type WatchError struct {
	Op   string
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *WatchError) Unwrap() error { return e.Err }

// isTolerated reports whether err only means the subtree is gone or
// unreachable and should be skipped without telling the subscriber.
func isTolerated(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.ELOOP)
}
