package watch

import (
	"fmt"
)

// Handle identifies one installed watch.
type Handle int32

// RawEvent is a notification as delivered by the OS primitive.
type RawEvent struct {
	Handle Handle
	Mask   Mask
	Name   string // Entry name relative to the watched directory; empty for self events
	Cookie uint32 // Correlates moved_from with moved_to; zero when unpaired
}

// Notifier is the per-directory watch primitive the supervisor drives.
// Events for a single handle are delivered in the order the OS produced them.
type Notifier interface {
	AddWatch(path string, mask Mask) (Handle, error)
	RemoveWatch(h Handle) error
	Events() <-chan RawEvent
	Errors() <-chan error
	Close() error
}

// NewNotifier creates the primitive for backend.
func NewNotifier(backend Backend, bufferSize int) (Notifier, error) {
	switch backend {
	case BackendAuto:
		return newDefaultNotifier(bufferSize)
	case BackendInotify:
		return newInotifyNotifier(bufferSize)
	case BackendFsnotify:
		return newFsnotifyNotifier(bufferSize)
	}
	return nil, fmt.Errorf("unknown backend %q", string(backend))
}
