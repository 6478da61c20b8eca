//go:build !linux

package watch

import (
	"errors"
)

func newDefaultNotifier(bufferSize int) (Notifier, error) {
	return newFsnotifyNotifier(bufferSize)
}

// newInotifyNotifier always fails off Linux; use the fsnotify backend instead.
func newInotifyNotifier(int) (Notifier, error) {
	return nil, errors.New("inotify backend: not supported on this platform")
}
