//go:build linux

package watch

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inotifyNotifier exposes raw inotify records, cookies included.
type inotifyNotifier struct {
	fd     int
	file   *os.File
	events chan RawEvent
	errors chan error
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newDefaultNotifier(bufferSize int) (Notifier, error) {
	return newInotifyNotifier(bufferSize)
}

func newInotifyNotifier(bufferSize int) (Notifier, error) {
	// Non-blocking so the runtime poller owns the fd and Close unblocks Read.
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}

	n := &inotifyNotifier{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), "inotify"),
		events: make(chan RawEvent, bufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go n.readEvents()
	return n, nil
}

func (n *inotifyNotifier) Events() <-chan RawEvent { return n.events }

func (n *inotifyNotifier) Errors() <-chan error { return n.errors }

func (n *inotifyNotifier) AddWatch(path string, mask Mask) (Handle, error) {
	wd, err := unix.InotifyAddWatch(n.fd, path, uint32(mask))
	if err != nil {
		if errors.Is(err, unix.ENOSPC) {
			return 0, fmt.Errorf("inotify_add_watch %s: %w: %w", path, ErrWatchLimit, err)
		}
		return 0, &os.PathError{Op: "inotify_add_watch", Path: path, Err: err}
	}
	return Handle(wd), nil
}

func (n *inotifyNotifier) RemoveWatch(h Handle) error {
	if _, err := unix.InotifyRmWatch(n.fd, uint32(h)); err != nil {
		return fmt.Errorf("inotify_rm_watch %d: %w", h, err)
	}
	return nil
}

func (n *inotifyNotifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.file.Close()
		<-n.exited
	})
	return err
}

func (n *inotifyNotifier) readEvents() {
	defer func() {
		close(n.events)
		close(n.errors)
		close(n.exited)
	}()

	var buf [unix.SizeofInotifyEvent * 4096]byte
	for {
		nr, err := n.file.Read(buf[:])
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			select {
			case n.errors <- fmt.Errorf("inotify read: %w", err):
			case <-n.done:
			}
			return
		}
		if nr < unix.SizeofInotifyEvent {
			select {
			case n.errors <- fmt.Errorf("inotify read: short read of %d bytes", nr):
			case <-n.done:
				return
			}
			continue
		}

		var offset uint32
		for offset <= uint32(nr-unix.SizeofInotifyEvent) {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameLen := raw.Len

			ev := RawEvent{
				Handle: Handle(raw.Wd),
				Mask:   Mask(raw.Mask),
				Cookie: raw.Cookie,
			}
			if nameLen > 0 {
				start := offset + unix.SizeofInotifyEvent
				ev.Name = strings.TrimRight(string(buf[start:start+nameLen]), "\x00")
			}

			select {
			case n.events <- ev:
			case <-n.done:
				return
			}
			offset += unix.SizeofInotifyEvent + nameLen
		}
	}
}
