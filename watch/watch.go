// Package watch provides recursive filesystem change notification.
//
// This package offers a tree-wide watch built from one OS watch per
// directory, with startup snapshots, duplicate suppression and paired
// rename events.
package watch

import (
	"context"
	"io"
	"time"

	internal "github.com/TFMV/treewatch/internal/watch"
	"go.uber.org/zap"
)

// Re-export all the types from the internal package
type (
	// Watcher maintains the watch tree for one root.
	Watcher = internal.Watcher

	// Options configures a Watcher.
	Options = internal.Options

	// Event is a normalized filesystem change.
	Event = internal.Event

	// Kind is a semantic event type.
	Kind = internal.Kind

	// Mask is a raw notification bitmask.
	Mask = internal.Mask

	// Result carries either an event or a non-fatal error to a Handler.
	Result = internal.Result

	// Handler processes watch results.
	Handler = internal.Handler

	// WatchError records a non-fatal failure and the path it concerns.
	WatchError = internal.WatchError

	// LogLevel defines the verbosity of logging.
	LogLevel = internal.LogLevel

	// Backend selects the OS watch primitive.
	Backend = internal.Backend

	// Notifier is the per-directory watch primitive.
	Notifier = internal.Notifier

	// Lister enumerates directory contents.
	Lister = internal.Lister
)

// Re-export all the constants
const (
	// Log levels
	LogLevelError = internal.LogLevelError
	LogLevelWarn  = internal.LogLevelWarn
	LogLevelInfo  = internal.LogLevelInfo
	LogLevelDebug = internal.LogLevelDebug

	// Backends
	BackendAuto     = internal.BackendAuto
	BackendInotify  = internal.BackendInotify
	BackendFsnotify = internal.BackendFsnotify

	// Event kinds
	EventAccess       = internal.EventAccess
	EventAttrib       = internal.EventAttrib
	EventCloseWrite   = internal.EventCloseWrite
	EventCloseNoWrite = internal.EventCloseNoWrite
	EventCreate       = internal.EventCreate
	EventDelete       = internal.EventDelete
	EventDeleteSelf   = internal.EventDeleteSelf
	EventModify       = internal.EventModify
	EventMoveSelf     = internal.EventMoveSelf
	EventMoveFrom     = internal.EventMoveFrom
	EventMoveTo       = internal.EventMoveTo
	EventOpen         = internal.EventOpen
	EventIgnored      = internal.EventIgnored
	EventQOverflow    = internal.EventQOverflow
	EventUnmount      = internal.EventUnmount
	EventClose        = internal.EventClose
	EventMove         = internal.EventMove
	EventAll          = internal.EventAll
)

// Re-export the sentinel errors
var (
	ErrUnknownEvent  = internal.ErrUnknownEvent
	ErrWatchLimit    = internal.ErrWatchLimit
	ErrQueueOverflow = internal.ErrQueueOverflow
	ErrClosed        = internal.ErrClosed
)

// New creates a Watcher for root. Call Start to begin watching.
func New(root string, opts Options) (*Watcher, error) {
	return internal.New(root, opts)
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return internal.DefaultOptions()
}

// ParseKind converts a kind name to a Kind.
func ParseKind(name string) (Kind, error) {
	return internal.ParseKind(name)
}

// Kinds lists every named kind and flag.
func Kinds() []Kind {
	return internal.Kinds()
}

// MaskFor ORs together the masks of the given kinds.
func MaskFor(kinds ...Kind) (Mask, error) {
	return internal.MaskFor(kinds...)
}

// FormatEvent replaces placeholders in a template with values from the event.
func FormatEvent(template string, ev Event) string {
	return internal.FormatEvent(template, ev)
}

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel, color bool) *zap.Logger {
	return internal.NewLogger(level, color)
}

// Watch monitors a directory for filesystem changes
func Watch(ctx context.Context, root string, opts Options, handler Handler) error {
	return internal.Watch(ctx, root, opts, handler)
}

// WatchWithExec watches for filesystem changes and executes a command for each event
func WatchWithExec(ctx context.Context, root string, opts Options, cmdTemplate string) error {
	return internal.WatchWithExec(ctx, root, opts, cmdTemplate)
}

// WatchWithFormat watches for filesystem changes and formats output for each event
func WatchWithFormat(ctx context.Context, root string, opts Options, formatTemplate string) error {
	return internal.WatchWithFormat(ctx, root, opts, formatTemplate)
}

// ExecHandler returns a handler that runs a command for each event.
func ExecHandler(out io.Writer, cmdTemplate string) Handler {
	return internal.ExecHandler(out, cmdTemplate)
}

// FormatHandler returns a handler that writes one formatted line per event.
func FormatHandler(out io.Writer, formatTemplate string) Handler {
	return internal.FormatHandler(out, formatTemplate)
}

// LoggingHandler wraps a handler so every event and error is logged.
func LoggingHandler(logger *zap.Logger, next Handler) Handler {
	return func(ctx context.Context, result Result) error {
		if result.Error != nil {
			logger.Warn("Watch error", zap.Error(result.Error))
		} else {
			logger.Debug("Event",
				zap.String("event", string(result.Event.Kind)),
				zap.String("path", result.Event.Path),
				zap.String("from", result.Event.From),
			)
		}
		return next(ctx, result)
	}
}

// TimingHandler wraps a handler and logs any call slower than threshold.
func TimingHandler(logger *zap.Logger, threshold time.Duration, next Handler) Handler {
	return func(ctx context.Context, result Result) error {
		start := time.Now()
		err := next(ctx, result)
		if d := time.Since(start); d > threshold {
			logger.Warn("Slow handler",
				zap.String("path", result.Event.Path),
				zap.Duration("duration", d),
			)
		}
		return err
	}
}
