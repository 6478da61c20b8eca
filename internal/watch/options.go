package watch

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the verbosity of logging.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// Backend selects the OS watch primitive.
type Backend string

const (
	BackendAuto     Backend = ""
	BackendInotify  Backend = "inotify"
	BackendFsnotify Backend = "fsnotify"
)

// Options configures a Watcher. It is read once by New and never mutated afterwards.
type Options struct {
	// Whether to watch subdirectories recursively
	Recursive bool

	// Events to deliver. Defaults to create, modify, delete and move.
	Events []Kind

	// Primitive-level flags
	OnlyDir    bool
	DontFollow bool
	OneShot    bool

	// Suppress the synthetic creates for entries that already exist when Start is called
	SkipExisting bool

	// Pattern to match base names of delivered events (e.g., "*.go")
	Pattern string

	// Pattern to ignore base names of delivered events
	IgnorePattern string

	// Drop events for hidden files and directories
	ExcludeHidden bool

	// Window during which a repeated (kind, path) create is suppressed
	DedupWindow time.Duration

	// How often expired dedup entries are swept
	SweepInterval time.Duration

	// Maximum number of in-flight renames remembered for move correlation
	RenameCapacity int

	// Channel buffer sizes
	EventBufferSize int
	ErrorBufferSize int

	// Maximum sibling directories installed concurrently
	Concurrency int

	// Timeout for the blocking Watch helpers (0 means no timeout)
	Timeout time.Duration

	Backend  Backend
	Logger   *zap.Logger
	LogLevel LogLevel
}

// DefaultEvents is the subscription used when Options.Events is empty.
var DefaultEvents = []Kind{EventCreate, EventModify, EventDelete, EventMove}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Events:          DefaultEvents,
		DedupWindow:     5 * time.Second,
		SweepInterval:   30 * time.Second,
		RenameCapacity:  4096,
		EventBufferSize: 256,
		ErrorBufferSize: 16,
		Concurrency:     8,
		LogLevel:        LogLevelInfo,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if len(o.Events) == 0 {
		o.Events = d.Events
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = d.DedupWindow
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.RenameCapacity <= 0 {
		o.RenameCapacity = d.RenameCapacity
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if o.ErrorBufferSize <= 0 {
		o.ErrorBufferSize = d.ErrorBufferSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	return o
}

// Validate checks the subscription, filter patterns and backend name.
func (o Options) Validate() error {
	var errs []error
	for _, k := range o.Events {
		if _, err := MaskFor(k); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := filepath.Match(o.Pattern, ""); err != nil {
		errs = append(errs, fmt.Errorf("invalid pattern %q: %w", o.Pattern, err))
	}
	if _, err := filepath.Match(o.IgnorePattern, ""); err != nil {
		errs = append(errs, fmt.Errorf("invalid ignore pattern %q: %w", o.IgnorePattern, err))
	}
	switch o.Backend {
	case BackendAuto, BackendInotify, BackendFsnotify:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", string(o.Backend)))
	}
	return errors.Join(errs...)
}

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel, color bool) *zap.Logger {
	var config zap.Config

	switch level {
	case LogLevelError:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case LogLevelWarn:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case LogLevelDebug:
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		if color {
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	default:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
