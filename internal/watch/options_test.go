package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestWithDefaults(t *testing.T) {
	opts := Options{Recursive: true, DedupWindow: time.Minute}.WithDefaults()

	assert.True(t, opts.Recursive)
	assert.Equal(t, time.Minute, opts.DedupWindow)
	assert.Equal(t, DefaultEvents, opts.Events)
	assert.Equal(t, 30*time.Second, opts.SweepInterval)
	assert.Equal(t, 4096, opts.RenameCapacity)
	assert.Equal(t, 256, opts.EventBufferSize)
	assert.Equal(t, 16, opts.ErrorBufferSize)
	assert.Equal(t, 8, opts.Concurrency)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	err := Options{
		Events:  []Kind{EventCreate, "bogus"},
		Pattern: "[",
		Backend: "kqueue",
	}.Validate()
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.ErrorContains(t, err, "invalid pattern")
	assert.ErrorContains(t, err, `unknown backend "kqueue"`)
}

func TestNewLogger(t *testing.T) {
	for _, level := range []LogLevel{LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug} {
		assert.NotNil(t, NewLogger(level, true))
	}
	assert.True(t, NewLogger(LogLevelDebug, false).Core().Enabled(zapcore.DebugLevel))
	assert.False(t, NewLogger(LogLevelError, false).Core().Enabled(zapcore.InfoLevel))
}
