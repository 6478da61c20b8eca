package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingHandler(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var calls int
	handler := LoggingHandler(zap.New(core), func(ctx context.Context, result Result) error {
		calls++
		return nil
	})

	require.NoError(t, handler(context.Background(), Result{Event: Event{Kind: EventCreate, Path: "/a"}}))
	require.NoError(t, handler(context.Background(), Result{Error: errors.New("boom")}))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, logs.FilterMessage("Event").Len())
	assert.Equal(t, 1, logs.FilterMessage("Watch error").Len())
}

func TestTimingHandler(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	handler := TimingHandler(zap.New(core), time.Millisecond, func(ctx context.Context, result Result) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	require.NoError(t, handler(context.Background(), Result{Event: Event{Kind: EventModify, Path: "/a"}}))
	assert.Equal(t, 1, logs.FilterMessage("Slow handler").Len())
}

func TestWatchTimeout(t *testing.T) {
	root := t.TempDir()
	start := time.Now()
	err := Watch(context.Background(), root, Options{
		Recursive: true,
		Timeout:   200 * time.Millisecond,
		Logger:    zap.NewNop(),
	}, func(ctx context.Context, result Result) error { return nil })
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFacadeKinds(t *testing.T) {
	k, err := ParseKind("move")
	require.NoError(t, err)
	assert.Equal(t, EventMove, k)
	assert.Contains(t, Kinds(), EventCloseWrite)
}
