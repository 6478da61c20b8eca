package watch

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFormatEvent(t *testing.T) {
	ev := Event{
		Kind:    EventMoveTo,
		Path:    "/data/in box/new.txt",
		From:    "/data/old.txt",
		ModTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		template string
		want     string
	}{
		{"{event} {}", "move_to /data/in box/new.txt"},
		{"{base} in {dir}", "new.txt in /data/in box"},
		{"{from} -> {}", "/data/old.txt -> /data/in box/new.txt"},
		{"{time}", "2024-03-01T12:00:00Z"},
		{`cp {""} {"from"}`, `cp "/data/in box/new.txt" "/data/old.txt"`},
		{`{"event"}:{"base"}`, `"move_to":"new.txt"`},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEvent(tt.template, ev))
		})
	}
}

func TestFormatEventSelfDir(t *testing.T) {
	ev := Event{Kind: EventMoveSelf, Path: "/data/old", Dir: "/data"}
	assert.Equal(t, "/data", FormatEvent("{dir}", ev))
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "CREATE: /a", Event{Kind: EventCreate, Path: "/a"}.String())
	assert.Equal(t, "MOVE: /b (from /a)", Event{Kind: EventMove, Path: "/b", From: "/a"}.String())
}

func TestFormatHandler(t *testing.T) {
	var out bytes.Buffer
	handler := FormatHandler(&out, "{event}:{base}")

	require.NoError(t, handler(context.Background(), Result{Event: Event{Kind: EventCreate, Path: "/x/y.go"}}))
	assert.Equal(t, "create:y.go\n", out.String())

	boom := errors.New("boom")
	assert.ErrorIs(t, handler(context.Background(), Result{Error: boom}), boom)
}

func TestExecHandler(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}

	var out bytes.Buffer
	handler := ExecHandler(&out, "echo {event} {base}")
	require.NoError(t, handler(context.Background(), Result{Event: Event{Kind: EventModify, Path: "/x/y.go"}}))
	assert.Equal(t, "modify y.go", strings.TrimSpace(out.String()))
}

func TestExecuteCommandEmpty(t *testing.T) {
	assert.Error(t, executeCommand(context.Background(), &bytes.Buffer{}, "   "))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden("/a/.git"))
	assert.False(t, isHidden("/a/b.txt"))
	assert.False(t, isHidden("."))
}

func TestServeDispatchesUntilCancel(t *testing.T) {
	h := newHarness(t)
	h.l.add(h.root, fileEntry("seen.txt"))
	w, err := NewWithNotifier(h.root, Options{Recursive: true, Logger: zaptest.NewLogger(t)}, h.n, h.l)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, w, func(ctx context.Context, result Result) error {
			if result.Error == nil {
				got <- result.Event
			}
			return nil
		})
	}()

	select {
	case ev := <-got:
		assert.Equal(t, EventCreate, ev.Kind)
		assert.Equal(t, h.path("seen.txt"), ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
