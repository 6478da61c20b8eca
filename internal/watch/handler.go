package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Result carries either an event or a non-fatal error to a Handler.
type Result struct {
	Event Event
	Error error
}

// Handler processes watch results. A returned error is fed back to the
// handler as a Result so it can decide whether to log it.
type Handler func(ctx context.Context, result Result) error

// defaultHandler returns a handler that prints events
func defaultHandler(out io.Writer) Handler {
	return func(ctx context.Context, result Result) error {
		if result.Error != nil {
			return result.Error
		}
		fmt.Fprintln(out, result.Event.String())
		return nil
	}
}

// Watch monitors root until ctx is cancelled or opts.Timeout elapses,
// passing every event and diagnostic to handler.
func Watch(ctx context.Context, root string, opts Options, handler Handler) error {
	if handler == nil {
		handler = defaultHandler(os.Stdout)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	w, err := New(root, opts)
	if err != nil {
		return err
	}
	return serve(ctx, w, handler)
}

// serve starts w and dispatches its output until ctx is done or the
// watcher's channels close.
func serve(ctx context.Context, w *Watcher, handler Handler) error {
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return err
	}
	defer w.Close()

	events, errs := w.Events(), w.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := handler(ctx, Result{Event: ev}); err != nil {
				_ = handler(ctx, Result{Error: fmt.Errorf("error handling event: %w", err)})
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			_ = handler(ctx, Result{Error: err})
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// WatchWithExec watches for filesystem changes and executes a command for each event
func WatchWithExec(ctx context.Context, root string, opts Options, cmdTemplate string) error {
	return Watch(ctx, root, opts, ExecHandler(os.Stdout, cmdTemplate))
}

// WatchWithFormat watches for filesystem changes and formats output for each event
func WatchWithFormat(ctx context.Context, root string, opts Options, formatTemplate string) error {
	return Watch(ctx, root, opts, FormatHandler(os.Stdout, formatTemplate))
}

// ExecHandler returns a handler that runs cmdTemplate, expanded with
// FormatEvent, for each event and copies the command's stdout to out.
func ExecHandler(out io.Writer, cmdTemplate string) Handler {
	return func(ctx context.Context, result Result) error {
		if result.Error != nil {
			return result.Error
		}
		return executeCommand(ctx, out, FormatEvent(cmdTemplate, result.Event))
	}
}

// FormatHandler returns a handler that writes one formatted line per event to out.
func FormatHandler(out io.Writer, formatTemplate string) Handler {
	return func(ctx context.Context, result Result) error {
		if result.Error != nil {
			return result.Error
		}
		fmt.Fprintln(out, FormatEvent(formatTemplate, result.Event))
		return nil
	}
}

// FormatEvent replaces placeholders in a template with values from the event.
//
// Supported placeholders are {} (path), {base}, {dir}, {event}, {from} and
// {time}; wrapping the name in double quotes, as in {"base"}, substitutes a
// Go-quoted value. {""} is the quoted path.
func FormatEvent(template string, ev Event) string {
	dir := ev.Dir
	if dir == "" {
		dir = filepath.Dir(ev.Path)
	}
	values := []struct {
		name  string
		value string
	}{
		{"", ev.Path},
		{"base", filepath.Base(ev.Path)},
		{"dir", dir},
		{"event", string(ev.Kind)},
		{"from", ev.From},
		{"time", ev.ModTime.Format(time.RFC3339)},
	}

	str := template
	for _, v := range values {
		str = strings.ReplaceAll(str, "{"+v.name+"}", v.value)
		str = strings.ReplaceAll(str, `{"`+v.name+`"}`, strconv.Quote(v.value))
	}
	return str
}

// executeCommand runs cmdStr split on whitespace and copies its stdout to out.
func executeCommand(ctx context.Context, out io.Writer, cmdStr string) error {
	args := strings.Fields(cmdStr)
	if len(args) == 0 {
		return errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("command error: %s: %w", strings.TrimSpace(stderr.String()), err)
		}
		return err
	}

	if stdout.Len() > 0 {
		_, _ = out.Write(stdout.Bytes())
	}
	return nil
}

func isHidden(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
