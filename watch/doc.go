// Basic usage
//
//	opts := watch.Options{
//		Recursive: true,
//	}
//	err := watch.Watch(ctx, "/path/to/watch", opts, nil)
//
// With event filtering
//
//	opts := watch.Options{
//		Recursive: true,
//		Events:    []watch.Kind{watch.EventCreate, watch.EventMove},
//	}
//
// Channel style
//
//	w, err := watch.New("/path/to/watch", opts)
//	if err != nil {
//		return err
//	}
//	if err := w.Start(ctx); err != nil {
//		return err
//	}
//	defer w.Close()
//	for ev := range w.Events() {
//		fmt.Printf("%s: %s\n", ev.Kind, ev.Path)
//	}
//
// Execute a command or format a line for each event
//
//	err := watch.WatchWithExec(ctx, "/path/to/watch", opts, "echo {event} {}")
//	err := watch.WatchWithFormat(ctx, "/path/to/watch", opts, "{event}: {base} (from {from})")

package watch
