package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/treewatch/watch"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory tree for changes",
	Long: `Watch a directory tree for changes and print or act on each event.

Format templates and exec commands accept the placeholders {} (path),
{base}, {dir}, {event}, {from} and {time}. Quote a placeholder name, as in
{"base"}, to substitute a quoted value.

Examples:
  treewatch watch -r /path/to/watch
  treewatch watch -r --events=create,move --format=json /path/to/watch
  treewatch watch -r --events=close_write --exec="echo saved {}" /path/to/watch
  treewatch watch --pattern="*.go" --format="{base} was {event} at {time}" .`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		return runWatch(cmd.Context(), root, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	flags := watchCmd.Flags()
	flags.BoolP("recursive", "r", false, "Watch subdirectories recursively")
	flags.StringSlice("events", nil, "Events to report (see 'treewatch kinds'); default create,modify,delete,move")
	flags.Bool("only-dir", false, "Only watch the path if it is a directory")
	flags.Bool("dont-follow", false, "Do not follow symbolic links")
	flags.Bool("oneshot", false, "Report each watch's first event only")
	flags.Bool("skip-existing", false, "Do not report entries that exist when watching starts")
	flags.Duration("dedup-window", 0, "Window for suppressing duplicate creates (default 5s)")
	flags.Int("concurrency", 0, "Sibling directories installed concurrently (default 8)")
	flags.String("backend", "", "Watch primitive (inotify|fsnotify); default picks the best available")
	flags.String("format", "text", "Output format (text|json) or a template")
	flags.String("exec", "", "Command to execute for each event")
	flags.String("pattern", "", "Base-name pattern to match (e.g., *.go)")
	flags.String("ignore", "", "Base-name pattern to ignore")
	flags.Bool("exclude-hidden", false, "Skip hidden files and directories")
	flags.Duration("timeout", 0, "Duration to watch before exiting (e.g., 1h, 30m)")

	// Bind flags to viper
	for _, name := range []string{
		"recursive", "events", "only-dir", "dont-follow", "oneshot", "skip-existing",
		"dedup-window", "concurrency", "backend", "format", "exec", "pattern",
		"ignore", "exclude-hidden", "timeout",
	} {
		viper.BindPFlag("watch."+name, flags.Lookup(name))
	}
}

// slowCommand is how long an --exec command may run before it is logged.
const slowCommand = 2 * time.Second

// watchOptions builds watcher options from flags, config file and environment.
func watchOptions() (watch.Options, error) {
	var kinds []watch.Kind
	for _, name := range viper.GetStringSlice("watch.events") {
		k, err := watch.ParseKind(name)
		if err != nil {
			return watch.Options{}, err
		}
		kinds = append(kinds, k)
	}

	return watch.Options{
		Recursive:     viper.GetBool("watch.recursive"),
		Events:        kinds,
		OnlyDir:       viper.GetBool("watch.only-dir"),
		DontFollow:    viper.GetBool("watch.dont-follow"),
		OneShot:       viper.GetBool("watch.oneshot"),
		SkipExisting:  viper.GetBool("watch.skip-existing"),
		DedupWindow:   viper.GetDuration("watch.dedup-window"),
		Concurrency:   viper.GetInt("watch.concurrency"),
		Backend:       watch.Backend(viper.GetString("watch.backend")),
		Pattern:       viper.GetString("watch.pattern"),
		IgnorePattern: viper.GetString("watch.ignore"),
		ExcludeHidden: viper.GetBool("watch.exclude-hidden"),
		Timeout:       viper.GetDuration("watch.timeout"),
		LogLevel:      logLevel(),
	}, nil
}

// outputHandler prints each event in the requested format.
func outputHandler(format string, stdout io.Writer) watch.Handler {
	switch format {
	case "", "text":
		return func(ctx context.Context, result watch.Result) error {
			if result.Error != nil {
				return result.Error
			}
			fmt.Fprintln(stdout, result.Event.String())
			return nil
		}
	case "json":
		enc := json.NewEncoder(stdout)
		return func(ctx context.Context, result watch.Result) error {
			if result.Error != nil {
				return result.Error
			}
			return enc.Encode(result.Event)
		}
	}
	return watch.FormatHandler(stdout, format)
}

// reportErrors prints diagnostics and handler failures to stderr so the watch keeps running.
func reportErrors(stderr io.Writer, next watch.Handler) watch.Handler {
	return func(ctx context.Context, result watch.Result) error {
		if result.Error != nil {
			fmt.Fprintf(stderr, "Error: %v\n", result.Error)
			return nil
		}
		if err := next(ctx, result); err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", result.Event.Path, err)
		}
		return nil
	}
}

func runWatch(ctx context.Context, root string, stdout, stderr io.Writer) error {
	opts, err := watchOptions()
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()
	opts.Logger = logger

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !viper.GetBool("silent") {
		fmt.Fprintf(stderr, "Watching %s for changes...\n", root)
		fmt.Fprintln(stderr, "Press Ctrl+C to exit.")
	}

	var handler watch.Handler
	if cmdTemplate := viper.GetString("watch.exec"); cmdTemplate != "" {
		handler = watch.TimingHandler(logger, slowCommand, watch.ExecHandler(stdout, cmdTemplate))
	} else {
		handler = outputHandler(viper.GetString("watch.format"), stdout)
	}
	if viper.GetBool("verbose") {
		handler = watch.LoggingHandler(logger, handler)
	}
	return watch.Watch(ctx, root, opts, reportErrors(stderr, handler))
}
