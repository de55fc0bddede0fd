package cmd

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/yokai-gen/nichicrawl/internal/config"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	runID   string
	noColor bool
	logFile string
}

func newLogsCmd(root *rootOptions) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View debug logs of previous runs",
		Long: `View and tail the JSON log written by runs started with --debug.

By default the last 50 lines are shown. Use -f to follow new entries.`,
		Example: `  nichicrawl logs
  nichicrawl logs -n 200 --level warn
  nichicrawl logs --run 3f2a --filter probe_failed
  nichicrawl logs -f`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, root.cfg, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	f.IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	f.StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	f.StringVar(&opts.filter, "filter", "", "Filter by keyword/pattern (regex)")
	f.StringVar(&opts.runID, "run", "", "Only entries whose run_id starts with this prefix")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts logsOptions) error {
	explicit := opts.logFile
	if explicit == "" && cfg != nil && cfg.Logging.Dir != "" {
		explicit = logging.ResolveLogPath(cfg.Logging.Dir)
	}
	path, err := logging.FindLogFile(explicit)
	if err != nil {
		return crawlerr.New(crawlerr.ErrCodeInputMissing, err.Error(), err)
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return crawlerr.ConfigError("invalid filter pattern", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		RunID:   opts.runID,
		NoColor: opts.noColor,
	}, cmd.OutOrStdout())

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "Log file: %s\n", path)

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to read log file", err).WithDetail("path", path)
		}
		viewer.Print(entries)
		return nil
	}

	_, _ = fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	ctx, cancel := interruptible(ctx)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	out := cmd.OutOrStdout()
	for {
		select {
		case entry := <-entries:
			_, _ = fmt.Fprintln(out, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(stderr, "Stopped.")
			return nil
		}
	}
}
