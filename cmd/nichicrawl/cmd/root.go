// Package cmd provides the CLI commands for nichicrawl.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yokai-gen/nichicrawl/internal/config"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/logging"
	"github.com/yokai-gen/nichicrawl/internal/profiling"
	"github.com/yokai-gen/nichicrawl/pkg/version"
)

// rootOptions is shared by every subcommand. cfg is populated before any
// subcommand body runs.
type rootOptions struct {
	configPath string
	debug      bool
	profile    profiling.Options

	cfg        *config.Config
	profiler   *profiling.Session
	logCleanup func()
}

// NewRootCmd creates the root command for the nichicrawl CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "nichicrawl",
		Short: "Discover and harvest yokai picture cards from the Nichibunken archive",
		Long: `nichicrawl enumerates card identifiers of the Nichibunken yokai image
archive, records which ones exist, and harvests their metadata and images
into CSV files.

  nichicrawl discover   brute-force scan for existing identifiers
  nichicrawl harvest    fetch metadata (and images) for known identifiers
  nichicrawl ranges     show the learned per-bucket ranges
  nichicrawl search     query harvested cards locally`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("nichicrawl version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: .nichicrawl.yaml in the working directory)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.nichicrawl/logs/")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		// version must work even with a broken config.
		if c.Name() == "version" {
			return nil
		}
		return opts.setup()
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return opts.teardown()
	}

	cmd.AddCommand(newDiscoverCmd(opts))
	cmd.AddCommand(newHarvestCmd(opts))
	cmd.AddCommand(newRangesCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration, installs the logger and starts profiling.
func (o *rootOptions) setup() error {
	wd, err := os.Getwd()
	if err != nil {
		return crawlerr.ConfigError("cannot determine working directory", err)
	}
	cfg, err := config.Load(wd, o.configPath)
	if err != nil {
		return crawlerr.ConfigError(err.Error(), err).
			WithSuggestion("check the YAML files and NICHICRAWL_* variables, or run 'nichicrawl config show'")
	}
	o.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if o.debug {
		logCfg = logging.DebugConfig()
		logCfg.FilePath = logging.ResolveLogPath(cfg.Logging.Dir)
	}
	logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	logCfg.MaxFiles = cfg.Logging.MaxFiles

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return crawlerr.New(crawlerr.ErrCodeWriteFailed, "failed to setup logging", err)
	}
	o.logCleanup = cleanup
	if o.debug {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	if o.profile.Enabled() {
		s, err := profiling.Start(o.profile)
		if err != nil {
			return crawlerr.New(crawlerr.ErrCodeWriteFailed, "failed to start profiling", err)
		}
		o.profiler = s
	}
	return nil
}

// teardown stops profiling and closes the log file.
func (o *rootOptions) teardown() error {
	var firstErr error
	if o.profiler != nil {
		if err := o.profiler.Stop(); err != nil {
			firstErr = fmt.Errorf("failed to stop profiling: %w", err)
		}
		o.profiler = nil
	}
	if o.logCleanup != nil {
		slog.Debug("logging_stopped")
		o.logCleanup()
		o.logCleanup = nil
	}
	return firstErr
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
