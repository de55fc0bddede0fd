package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yokai-gen/nichicrawl/internal/card"
	"github.com/yokai-gen/nichicrawl/internal/config"
	"github.com/yokai-gen/nichicrawl/internal/discover"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/harvest"
	"github.com/yokai-gen/nichicrawl/internal/ident"
	"github.com/yokai-gen/nichicrawl/internal/output"
	"github.com/yokai-gen/nichicrawl/internal/prune"
	"github.com/yokai-gen/nichicrawl/internal/rangemem"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
	"github.com/yokai-gen/nichicrawl/internal/skipset"
	"github.com/yokai-gen/nichicrawl/internal/store"
)

// discoverOptions holds CLI flags for discover. Flags left unset fall back
// to the loaded configuration.
type discoverOptions struct {
	collections   []int
	buckets       []int
	bucketFile    string
	bucketRange   string
	priorityFile  string
	subRange      string
	seqRange      string
	rangesJSON    string
	subMargin     int
	seqMargin     int
	skipCSV       []string
	out           string
	rangeLog      string
	maxFound      int
	maxCandidates int
	sleep         float64
	timeout       float64
	userAgent     string
	maxMiss       int
	downloadDir   string
	overwrite     bool
	workers       int
}

func newDiscoverCmd(root *rootOptions) *cobra.Command {
	var opts discoverOptions
	def := config.NewConfig()

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Brute-force scan for existing card identifiers",
		Long: `Probe candidate identifiers U{aaa}_nichibunken_{bbbb}_{cccc}_{dddd} one at a
time and record the ones the archive knows.

Buckets come from --bbbb, --bbbb-file, --bbbb-range, or the learned ranges
in --ranges-json. A sub-bucket (cccc) is abandoned after
--max-miss-per-cccc consecutive misses. Identifiers already present in the
output, the --skip-csv files or the catalog are never requested again.

Hits are merged into --out and their extents folded into --range-log.`,
		Example: `  # Scan buckets 1 to 5 with the default windows
  nichicrawl discover --bbbb-range 1,5

  # Re-scan around previously learned ranges and fetch images
  nichicrawl discover --ranges-json data/derived/discovered_ranges.json --download-images data/images`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd.Context(), cmd, root.cfg, opts)
		},
	}

	f := cmd.Flags()
	f.IntSliceVar(&opts.collections, "aaa", def.Discover.Collections, "Collection ids to scan")
	f.IntSliceVar(&opts.buckets, "bbbb", nil, "Bucket numbers to scan")
	f.StringVar(&opts.bucketFile, "bbbb-file", "", "File of whitespace separated bucket numbers")
	f.StringVar(&opts.bucketRange, "bbbb-range", "", "Inclusive bucket range MIN,MAX")
	f.StringVar(&opts.priorityFile, "bbbb-priority-file", "", "Buckets to scan before all others")
	f.StringVar(&opts.subRange, "cccc-range", "", "Inclusive sub-bucket range MIN,MAX (default from config)")
	f.StringVar(&opts.seqRange, "dddd-range", "", "Inclusive sequence range MIN,MAX (default from config)")
	f.StringVar(&opts.rangesJSON, "ranges-json", "", "Derive windows from a learned range file")
	f.IntVar(&opts.subMargin, "cccc-margin", def.Discover.SubMargin, "Sub-bucket margin around learned ranges")
	f.IntVar(&opts.seqMargin, "dddd-margin", def.Discover.SeqMargin, "Sequence margin around learned ranges")
	f.StringArrayVar(&opts.skipCSV, "skip-csv", nil, "CSV whose identifiers are skipped (repeatable)")
	f.StringVar(&opts.out, "out", def.Discover.Out, "Discovery CSV to merge hits into")
	f.StringVar(&opts.rangeLog, "range-log", def.Discover.RangeLog, "Range memory file to update")
	f.IntVar(&opts.maxFound, "max-found", 0, "Stop after this many hits (0 = unlimited)")
	f.IntVar(&opts.maxCandidates, "max-candidates", 0, "Stop after this many generated candidates (0 = unlimited)")
	f.Float64Var(&opts.sleep, "sleep", def.Discover.Delay.Seconds(), "Seconds to wait after each request")
	f.Float64Var(&opts.timeout, "timeout", def.Remote.Timeout.Seconds(), "Request timeout in seconds")
	f.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header (default from config)")
	f.IntVar(&opts.maxMiss, "max-miss-per-cccc", def.Discover.MaxMissStreak, "Consecutive misses before a sub-bucket is skipped (0 = never)")
	f.StringVar(&opts.downloadDir, "download-images", "", "Download images of the hits into this directory")
	f.BoolVar(&opts.overwrite, "overwrite-images", false, "Re-download images that already exist")
	f.IntVar(&opts.workers, "workers", def.Harvest.Workers, "Parallel image downloads")

	return cmd
}

// applyDiscoverFlags copies the flags the user set over the configuration.
func applyDiscoverFlags(cmd *cobra.Command, cfg *config.Config, opts discoverOptions) error {
	f := cmd.Flags()
	d := &cfg.Discover
	if f.Changed("aaa") {
		d.Collections = opts.collections
	}
	if f.Changed("cccc-range") {
		r, err := parseRange("cccc-range", opts.subRange)
		if err != nil {
			return err
		}
		d.SubRange = []int{r.Start, r.End}
	}
	if f.Changed("dddd-range") {
		r, err := parseRange("dddd-range", opts.seqRange)
		if err != nil {
			return err
		}
		d.SeqRange = []int{r.Start, r.End}
	}
	if f.Changed("cccc-margin") {
		d.SubMargin = opts.subMargin
	}
	if f.Changed("dddd-margin") {
		d.SeqMargin = opts.seqMargin
	}
	d.SkipCSV = append(d.SkipCSV, opts.skipCSV...)
	if f.Changed("out") {
		d.Out = opts.out
	}
	if f.Changed("range-log") {
		d.RangeLog = opts.rangeLog
	}
	if f.Changed("max-found") {
		d.MaxFound = opts.maxFound
	}
	if f.Changed("max-candidates") {
		d.MaxCandidates = opts.maxCandidates
	}
	if f.Changed("sleep") {
		d.Delay = seconds(opts.sleep)
	}
	if f.Changed("timeout") {
		cfg.Remote.Timeout = seconds(opts.timeout)
	}
	if f.Changed("user-agent") {
		cfg.Remote.UserAgent = opts.userAgent
	}
	if f.Changed("max-miss-per-cccc") {
		d.MaxMissStreak = opts.maxMiss
	}
	if f.Changed("workers") {
		cfg.Harvest.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return crawlerr.ConfigError(err.Error(), err)
	}
	return nil
}

func runDiscover(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts discoverOptions) error {
	if err := applyDiscoverFlags(cmd, cfg, opts); err != nil {
		return err
	}
	d := cfg.Discover
	out := output.NewAuto(cmd.OutOrStdout())

	targets := discover.TargetOptions{
		Buckets:      opts.buckets,
		BucketFile:   opts.bucketFile,
		PriorityFile: opts.priorityFile,
		SubRange:     pairRange(d.SubRange),
		SeqRange:     pairRange(d.SeqRange),
		SubMargin:    d.SubMargin,
		SeqMargin:    d.SeqMargin,
	}
	if opts.bucketRange != "" {
		r, err := parseRange("bbbb-range", opts.bucketRange)
		if err != nil {
			return err
		}
		targets.BucketRange = &r
	}
	if opts.rangesJSON != "" {
		m, err := loadRangesStrict(opts.rangesJSON)
		if err != nil {
			return err
		}
		targets.Ranges = m
	}
	tasks, err := discover.BuildTasks(targets)
	if err != nil {
		return err
	}

	var catalog *store.Catalog
	if cfg.Catalog.Path != "" {
		catalog, err = store.OpenCatalog(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		defer catalog.Close()
	}

	skip := skipset.FromCSV(append([]string{d.Out}, d.SkipCSV...)...)
	if catalog != nil {
		known, err := catalog.Identifiers(ctx)
		if err != nil {
			return err
		}
		skip.AddAll(known)
	}

	memory := rangemem.Load(ctx, d.RangeLog)

	var cache *card.Cache
	if opts.downloadDir != "" {
		if cache, err = card.NewCache(cfg.Harvest.CacheSize); err != nil {
			return crawlerr.New(crawlerr.ErrCodeInternal, "failed to create card cache", err)
		}
	}

	session := card.NewSession(cardConfig(cfg.Remote))
	defer session.Close()

	runner, err := discover.NewRunner(discover.Options{
		Collections:   d.Collections,
		Tasks:         tasks,
		Prober:        session,
		Skip:          skip,
		Pruner:        prune.New(d.MaxMissStreak),
		Memory:        memory,
		Cache:         cache,
		MaxFound:      d.MaxFound,
		MaxCandidates: d.MaxCandidates,
		Delay:         d.Delay,
		Reporter:      discover.ReporterFunc(func(e discover.Event) { reportDiscovery(out, e) }),
		Checkpoint: func(ctx context.Context) error {
			return rangemem.Save(ctx, d.RangeLog, memory)
		},
		SaveEvery: d.SaveEvery,
	})
	if err != nil {
		return err
	}

	slog.Info("discover_started",
		slog.Int("buckets", len(tasks)),
		slog.Int("known", skip.Len()),
		slog.String("out", d.Out))

	runCtx, stop := interruptible(ctx)
	res, err := runner.Run(runCtx)
	stop()
	if err != nil {
		return err
	}

	// Outputs are written even after an interrupt.
	writeCtx := context.WithoutCancel(ctx)
	fresh := make([]rowsink.Row, 0, len(res.Records))
	for _, rec := range res.Records {
		fresh = append(fresh, rec.Row())
	}

	var errs []error
	written := 0
	existing, err := rowsink.Load(d.Out)
	if err != nil {
		errs = append(errs, err)
	} else if merged := rowsink.Merge(existing, fresh); len(merged) == 0 {
		out.Warning("No rows to write")
	} else if err := rowsink.Write(writeCtx, d.Out, rowsink.DiscoveryColumns, merged); err != nil {
		errs = append(errs, err)
	} else {
		written = len(merged)
	}

	if err := rangemem.Save(writeCtx, d.RangeLog, memory); err != nil {
		errs = append(errs, err)
	}
	if catalog != nil && len(fresh) > 0 {
		if err := catalog.Upsert(writeCtx, store.StageDiscover, fresh); err != nil {
			errs = append(errs, err)
		}
	}

	images := 0
	if opts.downloadDir != "" && len(res.Records) > 0 && runCtx.Err() == nil {
		n, err := downloadDiscovered(ctx, cfg, cache, res.Records, opts.downloadDir, opts.overwrite, out)
		images = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	st := res.Stats
	fields := []output.Field{
		{Label: "candidates", Value: st.Candidates},
		{Label: "requests", Value: st.Requests},
		{Label: "found", Value: st.Found},
		{Label: "misses", Value: st.Misses},
		{Label: "errors", Value: st.Errors},
		{Label: "known", Value: st.Known},
		{Label: "pruned", Value: st.Pruned},
		{Label: "pruned cccc", Value: st.PrunedKeys},
		{Label: "rows written", Value: written},
	}
	if opts.downloadDir != "" {
		fields = append(fields, output.Field{Label: "images", Value: images})
	}
	out.Summary(fmt.Sprintf("Discovery finished (%s)", st.StopReason), st.Elapsed, fields...)
	slog.Info("discover_finished",
		slog.String("stop_reason", string(st.StopReason)),
		slog.Int("found", st.Found),
		slog.Int("requests", st.Requests),
		slog.Duration("elapsed", st.Elapsed))

	return firstError(errs)
}

// reportDiscovery prints one line per discovery event.
func reportDiscovery(out *output.Writer, e discover.Event) {
	var detail string
	switch e.Kind {
	case discover.EventHit:
		if e.Record != nil {
			detail = e.Record.Get(card.FieldTitle)
		}
	case discover.EventMiss:
		detail = fmt.Sprintf("streak %d", e.Streak)
	case discover.EventPruned:
		detail = fmt.Sprintf("cccc %s skipped after %d misses", ident.BucketKey(e.Parts.SubBucket), e.Streak)
	case discover.EventError:
		detail = e.Err.Error()
	}
	out.Item(e.Kind.String(), e.Identifier, detail)
}

// downloadDiscovered fetches the images of freshly discovered records. Card
// pages come from cache, so only image requests reach the archive.
func downloadDiscovered(ctx context.Context, cfg *config.Config, cache *card.Cache, records []card.Record, dir string, overwrite bool, out *output.Writer) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, crawlerr.WriteError("failed to create image directory", err).WithDetail("path", dir)
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.Identifier
	}

	runCtx, stop := interruptible(ctx)
	defer stop()

	h := harvest.New(downloadOptions(cfg, cache, dir, overwrite))
	saved := 0
	for r := range h.Run(runCtx, ids) {
		switch {
		case r.Err != nil:
			out.Item("error", r.Identifier, r.Err.Error())
		case r.Record.ImagePath == "":
			out.Item("skip", r.Identifier, "no image")
		default:
			saved++
			out.Item("ok", r.Identifier, r.Record.ImagePath)
		}
	}
	return saved, nil
}

// downloadOptions sizes the image download pool. It keeps the politeness
// delay of the discovery run (--sleep), not the harvest one.
func downloadOptions(cfg *config.Config, cache *card.Cache, dir string, overwrite bool) harvest.Options {
	return harvest.Options{
		Workers:   cfg.Harvest.Workers,
		Delay:     cfg.Discover.Delay,
		NewWorker: harvest.CardWorkerFactory(cardConfig(cfg.Remote), cache, dir, overwrite),
	}
}

// loadRangesStrict reads a range memory that the user named explicitly. It
// must exist and parse.
func loadRangesStrict(path string) (rangemem.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, crawlerr.New(crawlerr.ErrCodeInputMissing, "ranges file does not exist", err).
				WithDetail("path", path)
		}
		return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to read ranges file", err).
			WithDetail("path", path)
	}
	m, err := rangemem.Decode(data)
	if err != nil {
		return nil, crawlerr.ConfigError(fmt.Sprintf("invalid ranges file %s: %v", path, err), err)
	}
	return m, nil
}

// firstError logs every error and returns the first.
func firstError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs[1:] {
		slog.Error("output_failed", crawlerr.LogAttrs(err)...)
	}
	return errs[0]
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
