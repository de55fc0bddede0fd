package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yokai-gen/nichicrawl/internal/config"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/harvest"
	"github.com/yokai-gen/nichicrawl/internal/output"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
	"github.com/yokai-gen/nichicrawl/internal/store"
	"github.com/yokai-gen/nichicrawl/internal/ui"
)

// harvestOptions holds CLI flags for harvest.
type harvestOptions struct {
	identifiers     []string
	identifiersFile string
	inputCSV        string
	out             string
	resume          bool
	downloadDir     string
	overwrite       bool
	sleep           float64
	timeout         float64
	userAgent       string
	maxWorkers      int
	writeURLs       string
	noTUI           bool
}

func newHarvestCmd(root *rootOptions) *cobra.Command {
	var opts harvestOptions
	def := config.NewConfig()

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Fetch card metadata and images for known identifiers",
		Long: `Fetch the card page of every given identifier in parallel, parse its
metadata table and media links, optionally download the card image, and
write one CSV row per identifier.

Identifiers come from --identifiers, --identifiers-file and the identifier
column of --input-csv, in that order; duplicates are dropped. With --resume,
identifiers already present in --out are not requested again and the new
rows are merged into the existing file.`,
		Example: `  # Harvest everything discovery found, with images
  nichicrawl harvest --input-csv data/outputs/nichibun_cards.csv --download-dir data/images

  # Continue an interrupted run
  nichicrawl harvest --input-csv data/outputs/nichibun_cards.csv --resume`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd.Context(), cmd, root.cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.identifiers, "identifiers", nil, "Identifier to harvest (repeatable, comma separated allowed)")
	f.StringVar(&opts.identifiersFile, "identifiers-file", "", "File with one identifier per line")
	f.StringVar(&opts.inputCSV, "input-csv", "", "CSV with an identifier column")
	f.StringVar(&opts.out, "out", def.Harvest.Out, "Output CSV")
	f.BoolVar(&opts.resume, "resume", false, "Skip identifiers already in --out and merge into it")
	f.StringVar(&opts.downloadDir, "download-dir", "", "Download card images into this directory")
	f.BoolVar(&opts.overwrite, "overwrite-images", false, "Re-download images that already exist")
	f.Float64Var(&opts.sleep, "sleep", def.Harvest.Delay.Seconds(), "Seconds each worker waits after a card")
	f.Float64Var(&opts.timeout, "timeout", def.Remote.Timeout.Seconds(), "Request timeout in seconds")
	f.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header (default from config)")
	f.IntVar(&opts.maxWorkers, "max-workers", def.Harvest.Workers, "Parallel workers, one session each")
	f.StringVar(&opts.writeURLs, "write-urls", "", "Also write the image URLs, one per line, to this file")
	f.BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output even on a terminal")

	return cmd
}

// applyHarvestFlags copies the flags the user set over the configuration.
func applyHarvestFlags(cmd *cobra.Command, cfg *config.Config, opts harvestOptions) error {
	f := cmd.Flags()
	h := &cfg.Harvest
	if f.Changed("out") {
		h.Out = opts.out
	}
	if f.Changed("download-dir") {
		h.DownloadDir = opts.downloadDir
	}
	if f.Changed("sleep") {
		h.Delay = seconds(opts.sleep)
	}
	if f.Changed("timeout") {
		cfg.Remote.Timeout = seconds(opts.timeout)
	}
	if f.Changed("user-agent") {
		cfg.Remote.UserAgent = opts.userAgent
	}
	if f.Changed("max-workers") {
		h.Workers = opts.maxWorkers
	}
	if err := cfg.Validate(); err != nil {
		return crawlerr.ConfigError(err.Error(), err)
	}
	return nil
}

func runHarvest(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts harvestOptions) error {
	if err := applyHarvestFlags(cmd, cfg, opts); err != nil {
		return err
	}
	h := cfg.Harvest
	out := output.NewAuto(cmd.OutOrStdout())

	ids, err := gatherIdentifiers(opts)
	if err != nil {
		return err
	}

	var existing []rowsink.Row
	pending := ids
	if opts.resume {
		if existing, err = rowsink.Load(h.Out); err != nil {
			return err
		}
		done := make(map[string]bool, len(existing))
		for _, r := range existing {
			done[r.Identifier()] = true
		}
		pending = pending[:0:0]
		for _, id := range ids {
			if !done[id] {
				pending = append(pending, id)
			}
		}
	}
	resumed := len(ids) - len(pending)

	if h.DownloadDir != "" {
		if err := os.MkdirAll(h.DownloadDir, 0o755); err != nil {
			return crawlerr.WriteError("failed to create image directory", err).WithDetail("path", h.DownloadDir)
		}
	}

	slog.Info("harvest_started",
		slog.Int("identifiers", len(ids)),
		slog.Int("pending", len(pending)),
		slog.Int("workers", h.Workers),
		slog.String("out", h.Out))

	runCtx, stop := interruptible(ctx)
	defer stop()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(!output.ColorEnabled(cmd.OutOrStdout())),
		ui.WithInterrupt(stop),
	))
	// The display outlives an interrupt so the write stage stays visible.
	if err := renderer.Start(ctx); err != nil {
		return crawlerr.New(crawlerr.ErrCodeInternal, "failed to start progress display", err)
	}

	start := time.Now()
	fresh, failed := collectHarvest(runCtx, renderer, cfg, ids, pending, opts.overwrite)

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageWrite, Total: len(fresh)})
	rows := fresh
	if opts.resume {
		rows = rowsink.Merge(existing, fresh)
	}

	// Outputs are written even after an interrupt.
	writeCtx := context.WithoutCancel(ctx)
	var errs []error
	// With no rows an existing output is kept rather than replaced by a
	// bare header.
	if len(rows) > 0 {
		if err := rowsink.Write(writeCtx, h.Out, rowsink.HarvestColumns, rows); err != nil {
			errs = append(errs, err)
		}
	}
	if opts.writeURLs != "" && len(rows) > 0 {
		urls := make([]string, 0, len(rows))
		for _, r := range rows {
			urls = append(urls, r[rowsink.ColImageURL])
		}
		if err := rowsink.WriteLines(writeCtx, opts.writeURLs, urls); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Catalog.Path != "" && len(fresh) > 0 {
		if err := upsertCatalog(writeCtx, cfg.Catalog.Path, store.StageHarvest, fresh); err != nil {
			errs = append(errs, err)
		}
	}

	images := 0
	for _, r := range fresh {
		if r[rowsink.ColImagePath] != "" {
			images++
		}
	}
	renderer.Complete(ui.CompletionStats{
		Requested: len(pending),
		Succeeded: len(fresh),
		Failed:    failed,
		Resumed:   resumed,
		Images:    images,
		Duration:  time.Since(start),
		Output:    h.Out,
	})
	if err := renderer.Stop(); err != nil {
		slog.Warn("progress_display_stop_failed", slog.String("error", err.Error()))
	}

	slog.Info("harvest_finished",
		slog.Int("succeeded", len(fresh)),
		slog.Int("failed", failed),
		slog.Int("rows", len(rows)),
		slog.Bool("interrupted", runCtx.Err() != nil))
	if err := firstError(errs); err != nil {
		return err
	}
	switch {
	case len(pending) == 0:
		out.Successf("All %d identifiers already harvested", len(ids))
	case len(rows) == 0:
		out.Warningf("No rows harvested, %s left unchanged", h.Out)
	}
	return nil
}

// collectHarvest runs the pool over pending and returns the successful rows
// in input order together with the failure count.
func collectHarvest(ctx context.Context, r ui.Renderer, cfg *config.Config, ids, pending []string, overwrite bool) ([]rowsink.Row, int) {
	if len(pending) == 0 {
		return nil, 0
	}
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}

	pool := harvest.New(harvest.Options{
		Workers:   cfg.Harvest.Workers,
		Delay:     cfg.Harvest.Delay,
		NewWorker: harvest.CardWorkerFactory(cardConfig(cfg.Remote), nil, cfg.Harvest.DownloadDir, overwrite),
	})

	var rows []rowsink.Row
	failed, done := 0, 0
	for res := range pool.Run(ctx, pending) {
		done++
		if res.Err != nil {
			failed++
			slog.Debug("harvest_failed", append([]any{
				slog.String("identifier", res.Identifier),
				slog.Int("slot", res.Slot),
			}, crawlerr.LogAttrs(res.Err)...)...)
			r.AddError(ui.ErrorEvent{Identifier: res.Identifier, Err: res.Err})
		} else {
			rows = append(rows, res.Record.Row())
			if cfg.Harvest.DownloadDir != "" && res.Record.ImagePath == "" {
				r.AddError(ui.ErrorEvent{Identifier: res.Identifier, Err: fmt.Errorf("%s: no image saved", res.Identifier), IsWarn: true})
			}
		}
		r.UpdateProgress(ui.ProgressEvent{
			Stage:      ui.StageFetch,
			Current:    done,
			Total:      len(pending),
			Identifier: res.Identifier,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return pos[rows[i].Identifier()] < pos[rows[j].Identifier()]
	})
	return rows, failed
}

// gatherIdentifiers collects identifiers from every source in order and
// drops duplicates, keeping the first occurrence.
func gatherIdentifiers(opts harvestOptions) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, arg := range opts.identifiers {
		for _, id := range strings.Split(arg, ",") {
			add(id)
		}
	}

	if opts.identifiersFile != "" {
		f, err := os.Open(opts.identifiersFile)
		if err != nil {
			return nil, inputError("identifiers file", opts.identifiersFile, err)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			add(sc.Text())
		}
		err = sc.Err()
		_ = f.Close()
		if err != nil {
			return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to read identifiers file", err).
				WithDetail("path", opts.identifiersFile)
		}
	}

	if opts.inputCSV != "" {
		if _, err := os.Stat(opts.inputCSV); err != nil {
			return nil, inputError("input CSV", opts.inputCSV, err)
		}
		rows, err := rowsink.Load(opts.inputCSV)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			if _, ok := rows[0][rowsink.ColIdentifier]; !ok {
				return nil, crawlerr.New(crawlerr.ErrCodeInputMissing, "input CSV has no identifier column", nil).
					WithDetail("path", opts.inputCSV)
			}
		}
		for _, r := range rows {
			add(r.Identifier())
		}
	}

	if len(ids) == 0 {
		return nil, crawlerr.New(crawlerr.ErrCodeNoTargets, "no identifiers to harvest", nil).
			WithSuggestion("pass --identifiers, --identifiers-file or --input-csv")
	}
	return ids, nil
}

func inputError(what, path string, err error) error {
	if os.IsNotExist(err) {
		return crawlerr.New(crawlerr.ErrCodeInputMissing, what+" does not exist", err).WithDetail("path", path)
	}
	return crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to read "+what, err).WithDetail("path", path)
}

// upsertCatalog mirrors rows into the SQLite catalog at path.
func upsertCatalog(ctx context.Context, path, stage string, rows []rowsink.Row) error {
	catalog, err := store.OpenCatalog(path)
	if err != nil {
		return err
	}
	defer catalog.Close()
	return catalog.Upsert(ctx, stage, rows)
}
