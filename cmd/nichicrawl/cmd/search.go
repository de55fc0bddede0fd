package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yokai-gen/nichicrawl/internal/config"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/output"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
	"github.com/yokai-gen/nichicrawl/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	indexPath string
	sources   []string
	reindex   bool
	format    string // "text", "json"
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions
	def := config.NewConfig()

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search harvested cards locally",
		Long: `Search titles, subjects, descriptions and the other metadata columns of
harvested cards using a local full-text index.

The index is built on first use, or rebuilt with --reindex, from the --csv
files (default: the harvest and discovery outputs) and the catalog when one
is configured.`,
		Example: `  nichicrawl search 河童
  nichicrawl search "kappa" --limit 5 --format json
  nichicrawl search --reindex --csv data/nichibun_card_details.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, root.cfg, query, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", def.Search.Limit, "Maximum number of results")
	f.StringVar(&opts.indexPath, "index", def.Search.IndexPath, "Full-text index directory")
	f.StringArrayVar(&opts.sources, "csv", nil, "CSV to index (repeatable)")
	f.BoolVar(&opts.reindex, "reindex", false, "Rebuild the index before searching")
	f.StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, query string, opts searchOptions) error {
	f := cmd.Flags()
	if f.Changed("limit") {
		cfg.Search.Limit = opts.limit
	}
	if f.Changed("index") {
		cfg.Search.IndexPath = opts.indexPath
	}
	if opts.format != "text" && opts.format != "json" {
		return crawlerr.ConfigError(fmt.Sprintf("unknown format %q", opts.format), nil).
			WithSuggestion("use --format text or --format json")
	}
	if query == "" && !opts.reindex {
		return crawlerr.ConfigError("no query given", nil).
			WithSuggestion("pass a query, or --reindex to only rebuild the index")
	}
	out := output.NewAuto(cmd.OutOrStdout())

	index, err := store.OpenFullText(cfg.Search.IndexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	count, err := index.Count()
	if err != nil {
		return err
	}
	if opts.reindex || count == 0 {
		n, err := buildIndex(ctx, cfg, index, opts.sources)
		if err != nil {
			return err
		}
		if opts.format == "text" {
			out.Successf("Indexed %d cards into %s", n, cfg.Search.IndexPath)
		}
	}
	if query == "" {
		return nil
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", cfg.Search.Limit))
	hits, err := index.Search(ctx, query, cfg.Search.Limit)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		if hits == nil {
			hits = []store.SearchHit{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		out.Warningf("No cards match %q", query)
		return nil
	}
	w := cmd.OutOrStdout()
	for _, h := range hits {
		out.Item("hit", h.Identifier, fmt.Sprintf("%.2f  %s", h.Score, h.Title))
		if h.Subjects != "" {
			_, _ = fmt.Fprintf(w, "      %s\n", h.Subjects)
		}
	}
	return nil
}

// buildIndex loads rows from sources, or the default outputs and the
// catalog, and indexes them.
func buildIndex(ctx context.Context, cfg *config.Config, index *store.FullText, sources []string) (int, error) {
	if len(sources) == 0 {
		sources = []string{cfg.Discover.Out, cfg.Harvest.Out}
	}

	var rows []rowsink.Row
	for _, src := range sources {
		loaded, err := rowsink.Load(src)
		if err != nil {
			return 0, err
		}
		rows = rowsink.Merge(rows, loaded)
	}
	if cfg.Catalog.Path != "" {
		catalog, err := store.OpenCatalog(cfg.Catalog.Path)
		if err != nil {
			return 0, err
		}
		stored, err := catalog.Rows(ctx)
		_ = catalog.Close()
		if err != nil {
			return 0, err
		}
		rows = rowsink.Merge(stored, rows)
	}

	if err := index.Index(ctx, rows); err != nil {
		return 0, err
	}
	slog.Info("search_index_built", slog.Int("rows", len(rows)), slog.String("path", cfg.Search.IndexPath))
	return len(rows), nil
}
