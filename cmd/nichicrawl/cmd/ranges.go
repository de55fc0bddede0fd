package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yokai-gen/nichicrawl/internal/config"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/ident"
	"github.com/yokai-gen/nichicrawl/internal/output"
	"github.com/yokai-gen/nichicrawl/internal/rangemem"
	"github.com/yokai-gen/nichicrawl/internal/ui"
)

type rangesOptions struct {
	rangeLog  string
	subMargin int
	seqMargin int
	json      bool
}

func newRangesCmd(root *rootOptions) *cobra.Command {
	var opts rangesOptions
	def := config.NewConfig()

	cmd := &cobra.Command{
		Use:   "ranges",
		Short: "Show the learned per-bucket ranges",
		Long: `Print the range memory written by discover: for every bucket the observed
sub-bucket (cccc) and sequence (dddd) extents, the number of hits, and the
windows a --ranges-json scan would probe with the current margins.`,
		Example: `  nichicrawl ranges
  nichicrawl ranges --cccc-margin 0 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRanges(cmd.Context(), cmd, root.cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.rangeLog, "range-log", def.Discover.RangeLog, "Range memory file")
	f.IntVar(&opts.subMargin, "cccc-margin", def.Discover.SubMargin, "Sub-bucket margin for the derived window")
	f.IntVar(&opts.seqMargin, "dddd-margin", def.Discover.SeqMargin, "Sequence margin for the derived window")
	f.BoolVar(&opts.json, "json", false, "Output as JSON")

	return cmd
}

func runRanges(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts rangesOptions) error {
	f := cmd.Flags()
	path := cfg.Discover.RangeLog
	if f.Changed("range-log") {
		path = opts.rangeLog
	}
	subMargin, seqMargin := cfg.Discover.SubMargin, cfg.Discover.SeqMargin
	if f.Changed("cccc-margin") {
		subMargin = opts.subMargin
	}
	if f.Changed("dddd-margin") {
		seqMargin = opts.seqMargin
	}
	if subMargin < 0 || seqMargin < 0 {
		return crawlerr.New(crawlerr.ErrCodeInvalidRange, "margins must not be negative", nil)
	}

	memory := rangemem.Load(ctx, path)
	rows := rangeRows(memory, subMargin, seqMargin)

	report := ui.NewRangeReport(cmd.OutOrStdout(), !output.ColorEnabled(cmd.OutOrStdout()))
	if opts.json {
		return report.RenderJSON(rows)
	}
	return report.Render(path, rows)
}

// rangeRows lists the memory in bucket order with the derived windows.
func rangeRows(m rangemem.Memory, subMargin, seqMargin int) []ui.RangeRow {
	var rows []ui.RangeRow
	for _, b := range m.Buckets() {
		e, _ := m.Get(b)
		sub, seq := e.Window(subMargin, seqMargin)
		sub.End = min(sub.End, ident.MaxPart)
		seq.End = min(seq.End, ident.MaxPart)
		rows = append(rows, ui.RangeRow{
			Bucket:    ident.BucketKey(b),
			SubMin:    e.Sub.Min,
			SubMax:    e.Sub.Max,
			SeqMin:    e.Seq.Min,
			SeqMax:    e.Seq.Max,
			Hits:      e.Hits,
			SubWindow: sub.String(),
			SeqWindow: seq.String(),
		})
	}
	return rows
}
