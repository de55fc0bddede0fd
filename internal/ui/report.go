package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// RangeRow is one bucket of the learned range memory as shown by `ranges`.
type RangeRow struct {
	Bucket    string `json:"bucket"`
	SubMin    int    `json:"c_min"`
	SubMax    int    `json:"c_max"`
	SeqMin    int    `json:"d_min"`
	SeqMax    int    `json:"d_max"`
	Hits      int    `json:"hits"`
	SubWindow string `json:"sub_window"`
	SeqWindow string `json:"seq_window"`
}

// RangeReport renders range memory summaries.
type RangeReport struct {
	out    io.Writer
	styles Styles
}

// NewRangeReport creates a report writer.
func NewRangeReport(out io.Writer, noColor bool) *RangeReport {
	return &RangeReport{out: out, styles: GetStyles(noColor)}
}

// Render prints one aligned line per bucket followed by a total.
func (r *RangeReport) Render(source string, rows []RangeRow) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Range memory: "+source))
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render("  no buckets recorded"))
		return nil
	}

	_, _ = fmt.Fprintln(r.out, r.styles.Label.Render(
		fmt.Sprintf("  %-6s %-11s %-11s %6s  %-11s %-11s", "bbbb", "cccc", "dddd", "hits", "cccc scan", "dddd scan")))
	total := 0
	for _, row := range rows {
		total += row.Hits
		_, _ = fmt.Fprintf(r.out, "  %-6s %-11s %-11s %6d  %-11s %-11s\n",
			row.Bucket,
			fmt.Sprintf("%d-%d", row.SubMin, row.SubMax),
			fmt.Sprintf("%d-%d", row.SeqMin, row.SeqMax),
			row.Hits,
			row.SubWindow,
			row.SeqWindow)
	}
	_, _ = fmt.Fprintf(r.out, "\n  %s buckets, %s hits\n",
		r.styles.Active.Render(humanize.Comma(int64(len(rows)))),
		r.styles.Active.Render(humanize.Comma(int64(total))))
	return nil
}

// RenderJSON outputs the rows as an indented JSON array.
func (r *RangeReport) RenderJSON(rows []RangeRow) error {
	if rows == nil {
		rows = []RangeRow{}
	}
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}
