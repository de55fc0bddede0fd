package rowsink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/fsutil"
)

// Load reads every row of the CSV at path. A missing file yields no rows.
// A leading byte-order mark is stripped.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to open CSV", err).WithDetail("path", path)
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to parse CSV", err).WithDetail("path", path)
	}
	return rows, nil
}

// Read parses CSV rows from r using the first record as header.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Merge combines existing rows with fresh ones keyed by identifier. A fresh
// row replaces the existing row with the same identifier in place; new
// identifiers are appended in the order first seen. Rows without an
// identifier are dropped.
func Merge(existing, fresh []Row) []Row {
	index := make(map[string]int, len(existing)+len(fresh))
	out := make([]Row, 0, len(existing)+len(fresh))

	add := func(r Row) {
		id := r.Identifier()
		if id == "" {
			return
		}
		if i, ok := index[id]; ok {
			out[i] = r
			return
		}
		index[id] = len(out)
		out = append(out, r)
	}

	for _, r := range existing {
		add(r)
	}
	for _, r := range fresh {
		add(r)
	}
	return out
}

// Write atomically replaces path with a BOM-prefixed CSV of rows in the given
// column order. Columns a row lacks are written empty; extra keys are ignored.
func Write(ctx context.Context, path string, columns []string, rows []Row) error {
	err := fsutil.WriteAtomic(ctx, path, func(w io.Writer) error {
		tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		cw := csv.NewWriter(tw)

		if err := cw.Write(columns); err != nil {
			return err
		}
		rec := make([]string, len(columns))
		for _, r := range rows {
			for i, col := range columns {
				rec[i] = r[col]
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		return tw.Close()
	})
	if err != nil {
		return crawlerr.WriteError(fmt.Sprintf("failed to write %d rows", len(rows)), err).WithDetail("path", path)
	}
	return nil
}

// WriteLines atomically writes one value per line, skipping empty values.
func WriteLines(ctx context.Context, path string, lines []string) error {
	err := fsutil.WriteAtomic(ctx, path, func(w io.Writer) error {
		for _, l := range lines {
			if l == "" {
				continue
			}
			if _, err := io.WriteString(w, l+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return crawlerr.WriteError("failed to write line list", err).WithDetail("path", path)
	}
	return nil
}
