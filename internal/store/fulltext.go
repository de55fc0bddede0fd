package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
)

// searchableColumns are the row columns copied into the full-text index.
var searchableColumns = []string{
	"title",
	"creator",
	"subjects",
	"description",
	"coverage",
	"source",
}

// FullText is a bleve index over card metadata.
type FullText struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// SearchHit is one full-text match.
type SearchHit struct {
	Identifier string  `json:"identifier"`
	Score      float64 `json:"score"`
	Title      string  `json:"title"`
	Subjects   string  `json:"subjects,omitempty"`
}

// OpenFullText opens or creates the index at path. An empty path creates an
// in-memory index. A corrupted on-disk index is cleared and recreated.
func OpenFullText(path string) (*FullText, error) {
	m := newCardMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, crawlerr.WriteError("failed to create index directory", err).WithDetail("path", path)
		}
		if verr := validateIndexMeta(path); verr != nil {
			slog.Warn("fulltext_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, crawlerr.WriteError("full-text index is corrupted and cannot be removed", rerr).
					WithDetail("path", path).
					WithSuggestion("delete the index directory and run 'nichicrawl search --reindex'")
			}
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to open full-text index", err).WithDetail("path", path)
	}
	return &FullText{index: idx, path: path}, nil
}

// newCardMapping indexes every field with the CJK analyzer so Japanese
// titles and subjects tokenize into bigrams.
func newCardMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = cjk.AnalyzerName
	return m
}

// validateIndexMeta checks index_meta.json of an existing index.
func validateIndexMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// Index adds or replaces rows, keyed by identifier.
func (f *FullText) Index(ctx context.Context, rows []rowsink.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed()
	}

	batch := f.index.NewBatch()
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := r.Identifier()
		if id == "" {
			continue
		}
		doc := make(map[string]string, len(searchableColumns))
		for _, col := range searchableColumns {
			if v := strings.TrimSpace(r[col]); v != "" {
				doc[col] = v
			}
		}
		if err := batch.Index(id, doc); err != nil {
			return crawlerr.WriteError("failed to index card", err).WithDetail("identifier", id)
		}
	}
	if err := f.index.Batch(batch); err != nil {
		return crawlerr.WriteError("failed to write full-text index", err).WithDetail("path", f.path)
	}
	return nil
}

// Search runs a match query across all indexed columns.
func (f *FullText) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errClosed()
	}
	if limit <= 0 {
		limit = 10
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"title", "subjects"}

	res, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "search failed", err).WithDetail("path", f.path)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := SearchHit{Identifier: h.ID, Score: h.Score}
		if v, ok := h.Fields["title"].(string); ok {
			hit.Title = v
		}
		if v, ok := h.Fields["subjects"].(string); ok {
			hit.Subjects = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (f *FullText) Count() (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, errClosed()
	}
	n, err := f.index.DocCount()
	if err != nil {
		return 0, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to read full-text index", err).WithDetail("path", f.path)
	}
	return n, nil
}

// Close closes the index. Idempotent.
func (f *FullText) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.index.Close()
}
