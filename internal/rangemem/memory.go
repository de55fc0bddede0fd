package rangemem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/fsutil"
	"github.com/yokai-gen/nichicrawl/internal/ident"
)

// Memory maps bucket numbers to their learned entries.
type Memory map[int]Entry

// Update widens the bucket's entry with a discovered identifier.
func (m Memory) Update(p ident.Parts) {
	m[p.Bucket] = m[p.Bucket].Observe(p)
}

// Buckets returns the stored buckets in ascending order.
func (m Memory) Buckets() []int {
	out := make([]int, 0, len(m))
	for b := range m {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}

// Get returns the entry for bucket, if any.
func (m Memory) Get(bucket int) (Entry, bool) {
	e, ok := m[bucket]
	return e, ok
}

// fileEntry is the on-disk shape of one bucket.
type fileEntry struct {
	CMin int `json:"c_min"`
	CMax int `json:"c_max"`
	DMin int `json:"d_min"`
	DMax int `json:"d_max"`
	Hits int `json:"hits"`
}

// Load reads the range memory at path. A missing, unreadable or corrupt file
// yields an empty memory; the latter two also log a warning. When the lock
// cannot be taken the file is read unlocked.
func Load(ctx context.Context, path string) Memory {
	lock := fsutil.NewFileLock(path)
	if err := lock.Lock(ctx); err != nil {
		slog.Warn("range_memory_lock_failed", slog.String("path", path), slog.String("error", err.Error()))
	} else {
		defer lock.Unlock()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("range_memory_unreadable", slog.String("path", path), slog.String("error", err.Error()))
		}
		return Memory{}
	}

	m, err := Decode(data)
	if err != nil {
		slog.Warn("range_memory_corrupt", slog.String("path", path), slog.String("error", err.Error()))
		return Memory{}
	}
	return m
}

// Decode parses the JSON form. Keys may be zero-padded ("0051") or bare ("51").
func Decode(data []byte) (Memory, error) {
	var raw map[string]fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	m := make(Memory, len(raw))
	for key, fe := range raw {
		bucket, err := strconv.Atoi(key)
		if err != nil || bucket < 0 {
			return nil, fmt.Errorf("invalid bucket key %q", key)
		}
		if fe.CMin > fe.CMax || fe.DMin > fe.DMax {
			return nil, fmt.Errorf("bucket %q: min exceeds max", key)
		}
		// A stored extent counts as observed even when hits was never recorded.
		count := max(fe.Hits, 1)
		m[bucket] = Entry{
			Sub:  Bound{Min: fe.CMin, Max: fe.CMax, Count: count},
			Seq:  Bound{Min: fe.DMin, Max: fe.DMax, Count: count},
			Hits: fe.Hits,
		}
	}
	return m, nil
}

// Encode renders the memory as indented JSON keyed by 4-digit bucket.
func Encode(m Memory) ([]byte, error) {
	raw := make(map[string]fileEntry, len(m))
	for bucket, e := range m {
		raw[ident.BucketKey(bucket)] = fileEntry{
			CMin: e.Sub.Min,
			CMax: e.Sub.Max,
			DMin: e.Seq.Min,
			DMax: e.Seq.Max,
			Hits: e.Hits,
		}
	}
	return json.MarshalIndent(raw, "", "  ")
}

// Save atomically replaces the file at path with m.
func Save(ctx context.Context, path string, m Memory) error {
	data, err := Encode(m)
	if err != nil {
		return crawlerr.New(crawlerr.ErrCodeInternal, "failed to encode range memory", err)
	}

	err = fsutil.WriteAtomic(ctx, path, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	})
	if err != nil {
		return crawlerr.WriteError("failed to save range memory", err).WithDetail("path", path)
	}
	return nil
}
