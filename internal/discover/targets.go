// Package discover runs the sequential brute-force search over candidate
// identifiers, with pruning, skip filtering and range learning.
package discover

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/ident"
	"github.com/yokai-gen/nichicrawl/internal/rangemem"
)

// TargetOptions selects the buckets to scan and the windows inside them.
type TargetOptions struct {
	// Buckets is an explicit bucket list.
	Buckets []int
	// BucketFile holds whitespace or newline separated bucket numbers.
	BucketFile string
	// BucketRange is used when neither Buckets nor BucketFile yields anything.
	BucketRange *ident.Range
	// PriorityFile lists buckets scanned before all others.
	PriorityFile string

	// SubRange and SeqRange are the windows for explicitly chosen buckets.
	SubRange ident.Range
	SeqRange ident.Range

	// Ranges switches to memory-derived windows when non-nil. Buckets
	// without an entry are not scanned.
	Ranges    rangemem.Memory
	SubMargin int
	SeqMargin int
}

// LoadBucketFile reads whitespace separated integers from path. An empty
// path yields nothing; a missing file is an input error.
func LoadBucketFile(path string) ([]int, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, crawlerr.New(crawlerr.ErrCodeInputMissing, "bucket file does not exist", err).
				WithDetail("path", path)
		}
		return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to read bucket file", err).
			WithDetail("path", path)
	}

	var out []int
	for _, tok := range strings.Fields(string(data)) {
		v, err := strconv.Atoi(tok)
		if err != nil || v < 0 || v > ident.MaxPart {
			return nil, crawlerr.ConfigError(fmt.Sprintf("invalid bucket %q in %s", tok, path), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// BuildTasks resolves the scan plan. Priority buckets come first, then the
// rest; a bucket is planned at most once. An empty plan is a fatal
// configuration error.
func BuildTasks(o TargetOptions) ([]ident.Task, error) {
	if err := validateRange("sub-bucket", o.SubRange); err != nil {
		return nil, err
	}
	if err := validateRange("sequence", o.SeqRange); err != nil {
		return nil, err
	}
	if o.SubMargin < 0 || o.SeqMargin < 0 {
		return nil, crawlerr.New(crawlerr.ErrCodeInvalidRange, "margins must not be negative", nil)
	}

	for _, b := range o.Buckets {
		if b < 0 || b > ident.MaxPart {
			return nil, crawlerr.New(crawlerr.ErrCodeInvalidRange,
				fmt.Sprintf("bucket %d is outside 0-%d", b, ident.MaxPart), nil)
		}
	}

	fromFile, err := LoadBucketFile(o.BucketFile)
	if err != nil {
		return nil, err
	}
	priority, err := LoadBucketFile(o.PriorityFile)
	if err != nil {
		return nil, err
	}
	explicit := sortedUnion(o.Buckets, fromFile)

	var tasks []ident.Task
	seen := make(map[int]bool)
	add := func(t ident.Task) {
		if seen[t.Bucket] {
			return
		}
		seen[t.Bucket] = true
		tasks = append(tasks, t)
	}

	if o.Ranges != nil {
		targets := explicit
		if len(targets) == 0 {
			targets = o.Ranges.Buckets()
		}
		addFromMemory := func(b int) {
			e, ok := o.Ranges.Get(b)
			if !ok {
				return
			}
			sub, seq := e.Window(o.SubMargin, o.SeqMargin)
			sub.End = min(sub.End, ident.MaxPart)
			seq.End = min(seq.End, ident.MaxPart)
			add(ident.Task{Bucket: b, Sub: sub, Seq: seq})
		}
		for _, b := range priority {
			addFromMemory(b)
		}
		for _, b := range targets {
			addFromMemory(b)
		}
	} else {
		buckets := explicit
		if len(buckets) == 0 && o.BucketRange != nil {
			if err := validateRange("bucket", *o.BucketRange); err != nil {
				return nil, err
			}
			for i := 0; i < o.BucketRange.Len(); i++ {
				buckets = append(buckets, o.BucketRange.At(i))
			}
		}
		if len(buckets) == 0 {
			return nil, noTargets()
		}
		for _, b := range priority {
			add(ident.Task{Bucket: b, Sub: o.SubRange, Seq: o.SeqRange})
		}
		for _, b := range buckets {
			add(ident.Task{Bucket: b, Sub: o.SubRange, Seq: o.SeqRange})
		}
	}

	if len(tasks) == 0 {
		return nil, noTargets()
	}
	return tasks, nil
}

func noTargets() error {
	return crawlerr.New(crawlerr.ErrCodeNoTargets, "no buckets to scan", nil).
		WithSuggestion("pass --bbbb, --bbbb-file, --bbbb-range or --ranges-json")
}

func validateRange(name string, r ident.Range) error {
	if r.Start < 0 || r.End < 0 || r.Start > ident.MaxPart || r.End > ident.MaxPart {
		return crawlerr.New(crawlerr.ErrCodeInvalidRange, fmt.Sprintf("%s range %s out of bounds", name, r), nil)
	}
	return nil
}

func sortedUnion(lists ...[]int) []int {
	set := make(map[int]struct{})
	for _, l := range lists {
		for _, v := range l {
			set[v] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
