// Package rangemem persists the per-bucket sub-bucket and sequence bounds
// learned from discoveries, and derives future search windows from them.
package rangemem

import "github.com/yokai-gen/nichicrawl/internal/ident"

// Bound accumulates the observed extent of one key dimension.
// The zero value has observed nothing.
type Bound struct {
	Min   int
	Max   int
	Count int
}

// Observe folds a single value into the bound. Min and Max only widen.
func (b Bound) Observe(v int) Bound {
	return b.Merge(Bound{Min: v, Max: v, Count: 1})
}

// Merge combines two bounds: the union of their extents and the sum of counts.
func (b Bound) Merge(o Bound) Bound {
	if o.Count == 0 {
		return b
	}
	if b.Count == 0 {
		return o
	}
	return Bound{
		Min:   min(b.Min, o.Min),
		Max:   max(b.Max, o.Max),
		Count: b.Count + o.Count,
	}
}

// Empty reports whether nothing has been observed.
func (b Bound) Empty() bool { return b.Count == 0 }

// Window widens the bound by margin on both sides, clamped at zero.
// A bound that collapsed to one value is returned unchanged: a single
// observation usually means a singleton range.
func (b Bound) Window(margin int) ident.Range {
	if b.Min == b.Max {
		return ident.Single(b.Min)
	}
	return ident.Range{Start: max(0, b.Min-margin), End: b.Max + margin}
}

// Entry is the learned state for one bucket.
type Entry struct {
	Sub  Bound
	Seq  Bound
	Hits int
}

// Observe folds one discovered identifier into the entry.
func (e Entry) Observe(p ident.Parts) Entry {
	return Entry{
		Sub:  e.Sub.Observe(p.SubBucket),
		Seq:  e.Seq.Observe(p.Sequence),
		Hits: e.Hits + 1,
	}
}

// Window derives the sub-bucket and sequence ranges to scan next run.
func (e Entry) Window(dSub, dSeq int) (ident.Range, ident.Range) {
	return e.Sub.Window(dSub), e.Seq.Window(dSeq)
}
