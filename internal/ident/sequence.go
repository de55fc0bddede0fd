package ident

import "fmt"

// Range is an inclusive integer range. It descends when End < Start.
type Range struct {
	Start int
	End   int
}

// Single returns the one-value range [v, v].
func Single(v int) Range { return Range{Start: v, End: v} }

// Len returns the number of values in the range.
func (r Range) Len() int {
	if r.End >= r.Start {
		return r.End - r.Start + 1
	}
	return r.Start - r.End + 1
}

func (r Range) step() int {
	if r.End >= r.Start {
		return 1
	}
	return -1
}

// At returns the i-th value of the range in iteration order.
func (r Range) At(i int) int { return r.Start + i*r.step() }

func (r Range) String() string { return fmt.Sprintf("%d..%d", r.Start, r.End) }

// Task describes one scan unit: a bucket with its sub-bucket and sequence windows.
type Task struct {
	Bucket int
	Sub    Range
	Seq    Range
}

// Size returns the number of candidates the task contributes per collection.
func (t Task) Size() int { return t.Sub.Len() * t.Seq.Len() }

// Sequence is a lazy, finite cursor over candidate identifiers.
//
// Order: collections, then tasks, then sub-bucket in the task's direction,
// then sequence in the task's direction. There is no way to seek: resuming a
// run means replaying the whole order and filtering known identifiers.
type Sequence struct {
	collections []int
	tasks       []Task

	ci, ti, si, di int
	done           bool
}

// Generate returns the candidate cursor for the given collections and tasks.
func Generate(collections []int, tasks []Task) *Sequence {
	s := &Sequence{
		collections: append([]int(nil), collections...),
		tasks:       append([]Task(nil), tasks...),
	}
	s.done = len(s.collections) == 0 || len(s.tasks) == 0
	return s
}

// Next returns the next candidate, or false once the sequence is exhausted.
func (s *Sequence) Next() (Parts, bool) {
	if s.done {
		return Parts{}, false
	}

	t := s.tasks[s.ti]
	p := Parts{
		Collection: s.collections[s.ci],
		Bucket:     t.Bucket,
		SubBucket:  t.Sub.At(s.si),
		Sequence:   t.Seq.At(s.di),
	}
	s.advance()
	return p, true
}

// advance moves the cursor one position, innermost dimension first.
func (s *Sequence) advance() {
	t := s.tasks[s.ti]
	if s.di++; s.di < t.Seq.Len() {
		return
	}
	s.di = 0
	if s.si++; s.si < t.Sub.Len() {
		return
	}
	s.si = 0
	if s.ti++; s.ti < len(s.tasks) {
		return
	}
	s.ti = 0
	if s.ci++; s.ci < len(s.collections) {
		return
	}
	s.done = true
}

// Total returns the number of candidates the full sequence yields.
func (s *Sequence) Total() int {
	n := 0
	for _, t := range s.tasks {
		n += t.Size()
	}
	return n * len(s.collections)
}
