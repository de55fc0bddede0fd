package discover

import (
	"context"
	"log/slog"
	"time"

	"github.com/yokai-gen/nichicrawl/internal/card"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/ident"
	"github.com/yokai-gen/nichicrawl/internal/prune"
	"github.com/yokai-gen/nichicrawl/internal/rangemem"
	"github.com/yokai-gen/nichicrawl/internal/skipset"
)

// Prober resolves one candidate identifier.
type Prober interface {
	Probe(ctx context.Context, id string) (card.Probe, error)
}

// EventKind classifies a per-candidate event.
type EventKind int

const (
	EventHit EventKind = iota
	EventMiss
	EventPruned
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventHit:
		return "hit"
	case EventMiss:
		return "miss"
	case EventPruned:
		return "skip"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event describes one probe outcome.
type Event struct {
	Kind       EventKind
	Identifier string
	Parts      ident.Parts
	// Streak is the miss streak after a miss or prune.
	Streak int
	// Found is the number of hits so far.
	Found int
	Err   error
	// Record is set for hits.
	Record *card.Record
}

// Reporter receives events in probe order.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report implements Reporter.
func (f ReporterFunc) Report(e Event) { f(e) }

// Options configures a Runner.
type Options struct {
	Collections []int
	Tasks       []ident.Task

	Prober Prober
	Skip   *skipset.Set
	Pruner *prune.Controller
	// Memory is widened on every hit when non-nil.
	Memory rangemem.Memory
	// Cache receives every discovered record when non-nil.
	Cache *card.Cache

	// MaxFound stops the run after that many hits. Zero means unlimited.
	MaxFound int
	// MaxCandidates caps generated candidates, skipped ones included.
	// Zero means unlimited.
	MaxCandidates int
	// Delay is slept after every request.
	Delay time.Duration

	Reporter Reporter
	// Checkpoint, when set, runs after every SaveEvery-th hit.
	Checkpoint func(ctx context.Context) error
	SaveEvery  int
}

// Stats summarizes a run.
type Stats struct {
	Candidates int // generated, skipped ones included
	Requests   int
	Found      int
	Misses     int
	Errors     int
	Known      int // filtered by the skip set
	Pruned     int // filtered by the pruning controller
	PrunedKeys int
	Total      int // size of the full candidate sequence
	Elapsed    time.Duration
	StopReason StopReason
}

// StopReason tells why a run reached DONE.
type StopReason string

const (
	StopExhausted     StopReason = "exhausted"
	StopMaxFound      StopReason = "max_found"
	StopMaxCandidates StopReason = "max_candidates"
	StopInterrupted   StopReason = "interrupted"
)

// Result is what a run collected.
type Result struct {
	Records []card.Record
	Stats   Stats
}

// Runner drives one discovery run. It is strictly sequential: the pruning
// decision for a candidate depends on the ordered outcomes before it.
type Runner struct {
	opts Options
}

// NewRunner validates opts and returns a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Prober == nil {
		return nil, crawlerr.New(crawlerr.ErrCodeInternal, "discovery needs a prober", nil)
	}
	if len(opts.Collections) == 0 || len(opts.Tasks) == 0 {
		return nil, noTargets()
	}
	for _, c := range opts.Collections {
		if c < 0 || c > ident.MaxCollection {
			return nil, crawlerr.New(crawlerr.ErrCodeInvalidRange, "collection id out of range", nil)
		}
	}
	if opts.Skip == nil {
		opts.Skip = skipset.New()
	}
	if opts.Pruner == nil {
		opts.Pruner = prune.New(0)
	}
	if opts.Reporter == nil {
		opts.Reporter = ReporterFunc(func(Event) {})
	}
	return &Runner{opts: opts}, nil
}

// Run scans the candidate sequence until it is exhausted, a cap is reached
// or ctx is cancelled. Per-candidate failures never stop the run; the
// collected records are always returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	o := r.opts
	seq := ident.Generate(o.Collections, o.Tasks)
	res := &Result{}
	st := &res.Stats
	st.Total = seq.Total()
	st.StopReason = StopExhausted
	start := time.Now()
	defer func() {
		st.Elapsed = time.Since(start)
		st.PrunedKeys = o.Pruner.Skipped()
	}()

	for {
		if ctx.Err() != nil {
			st.StopReason = StopInterrupted
			break
		}
		parts, ok := seq.Next()
		if !ok {
			break
		}
		if o.MaxCandidates > 0 && st.Candidates >= o.MaxCandidates {
			st.StopReason = StopMaxCandidates
			break
		}
		st.Candidates++

		if o.Pruner.ShouldSkip(parts.Bucket, parts.SubBucket) {
			st.Pruned++
			continue
		}
		id := parts.String()
		if o.Skip.Has(id) {
			st.Known++
			continue
		}

		st.Requests++
		probe, err := o.Prober.Probe(ctx, id)
		if err != nil {
			st.Errors++
			slog.Debug("probe_failed", append([]any{
				slog.String("identifier", id),
			}, crawlerr.LogAttrs(err)...)...)
			o.Reporter.Report(Event{Kind: EventError, Identifier: id, Parts: parts, Found: st.Found, Err: err})
			sleep(ctx, o.Delay)
			continue
		}

		flipped := o.Pruner.RecordResult(parts.Bucket, parts.SubBucket, probe.Exists)
		if !probe.Exists {
			st.Misses++
			streak := o.Pruner.Streak()
			o.Reporter.Report(Event{Kind: EventMiss, Identifier: id, Parts: parts, Streak: streak, Found: st.Found})
			if flipped {
				slog.Debug("sub_bucket_pruned",
					slog.Int("bucket", parts.Bucket),
					slog.Int("sub_bucket", parts.SubBucket),
					slog.Int("streak", streak))
				o.Reporter.Report(Event{Kind: EventPruned, Identifier: id, Parts: parts, Streak: streak, Found: st.Found})
			}
			sleep(ctx, o.Delay)
			continue
		}

		rec := probe.Record
		res.Records = append(res.Records, rec)
		o.Skip.Add(id)
		if o.Memory != nil {
			o.Memory.Update(parts)
		}
		o.Cache.Add(rec)
		st.Found++
		slog.Debug("identifier_found", slog.String("identifier", id), slog.Int("found", st.Found))
		o.Reporter.Report(Event{Kind: EventHit, Identifier: id, Parts: parts, Found: st.Found, Record: &rec})

		if o.Checkpoint != nil && o.SaveEvery > 0 && st.Found%o.SaveEvery == 0 {
			if err := o.Checkpoint(ctx); err != nil {
				slog.Warn("checkpoint_failed", crawlerr.LogAttrs(err)...)
			}
		}
		sleep(ctx, o.Delay)

		if o.MaxFound > 0 && st.Found >= o.MaxFound {
			st.StopReason = StopMaxFound
			break
		}
	}

	return res, nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
