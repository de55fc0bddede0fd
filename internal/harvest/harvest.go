// Package harvest fetches cards for an already-known identifier list with a
// bounded pool of workers, each owning its own session.
package harvest

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yokai-gen/nichicrawl/internal/card"
)

// Worker resolves one identifier. A worker is used by exactly one goroutine.
// Workers that implement io.Closer are closed when their slot finishes.
type Worker interface {
	Harvest(ctx context.Context, id string) (card.Record, error)
}

// Options configures a Harvester.
type Options struct {
	// Workers is the number of concurrent slots. Values below 1 mean 1.
	Workers int
	// Delay is slept by a slot after each unit it completes.
	Delay time.Duration
	// NewWorker builds the worker owned by a slot. It runs once per slot.
	NewWorker func(slot int) Worker
}

// Result is the outcome of one unit.
type Result struct {
	Identifier string
	Record     card.Record
	Err        error
	// Slot is the worker slot that ran the unit.
	Slot int
}

// Harvester runs units over a fixed pool of worker slots.
type Harvester struct {
	opts Options
}

// New creates a harvester.
func New(opts Options) *Harvester {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Harvester{opts: opts}
}

// Workers returns the effective slot count.
func (h *Harvester) Workers() int { return h.opts.Workers }

// Run harvests ids and streams results in completion order. A failed unit is
// delivered as a Result with Err set and never stops its siblings. The
// channel closes after every started unit has been delivered. Cancelling ctx
// stops handing out new units.
func (h *Harvester) Run(ctx context.Context, ids []string) <-chan Result {
	jobs := make(chan string)
	results := make(chan Result, h.opts.Workers)

	go func() {
		defer close(jobs)
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	var g errgroup.Group
	for slot := 0; slot < h.opts.Workers; slot++ {
		g.Go(func() error {
			h.runSlot(ctx, slot, jobs, results)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	return results
}

func (h *Harvester) runSlot(ctx context.Context, slot int, jobs <-chan string, results chan<- Result) {
	w := h.opts.NewWorker(slot)
	if c, ok := w.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Debug("harvest_worker_close_failed", slog.Int("slot", slot), slog.String("error", err.Error()))
			}
		}()
	}

	for id := range jobs {
		rec, err := w.Harvest(ctx, id)
		results <- Result{Identifier: id, Record: rec, Err: err, Slot: slot}
		sleep(ctx, h.opts.Delay)
	}
}

// sleep waits for d or until ctx is done.
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
