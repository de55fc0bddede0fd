package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokai-gen/nichicrawl/internal/card"
)

// fakeWorker records overlapping use of the same instance.
type fakeWorker struct {
	slot     int
	busy     atomic.Bool
	overlaps *atomic.Int32
	units    atomic.Int32
	closed   atomic.Bool
	fail     map[string]bool
	hold     time.Duration
}

func (w *fakeWorker) Harvest(ctx context.Context, id string) (card.Record, error) {
	if !w.busy.CompareAndSwap(false, true) {
		w.overlaps.Add(1)
	}
	defer w.busy.Store(false)
	w.units.Add(1)

	time.Sleep(w.hold)
	if w.fail[id] {
		return card.Record{}, errors.New("boom")
	}
	return card.Record{Identifier: id}, nil
}

func (w *fakeWorker) Close() error {
	w.closed.Store(true)
	return nil
}

type fakePool struct {
	mu       sync.Mutex
	workers  []*fakeWorker
	overlaps atomic.Int32
	fail     map[string]bool
	hold     time.Duration
}

func (p *fakePool) newWorker(slot int) Worker {
	w := &fakeWorker{slot: slot, overlaps: &p.overlaps, fail: p.fail, hold: p.hold}
	p.mu.Lock()
	p.workers = append(p.workers, w)
	p.mu.Unlock()
	return w
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("U426_nichibunken_0001_0001_%04d", i)
	}
	return out
}

func collect(ch <-chan Result) []Result {
	var out []Result
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func TestHarvester_OneSessionPerSlot(t *testing.T) {
	// Given: four slots and many short units
	pool := &fakePool{hold: 2 * time.Millisecond}
	h := New(Options{Workers: 4, NewWorker: pool.newWorker})

	// When
	results := collect(h.Run(context.Background(), ids(40)))

	// Then: exactly four workers were built, never used concurrently,
	// and every unit was delivered once
	assert.Len(t, pool.workers, 4)
	assert.Equal(t, int32(0), pool.overlaps.Load())
	require.Len(t, results, 40)

	var total int32
	slots := map[int]bool{}
	for _, w := range pool.workers {
		total += w.units.Load()
		slots[w.slot] = true
		assert.True(t, w.closed.Load(), "worker of slot %d closed", w.slot)
	}
	assert.Equal(t, int32(40), total)
	assert.Len(t, slots, 4)

	seen := map[string]int{}
	for _, r := range results {
		seen[r.Identifier]++
		assert.NoError(t, r.Err)
		assert.Equal(t, r.Identifier, r.Record.Identifier)
	}
	assert.Len(t, seen, 40)
}

func TestHarvester_FailuresDoNotStopSiblings(t *testing.T) {
	// Given: every third unit fails
	all := ids(12)
	fail := map[string]bool{}
	for i := 0; i < len(all); i += 3 {
		fail[all[i]] = true
	}
	pool := &fakePool{fail: fail}
	h := New(Options{Workers: 3, NewWorker: pool.newWorker})

	// When
	results := collect(h.Run(context.Background(), all))

	// Then: failures are reported and successes match the rest
	require.Len(t, results, 12)
	var failed, ok []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Identifier)
		} else {
			ok = append(ok, r.Identifier)
		}
	}
	assert.Len(t, failed, 4)
	assert.Len(t, ok, 8)
	for _, id := range failed {
		assert.True(t, fail[id])
	}
}

func TestHarvester_DelayAfterEachUnit(t *testing.T) {
	pool := &fakePool{}
	h := New(Options{Workers: 1, Delay: 20 * time.Millisecond, NewWorker: pool.newWorker})

	start := time.Now()
	results := collect(h.Run(context.Background(), ids(3)))

	require.Len(t, results, 3)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestHarvester_ZeroWorkersMeansOne(t *testing.T) {
	pool := &fakePool{}
	h := New(Options{Workers: 0, NewWorker: pool.newWorker})

	results := collect(h.Run(context.Background(), ids(2)))

	assert.Equal(t, 1, h.Workers())
	assert.Len(t, results, 2)
	assert.Len(t, pool.workers, 1)
}

func TestHarvester_EmptyInputCloses(t *testing.T) {
	pool := &fakePool{}
	h := New(Options{Workers: 2, NewWorker: pool.newWorker})

	results := collect(h.Run(context.Background(), nil))

	assert.Empty(t, results)
}

func TestHarvester_CancelStopsHandingOutUnits(t *testing.T) {
	// Given: a long delay per unit
	pool := &fakePool{}
	h := New(Options{Workers: 1, Delay: time.Hour, NewWorker: pool.newWorker})
	ctx, cancel := context.WithCancel(context.Background())

	// When: cancelling after the first result
	ch := h.Run(ctx, ids(5))
	first := <-ch
	cancel()
	rest := collect(ch)

	// Then: the run ends promptly with few units done
	assert.NoError(t, first.Err)
	assert.LessOrEqual(t, len(rest), 1)
}

func TestCardWorker(t *testing.T) {
	// Given: a stub archive
	const id = "U426_nichibunken_0051_0032_0000"
	var cardHits, imageHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/card.cgi" {
			cardHits.Add(1)
			_, _ = fmt.Fprintf(w, `<p>%s</p><table class="dataTable"><tr><th>タイトル</th><td>Example</td></tr></table>`, id)
			return
		}
		imageHits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("img"))
	}))
	defer srv.Close()

	cache, err := card.NewCache(8)
	require.NoError(t, err)
	cfg := card.Config{CardURL: srv.URL + "/card.cgi", ImageBaseURL: srv.URL + "/image", Timeout: time.Second}

	t.Run("without image dir", func(t *testing.T) {
		w := CardWorkerFactory(cfg, cache, "", false)(0)

		rec, err := w.Harvest(context.Background(), id)

		require.NoError(t, err)
		assert.Equal(t, "Example", rec.Get(card.FieldTitle))
		assert.Empty(t, rec.ImagePath)
		assert.Equal(t, int32(1), cardHits.Load())
		assert.Equal(t, int32(0), imageHits.Load())
	})

	t.Run("cached card with image download", func(t *testing.T) {
		dir := t.TempDir()
		w := CardWorkerFactory(cfg, cache, dir, false)(1)

		rec, err := w.Harvest(context.Background(), id)

		require.NoError(t, err)
		assert.NotEmpty(t, rec.ImagePath)
		assert.Equal(t, int32(1), cardHits.Load(), "card served from cache")
		assert.Equal(t, int32(1), imageHits.Load())
	})

	t.Run("fetch error fails the unit", func(t *testing.T) {
		srv404 := httptest.NewServer(http.NotFoundHandler())
		defer srv404.Close()
		w := &CardWorker{Session: card.NewSession(card.Config{CardURL: srv404.URL, Timeout: time.Second})}

		_, err := w.Harvest(context.Background(), id)

		require.Error(t, err)
	})
}

func TestCardWorkerFactory_DistinctSessions(t *testing.T) {
	factory := CardWorkerFactory(card.DefaultConfig(), nil, "", false)

	var sessionIDs []uint64
	for slot := 0; slot < 3; slot++ {
		sessionIDs = append(sessionIDs, factory(slot).(*CardWorker).Session.ID())
	}

	sort.Slice(sessionIDs, func(i, j int) bool { return sessionIDs[i] < sessionIDs[j] })
	assert.NotEqual(t, sessionIDs[0], sessionIDs[1])
	assert.NotEqual(t, sessionIDs[1], sessionIDs[2])
}
