package rangemem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokai-gen/nichicrawl/internal/fsutil"
	"github.com/yokai-gen/nichicrawl/internal/ident"
)

func TestBound_ObserveWidensOnly(t *testing.T) {
	var b Bound
	assert.True(t, b.Empty())

	for _, v := range []int{7, 5, 6} {
		b = b.Observe(v)
	}

	assert.Equal(t, Bound{Min: 5, Max: 7, Count: 3}, b)
}

func TestBound_Merge(t *testing.T) {
	tests := []struct {
		name string
		a, b Bound
		want Bound
	}{
		{"both empty", Bound{}, Bound{}, Bound{}},
		{"left empty", Bound{}, Bound{Min: 2, Max: 4, Count: 1}, Bound{Min: 2, Max: 4, Count: 1}},
		{"right empty", Bound{Min: 2, Max: 4, Count: 1}, Bound{}, Bound{Min: 2, Max: 4, Count: 1}},
		{"disjoint", Bound{Min: 1, Max: 2, Count: 2}, Bound{Min: 8, Max: 9, Count: 3}, Bound{Min: 1, Max: 9, Count: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Merge(tt.b))
			assert.Equal(t, tt.want, tt.b.Merge(tt.a))
		})
	}
}

func TestMemory_UpdateAndWindow(t *testing.T) {
	// Given: hits at sub-bucket 5 and 7, sequence 2 and 9 in bucket 51
	m := Memory{}
	m.Update(ident.Parts{Collection: 426, Bucket: 51, SubBucket: 5, Sequence: 2})
	m.Update(ident.Parts{Collection: 426, Bucket: 51, SubBucket: 7, Sequence: 9})

	// Then: the entry folds both observations
	e, ok := m.Get(51)
	require.True(t, ok)
	assert.Equal(t, 5, e.Sub.Min)
	assert.Equal(t, 7, e.Sub.Max)
	assert.Equal(t, 2, e.Seq.Min)
	assert.Equal(t, 9, e.Seq.Max)
	assert.Equal(t, 2, e.Hits)

	// When: deriving windows with margins 2 and 1
	sub, seq := e.Window(2, 1)

	// Then: both dimensions widen
	assert.Equal(t, ident.Range{Start: 3, End: 9}, sub)
	assert.Equal(t, ident.Range{Start: 1, End: 10}, seq)
}

func TestEntry_WindowSingleHitIsUnmargined(t *testing.T) {
	e := Entry{}.Observe(ident.Parts{Bucket: 8, SubBucket: 12, Sequence: 0})

	sub, seq := e.Window(2, 1)

	assert.Equal(t, ident.Single(12), sub)
	assert.Equal(t, ident.Single(0), seq)
}

func TestEntry_WindowClampsAtZero(t *testing.T) {
	e := Entry{}.
		Observe(ident.Parts{SubBucket: 1, Sequence: 0}).
		Observe(ident.Parts{SubBucket: 3, Sequence: 4})

	sub, seq := e.Window(5, 5)

	assert.Equal(t, ident.Range{Start: 0, End: 8}, sub)
	assert.Equal(t, ident.Range{Start: 0, End: 9}, seq)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	m := Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"))

	assert.Empty(t, m)
}

func TestLoad_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m := Load(context.Background(), path)

	assert.Empty(t, m)
}

func TestLoad_InvertedBoundsAreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0051":{"c_min":9,"c_max":1,"d_min":0,"d_max":0,"hits":1}}`), 0o644))

	m := Load(context.Background(), path)

	assert.Empty(t, m)
}

func TestLoad_AcceptsBareKeysAndMissingHits(t *testing.T) {
	// Given: a hand-written file with an unpadded key and no hits field
	path := filepath.Join(t.TempDir(), "ranges.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"51":{"c_min":30,"c_max":34,"d_min":0,"d_max":3}}`), 0o644))

	// When: loading and observing a new hit outside the stored extent
	m := Load(context.Background(), path)
	m.Update(ident.Parts{Bucket: 51, SubBucket: 40, Sequence: 1})

	// Then: the stored extent is kept and widened
	e := m[51]
	assert.Equal(t, 30, e.Sub.Min)
	assert.Equal(t, 40, e.Sub.Max)
	assert.Equal(t, 1, e.Hits)
}

func TestLoad_HeldLockReadsUnlocked(t *testing.T) {
	// Given: a stored memory whose lock is held elsewhere
	path := filepath.Join(t.TempDir(), "ranges.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0051":{"c_min":30,"c_max":34,"d_min":0,"d_max":3,"hits":2}}`), 0o644))
	held := fsutil.NewFileLock(path)
	require.NoError(t, held.Lock(context.Background()))
	defer held.Unlock()

	// When: loading with a context that is already done
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := Load(ctx, path)

	// Then: the file is still read
	e, ok := m.Get(51)
	require.True(t, ok)
	assert.Equal(t, 30, e.Sub.Min)
	assert.Equal(t, 2, e.Hits)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	// Given: a memory with two buckets
	path := filepath.Join(t.TempDir(), "derived", "ranges.json")
	m := Memory{}
	m.Update(ident.Parts{Bucket: 51, SubBucket: 32, Sequence: 0})
	m.Update(ident.Parts{Bucket: 51, SubBucket: 35, Sequence: 4})
	m.Update(ident.Parts{Bucket: 7, SubBucket: 1, Sequence: 1})

	// When: saving and loading it back
	require.NoError(t, Save(context.Background(), path, m))
	got := Load(context.Background(), path)

	// Then: extents and hits survive and keys are zero-padded on disk
	assert.Equal(t, []int{7, 51}, got.Buckets())
	assert.Equal(t, m[51].Sub.Min, got[51].Sub.Min)
	assert.Equal(t, m[51].Seq.Max, got[51].Seq.Max)
	assert.Equal(t, 2, got[51].Hits)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"0051"`)
	assert.Contains(t, string(data), `"c_min": 32`)
}
