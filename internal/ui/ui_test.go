package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Names(t *testing.T) {
	assert.Equal(t, "Fetching", StageFetch.String())
	assert.Equal(t, "WRITE", StageWrite.Icon())
	assert.Equal(t, "DONE", StageComplete.Icon())
	assert.Equal(t, "???", Stage(99).Icon())
}

func TestNewConfig_Options(t *testing.T) {
	called := false
	cfg := NewConfig(&bytes.Buffer{}, WithForcePlain(true), WithNoColor(true), WithTitle("t"), WithInterrupt(func() { called = true }))

	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "t", cfg.Title)
	cfg.OnInterrupt()
	assert.True(t, called)
}

func TestNewRenderer_PlainForBuffers(t *testing.T) {
	// Given: a non-terminal output
	r := NewRenderer(NewConfig(&bytes.Buffer{}))

	// Then: the plain renderer is chosen
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

// === PlainRenderer ===

func TestPlainRenderer_Progress(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: reporting progress with and without a total
	r.UpdateProgress(ProgressEvent{Stage: StageFetch, Current: 3, Total: 10, Identifier: "U426_nichibunken_0001_0001_0000"})
	r.UpdateProgress(ProgressEvent{Stage: StageWrite, Message: "data/out.csv"})
	r.UpdateProgress(ProgressEvent{Stage: StageWrite})

	// Then: one line each for the informative events, no ANSI codes
	assert.Equal(t,
		"[FETCH] 3/10 - U426_nichibunken_0001_0001_0000\n[WRITE] data/out.csv\n",
		buf.String())
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.NoError(t, r.Stop())
}

func TestPlainRenderer_Errors(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{Identifier: "U1", Err: errors.New("boom")})
	r.AddError(ErrorEvent{Err: errors.New("not an image"), IsWarn: true})

	assert.Equal(t, "ERROR: U1: boom\nWARN: not an image\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{
		Requested: 1200, Succeeded: 1198, Failed: 2, Resumed: 30, Images: 5,
		Duration: 1500 * time.Millisecond, Output: "data/out.csv",
	})

	out := buf.String()
	assert.Contains(t, out, "Complete: 1,198 of 1,200 cards harvested in 1.5s (2 failed)")
	assert.Contains(t, out, "Resumed: 30 already in output")
	assert.Contains(t, out, "Images:  5")
	assert.Contains(t, out, "Output:  data/out.csv")
}

// === ProgressTracker ===

func TestProgressTracker_Snapshot(t *testing.T) {
	// Given: a tracker at 5 of 20
	p := NewProgressTracker()
	p.SetStage(StageFetch, 20)
	p.Update(5, "U426_nichibunken_0001_0001_0005")
	p.AddError(ErrorEvent{Err: errors.New("x")})
	p.AddError(ErrorEvent{Err: errors.New("y"), IsWarn: true})

	// When: taking a snapshot
	s := p.Stats()

	// Then: counts and fraction are reported
	assert.Equal(t, 5, s.Current)
	assert.Equal(t, 20, s.Total)
	assert.InDelta(t, 0.25, s.Progress, 1e-9)
	assert.Equal(t, "U426_nichibunken_0001_0001_0005", s.Identifier)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 1, s.WarnCount)
}

func TestProgressTracker_ProgressCapped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageFetch, 2)
	p.Update(5, "")

	s := p.Stats()
	assert.Equal(t, 1.0, s.Progress)
	assert.Zero(t, s.ETA)
}

func TestProgressTracker_SpeedAfterWindow(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageFetch, 100)
	time.Sleep(speedWindow + 50*time.Millisecond)

	p.Update(10, "")

	s := p.Stats()
	assert.Greater(t, s.Speed.Current, 0.0)
	assert.Equal(t, s.Speed.Current, s.Speed.Peak)
	assert.Greater(t, s.ETA, time.Duration(0))
}

// === Sparkline ===

func TestSparkline_Render(t *testing.T) {
	s := NewSparkline(4)
	assert.Equal(t, "   ", s.Render(3))

	s.Add(0)
	s.Add(7)
	assert.Equal(t, "  ▁█", s.Render(4))

	for _, v := range []float64{1, 2, 3, 7, 7} {
		s.Add(v)
	}
	assert.Equal(t, 7, s.Count())
	// Only the newest four samples survive: 2, 3, 7, 7.
	assert.Len(t, []rune(s.Render(0)), 4)
	assert.True(t, strings.HasSuffix(s.Render(2), "██"))

	s.Clear()
	assert.Zero(t, s.Count())
}

// === TUI model ===

func TestHarvestModel_View(t *testing.T) {
	// Given: a model halfway through
	tracker := NewProgressTracker()
	tracker.SetStage(StageFetch, 2000)
	tracker.Update(1000, "U426_nichibunken_0001_0001_0000")
	tracker.AddError(ErrorEvent{Err: errors.New("x")})
	m := newHarvestModel(tracker, "nichicrawl harvest")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: title, counts and the last identifier appear
	assert.Contains(t, view, "nichicrawl harvest")
	assert.Contains(t, view, "1,000 / 2,000 cards")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "U426_nichibunken_0001_0001_0000")
	assert.Contains(t, view, "1 errors")
}

func TestHarvestModel_Interrupt(t *testing.T) {
	// Given: a model with an interrupt hook
	calls := 0
	m := newHarvestModel(NewProgressTracker(), "")
	m.onInterrupt = func() { calls++ }

	// When: ctrl+c arrives twice
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	// Then: the hook fires once and the status bar says so
	assert.Equal(t, 1, calls)
	assert.Contains(t, m.View(), "stopping")
}

func TestHarvestModel_Complete(t *testing.T) {
	m := newHarvestModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg(CompletionStats{Requested: 3, Succeeded: 2, Failed: 1, Duration: 90 * time.Second}))

	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Harvest complete")
	assert.Contains(t, view, "1m 30s")
	assert.Contains(t, view, "1 failed")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "1h 5m", formatDuration(65*time.Minute))
}

// === RangeReport ===

func TestRangeReport_Render(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewRangeReport(buf, true)

	require.NoError(t, r.Render("ranges.json", []RangeRow{
		{Bucket: "0051", SubMin: 5, SubMax: 7, SeqMin: 2, SeqMax: 9, Hits: 2, SubWindow: "3-9", SeqWindow: "1-10"},
	}))

	out := buf.String()
	assert.Contains(t, out, "Range memory: ranges.json")
	assert.Contains(t, out, "0051")
	assert.Contains(t, out, "5-7")
	assert.Contains(t, out, "1-10")
	assert.Contains(t, out, "1 buckets, 2 hits")
}

func TestRangeReport_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewRangeReport(buf, true)

	require.NoError(t, r.Render("x", nil))
	assert.Contains(t, buf.String(), "no buckets recorded")

	buf.Reset()
	require.NoError(t, r.RenderJSON(nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestRangeReport_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewRangeReport(buf, true).RenderJSON([]RangeRow{{Bucket: "0001", Hits: 1}}))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "0001", rows[0]["bucket"])
}
