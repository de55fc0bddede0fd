package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaths(t *testing.T) {
	assert.Contains(t, DefaultLogDir(), filepath.Join(".nichicrawl", "logs"))
	assert.Equal(t, "crawl.log", filepath.Base(DefaultLogPath()))
	assert.Equal(t, DefaultLogPath(), ResolveLogPath(""))
	assert.Equal(t, filepath.Join("x", "crawl.log"), ResolveLogPath("x"))
}

func TestConfigs(t *testing.T) {
	def := DefaultConfig()
	assert.Equal(t, "warn", def.Level)
	assert.Empty(t, def.FilePath)

	dbg := DebugConfig()
	assert.Equal(t, "debug", dbg.Level)
	assert.Equal(t, DefaultLogPath(), dbg.FilePath)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestSetup_FileCarriesRunID(t *testing.T) {
	// Given: a file logger with a fixed run id
	path := filepath.Join(t.TempDir(), "logs", "crawl.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, RunID: "run-1"})
	require.NoError(t, err)

	// When: logging an event
	logger.Debug("probe_hit", slog.String("identifier", "U426_nichibunken_0001_0001_0000"))
	cleanup()

	// Then: the JSON line has the event, its attrs and the run id
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "probe_hit", rec["msg"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "U426_nichibunken_0001_0001_0000", rec["identifier"])
}

func TestSetup_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info("ignored")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ignored")
	assert.Contains(t, string(data), "kept")
}

func TestSetup_StderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(DefaultConfig())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestNewRunID_Unique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

// === RotatingWriter ===

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a 1 MB writer keeping two rolled files
	path := filepath.Join(t.TempDir(), "crawl.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := []byte(strings.Repeat("x", 600*1024) + "\n")

	// When: writing four records that each fill more than half the limit
	for i := 0; i < 4; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: the live file plus two rolled files exist, no third
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(line)), info.Size())
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "crawl.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

// === Viewer ===

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawl.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func logLine(level, msg, run string) string {
	return fmt.Sprintf(`{"time":"2026-01-02T03:04:05.5Z","level":%q,"msg":%q,"run_id":%q,"identifier":"U426_nichibunken_0001_0001_0000"}`, level, msg, run)
}

func TestViewer_TailLastN(t *testing.T) {
	path := writeLog(t,
		logLine("INFO", "a", "r1"),
		logLine("INFO", "b", "r1"),
		logLine("INFO", "c", "r1"),
	)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Msg)
	assert.Equal(t, "c", entries[1].Msg)
}

func TestViewer_Filters(t *testing.T) {
	path := writeLog(t,
		logLine("DEBUG", "probe_miss", "aaaa"),
		logLine("WARN", "image_not_image", "aaaa"),
		logLine("ERROR", "probe_failed", "bbbb"),
		"not json",
	)

	tests := []struct {
		name string
		cfg  ViewerConfig
		want []string
	}{
		{"level", ViewerConfig{Level: "warn"}, []string{"image_not_image", "probe_failed", ""}},
		{"run", ViewerConfig{RunID: "bb"}, []string{"probe_failed"}},
		{"pattern", ViewerConfig{Pattern: regexp.MustCompile("probe_")}, []string{"probe_miss", "probe_failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg, &bytes.Buffer{}).Tail(path, 100)
			require.NoError(t, err)

			var got []string
			for _, e := range entries {
				got = append(got, e.Msg)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := parseLine(logLine("WARN", "image_not_image", "0123456789"))

	out := v.FormatEntry(entry)

	assert.Equal(t, "03:04:05.500 WARN  [01234567] image_not_image identifier=U426_nichibunken_0001_0001_0000", out)
	assert.Equal(t, "garbage", v.FormatEntry(parseLine("garbage")))
}

func TestViewer_Print(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &buf)

	v.Print([]LogEntry{parseLine("plain"), parseLine("other")})

	assert.Equal(t, "plain\nother\n", buf.String())
}

func TestViewer_Follow(t *testing.T) {
	// Given: a follower on an existing file
	path := writeLog(t, logLine("INFO", "before", "r"))
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()
	time.Sleep(150 * time.Millisecond)

	// When: a line is appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(logLine("INFO", "after", "r") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new line is delivered
	select {
	case e := <-entries:
		assert.Equal(t, "after", e.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no entry followed")
	}
	cancel()
	assert.NoError(t, <-done)
}
