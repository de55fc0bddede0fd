package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
)

const sampleLog = `{"time":"2026-01-02T03:04:05.000Z","level":"INFO","msg":"discover_started","run_id":"aaaa1111","tasks":3}
{"time":"2026-01-02T03:04:06.000Z","level":"WARN","msg":"probe_failed","run_id":"aaaa1111","identifier":"U426_nichibunken_0001_0001_0000"}
{"time":"2026-01-02T03:05:00.000Z","level":"INFO","msg":"harvest_started","run_id":"bbbb2222"}
`

func TestLogs_FiltersByLevelAndRun(t *testing.T) {
	// Given: a JSON log with two runs
	dir := sandbox(t, nil)
	path := writeFile(t, dir, "nichicrawl.log", sampleLog)

	// When: showing warnings only
	stdout, err := execute(t, "logs", "--file", path, "--level", "warn", "--no-color")

	// Then: only the failed probe is listed
	require.NoError(t, err)
	assert.Contains(t, stdout, "probe_failed")
	assert.NotContains(t, stdout, "discover_started")

	// When: selecting the second run by prefix
	stdout, err = execute(t, "logs", "--file", path, "--run", "bbbb", "--no-color")

	// Then: only its entry is listed
	require.NoError(t, err)
	assert.Contains(t, stdout, "[bbbb2222] harvest_started")
	assert.NotContains(t, stdout, "probe_failed")
}

func TestLogs_Errors(t *testing.T) {
	dir := sandbox(t, nil)
	path := writeFile(t, dir, "nichicrawl.log", sampleLog)

	_, err := execute(t, "logs", "--file", filepath.Join(dir, "missing.log"))
	require.Error(t, err)
	assert.Equal(t, crawlerr.ErrCodeInputMissing, crawlerr.GetCode(err))

	_, err = execute(t, "logs", "--file", path, "--filter", "(")
	require.Error(t, err)
	assert.Equal(t, crawlerr.ErrCodeConfigInvalid, crawlerr.GetCode(err))
}
