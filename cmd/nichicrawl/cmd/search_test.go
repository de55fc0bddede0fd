package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
	"github.com/yokai-gen/nichicrawl/internal/store"
)

func writeCards(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "details.csv")
	require.NoError(t, rowsink.Write(t.Context(), path, rowsink.HarvestColumns, []rowsink.Row{
		{rowsink.ColIdentifier: cardA, "title": "Kappa of the river", "subjects": "河童"},
		{rowsink.ColIdentifier: cardB, "title": "Plague god", "subjects": "疫神"},
	}))
	return path
}

func TestSearch_BuildsIndexOnFirstQuery(t *testing.T) {
	// Given: a harvest output and no index yet
	dir := sandbox(t, nil)
	csv := writeCards(t, dir)
	index := filepath.Join(dir, "idx.bleve")

	// When: searching
	stdout, err := execute(t, "search", "kappa", "--csv", csv, "--index", index)

	// Then: the index is built and the matching card printed
	require.NoError(t, err)
	assert.Contains(t, stdout, "Indexed 2 cards")
	assert.Contains(t, stdout, cardA)
	assert.Contains(t, stdout, "Kappa of the river")
	assert.NotContains(t, stdout, cardB)
}

func TestSearch_JSON(t *testing.T) {
	dir := sandbox(t, nil)
	csv := writeCards(t, dir)
	index := filepath.Join(dir, "idx.bleve")
	_, err := execute(t, "search", "--reindex", "--csv", csv, "--index", index)
	require.NoError(t, err)

	stdout, err := execute(t, "search", "疫神", "--index", index, "--format", "json")

	require.NoError(t, err)
	var hits []store.SearchHit
	require.NoError(t, json.Unmarshal([]byte(stdout), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, cardB, hits[0].Identifier)
	assert.Equal(t, "Plague god", hits[0].Title)
}

func TestSearch_NoMatchIsEmptyJSON(t *testing.T) {
	dir := sandbox(t, nil)
	csv := writeCards(t, dir)

	stdout, err := execute(t, "search", "tengu", "--csv", csv, "--index", filepath.Join(dir, "idx.bleve"), "-f", "json")

	require.NoError(t, err)
	assert.JSONEq(t, "[]", stdout)
}

func TestSearch_RejectsBadInvocation(t *testing.T) {
	sandbox(t, nil)

	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Equal(t, crawlerr.ErrCodeConfigInvalid, crawlerr.GetCode(err))

	_, err = execute(t, "search", "x", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, crawlerr.ErrCodeConfigInvalid, crawlerr.GetCode(err))
}
