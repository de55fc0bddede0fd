package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
)

func TestCatalog_UpsertMergesStages(t *testing.T) {
	// Given: a catalog with a discovery row
	ctx := context.Background()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Upsert(ctx, StageDiscover, []rowsink.Row{
		{"identifier": "U426_nichibunken_0051_0032_0000", "title": "Example", "bbbb": "0051"},
		{"identifier": "U426_nichibunken_0051_0032_0001", "title": "Second"},
		{"title": "no id"},
	}))

	// When: the harvest stage adds columns for the first card
	require.NoError(t, c.Upsert(ctx, StageHarvest, []rowsink.Row{
		{"identifier": "U426_nichibunken_0051_0032_0000", "image_path": "/img/a.jpg", "title": "Example"},
	}))

	// Then: columns merge and insertion order is kept
	ids, err := c.Identifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"U426_nichibunken_0051_0032_0000", "U426_nichibunken_0051_0032_0001"}, ids)

	rows, err := c.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0051", rows[0]["bbbb"])
	assert.Equal(t, "/img/a.jpg", rows[0]["image_path"])

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCatalog_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := OpenCatalog(path)
	require.NoError(t, err)
	require.NoError(t, c.Upsert(ctx, StageDiscover, []rowsink.Row{{"identifier": "a"}}))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	c2, err := OpenCatalog(path)
	require.NoError(t, err)
	defer c2.Close()
	ids, err := c2.Identifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestCatalog_ClosedRejectsUse(t *testing.T) {
	c, err := OpenCatalog("")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Identifiers(context.Background())
	assert.Error(t, err)
}

func TestFullText_IndexAndSearch(t *testing.T) {
	// Given: two indexed cards
	ctx := context.Background()
	ft, err := OpenFullText("")
	require.NoError(t, err)
	defer ft.Close()

	require.NoError(t, ft.Index(ctx, []rowsink.Row{
		{"identifier": "U426_nichibunken_0001_0001_0000", "title": "Kappa scroll", "subjects": "河童 水辺"},
		{"identifier": "U426_nichibunken_0002_0001_0000", "title": "Plague god", "subjects": "疫神", "description": "kappa cameo"},
		{"title": "no identifier"},
	}))

	// When/Then: a Latin query matches both, title match present
	hits, err := ft.Search(ctx, "kappa", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// When/Then: a Japanese query matches only the plague god card
	hits, err = ft.Search(ctx, "疫神", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "U426_nichibunken_0002_0001_0000", hits[0].Identifier)
	assert.Equal(t, "Plague god", hits[0].Title)

	n, err := ft.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestFullText_ReindexReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fulltext.bleve")
	ft, err := OpenFullText(path)
	require.NoError(t, err)

	require.NoError(t, ft.Index(ctx, []rowsink.Row{{"identifier": "a", "title": "oni"}}))
	require.NoError(t, ft.Index(ctx, []rowsink.Row{{"identifier": "a", "title": "tengu"}}))
	require.NoError(t, ft.Close())

	ft, err = OpenFullText(path)
	require.NoError(t, err)
	defer ft.Close()

	hits, err := ft.Search(ctx, "oni", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = ft.Search(ctx, "tengu", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestCatalog_ErrorsCarryIOCodes(t *testing.T) {
	dir := t.TempDir()

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.db")
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not sqlite ", 200)), 0o644))

		_, err := OpenCatalog(path)

		require.Error(t, err)
		assert.Contains(t, []string{crawlerr.ErrCodeReadFailed, crawlerr.ErrCodeWriteFailed}, crawlerr.GetCode(err))
	})

	t.Run("directory cannot be created", func(t *testing.T) {
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		_, err := OpenCatalog(filepath.Join(blocker, "sub", "catalog.db"))

		require.Error(t, err)
		assert.Equal(t, crawlerr.ErrCodeWriteFailed, crawlerr.GetCode(err))
	})

	t.Run("closed catalog", func(t *testing.T) {
		c, err := OpenCatalog("")
		require.NoError(t, err)
		require.NoError(t, c.Close())

		err = c.Upsert(context.Background(), StageHarvest, []rowsink.Row{{"identifier": "a"}})

		require.Error(t, err)
		assert.NotEmpty(t, crawlerr.GetCode(err))
	})
}

func TestFullText_ErrorsCarryIOCodes(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := OpenFullText(filepath.Join(blocker, "sub", "idx.bleve"))

	require.Error(t, err)
	assert.Equal(t, crawlerr.ErrCodeWriteFailed, crawlerr.GetCode(err))
}
