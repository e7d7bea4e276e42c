package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/docodb/internal/docstore"
)

func index(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.Index(context.Background(), &docstore.Document{ID: id, Kind: "blob", Length: 1, Data: "eA=="}))
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStore_IndexOverwrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Index(ctx, &docstore.Document{ID: "aa", Kind: "blob", Length: 1}))
	require.NoError(t, s.Index(ctx, &docstore.Document{ID: "aa", Kind: "tree", Length: 2}))

	doc, err := s.Get(ctx, "aa")
	require.NoError(t, err)
	assert.Equal(t, "tree", doc.Kind)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SearchPrefixOrdered(t *testing.T) {
	s := New()
	index(t, s, "bbcc", "aa01", "bbaa", "cc00", "bb00")

	page, err := s.Search(context.Background(), docstore.Query{Prefix: "bb", Size: 10})
	require.NoError(t, err)

	require.Len(t, page.Hits, 3)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, "bb00", page.Hits[0].ID)
	assert.Equal(t, "bbaa", page.Hits[1].ID)
	assert.Equal(t, "bbcc", page.Hits[2].ID)
	assert.NotNil(t, page.Hits[0].Doc)
}

func TestStore_SearchPaged(t *testing.T) {
	s := New()
	index(t, s, "01", "02", "03", "04", "05")

	page, err := s.Search(context.Background(), docstore.Query{From: 2, Size: 2, IDsOnly: true})
	require.NoError(t, err)

	require.Len(t, page.Hits, 2)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, "03", page.Hits[0].ID)
	assert.Nil(t, page.Hits[0].Doc)

	page, err = s.Search(context.Background(), docstore.Query{From: 10, Size: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Hits)
}
