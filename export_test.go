package docodb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aweris/docodb/internal/docstore"
	"github.com/aweris/docodb/internal/docstore/memstore"
)

// newTestBackend creates a Backend over an empty in-memory store.
func newTestBackend(t *testing.T, opts ...Option) (*Backend, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	b, err := New(store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return b, store
}

// writeObject writes payload under its computed ID and returns the object.
func writeObject(t *testing.T, b *Backend, kind Kind, payload []byte) *Object {
	t.Helper()

	id, err := ComputeID(kind, payload)
	require.NoError(t, err)

	obj := &Object{ID: id, Kind: kind, Length: int64(len(payload)), Payload: payload}
	require.NoError(t, b.Write(context.Background(), obj))
	return obj
}

// writeWithID writes payload under an arbitrary ID.
func writeWithID(t *testing.T, b *Backend, id string, kind Kind, payload []byte) *Object {
	t.Helper()

	obj := &Object{ID: ID(id), Kind: kind, Length: int64(len(payload)), Payload: payload}
	require.NoError(t, b.Write(context.Background(), obj))
	return obj
}

// assertObjectEqual verifies two objects match field by field.
func assertObjectEqual(t *testing.T, expected, actual *Object) {
	t.Helper()

	require.NotNil(t, actual)
	if actual.ID != expected.ID {
		t.Errorf("ID mismatch: expected [%s], got [%s]", expected.ID, actual.ID)
	}
	if actual.Kind != expected.Kind {
		t.Errorf("Kind mismatch: expected [%s], got [%s]", expected.Kind, actual.Kind)
	}
	if actual.Length != expected.Length {
		t.Errorf("Length mismatch: expected [%d], got [%d]", expected.Length, actual.Length)
	}
	if string(actual.Payload) != string(expected.Payload) {
		t.Errorf("Payload mismatch: expected [%q], got [%q]", expected.Payload, actual.Payload)
	}
}

// cacheModes runs fn once with caching disabled and once enabled.
func cacheModes(t *testing.T, fn func(t *testing.T, cached bool)) {
	for _, cached := range []bool{false, true} {
		name := "uncached"
		if cached {
			name = "cached"
		}
		t.Run(name, func(t *testing.T) { fn(t, cached) })
	}
}

// countingStore counts document store calls.
type countingStore struct {
	docstore.Store
	gets     atomic.Int64
	indexes  atomic.Int64
	searches atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, id string) (*docstore.Document, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, id)
}

func (c *countingStore) Index(ctx context.Context, doc *docstore.Document) error {
	c.indexes.Add(1)
	return c.Store.Index(ctx, doc)
}

func (c *countingStore) Search(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	c.searches.Add(1)
	return c.Store.Search(ctx, q)
}

// brokenStore fails every call, as an unreachable store would.
type brokenStore struct{}

var errConnRefused = errors.New("dial tcp 127.0.0.1:9200: connection refused")

func (brokenStore) Get(context.Context, string) (*docstore.Document, error) {
	return nil, errConnRefused
}
func (brokenStore) Index(context.Context, *docstore.Document) error { return errConnRefused }
func (brokenStore) Search(context.Context, docstore.Query) (*docstore.Page, error) {
	return nil, errConnRefused
}
func (brokenStore) Close() error { return nil }

// idOnlyStore drops documents from search hits, like a store that ignores
// source projection.
type idOnlyStore struct{ docstore.Store }

func (s idOnlyStore) Search(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	page, err := s.Store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range page.Hits {
		page.Hits[i].Doc = nil
	}
	return page, nil
}
