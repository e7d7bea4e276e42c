// Package memstore is an in-process docstore.Store.
//
// It keeps documents in a map with a sorted key index so that Search behaves
// like the network-backed stores: ordered by ID, paged by from/size, with the
// total number of matches reported alongside each page.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aweris/docodb/internal/docstore"
)

type Store struct {
	mu   sync.RWMutex
	docs map[string]docstore.Document
	ids  []string // sorted
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{docs: make(map[string]docstore.Document)}
}

func (s *Store) Get(ctx context.Context, id string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return &doc, nil
}

func (s *Store) Index(ctx context.Context, doc *docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; !exists {
		i := sort.SearchStrings(s.ids, doc.ID)
		s.ids = append(s.ids, "")
		copy(s.ids[i+1:], s.ids[i:])
		s.ids[i] = doc.ID
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *Store) Search(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.SearchStrings(s.ids, q.Prefix)
	end := start
	for end < len(s.ids) && strings.HasPrefix(s.ids[end], q.Prefix) {
		end++
	}

	page := &docstore.Page{Total: int64(end - start)}
	for i := start + q.From; i < end && len(page.Hits) < q.Size; i++ {
		id := s.ids[i]
		hit := docstore.Hit{ID: id}
		if !q.IDsOnly {
			doc := s.docs[id]
			hit.Doc = &doc
		}
		page.Hits = append(page.Hits, hit)
	}
	return page, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Store) Close() error { return nil }
