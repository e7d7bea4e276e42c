// Package filestore implements docstore.Store on a local directory.
//
// Storage layout:
//
//	dir/
//	  objects/
//	    ab/cd123...  (one JSON document per object, git-style sharding)
//
// Search lists the shard directories matching the prefix, so it is meant for
// development and small repositories.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aweris/docodb/internal/docstore"
)

// Store is a filesystem backed docstore.Store. Writes go through a temporary
// file and a rename, so concurrent readers never see partial documents.
type Store struct {
	objectsDir string
}

var _ docstore.Store = (*Store)(nil)

// New opens, creating if needed, a store rooted at dir.
func New(dir string) (*Store, error) {
	objectsDir := filepath.Join(dir, "objects")
	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", objectsDir, err)
	}
	return &Store{objectsDir: objectsDir}, nil
}

// Get reads the document stored under id.
func (s *Store) Get(ctx context.Context, id string) (*docstore.Document, error) {
	path, err := s.objectPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, docstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	return &doc, nil
}

// Index writes doc, replacing any previous document with the same ID.
func (s *Store) Index(ctx context.Context, doc *docstore.Document) error {
	path, err := s.objectPath(doc.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// Search lists matching IDs in order and loads the requested page.
func (s *Store) Search(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	ids, err := s.list(q.Prefix)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	page := &docstore.Page{Total: int64(len(ids))}
	from := min(q.From, len(ids))
	to := min(from+q.Size, len(ids))

	for _, id := range ids[from:to] {
		hit := docstore.Hit{ID: id}
		if !q.IDsOnly {
			doc, err := s.Get(ctx, id)
			if errors.Is(err, docstore.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			hit.Doc = doc
		}
		page.Hits = append(page.Hits, hit)
	}
	return page, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// list returns every stored ID starting with prefix, sorted.
func (s *Store) list(prefix string) ([]string, error) {
	shards, err := os.ReadDir(s.objectsDir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, shard := range shards {
		name := shard.Name()
		if !shard.IsDir() || !shardMatches(name, prefix) {
			continue
		}

		entries, err := os.ReadDir(filepath.Join(s.objectsDir, name))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if id := name + e.Name(); strings.HasPrefix(id, prefix) {
				ids = append(ids, id)
			}
		}
	}

	sort.Strings(ids)
	return ids, nil
}

func shardMatches(shard, prefix string) bool {
	if len(prefix) >= len(shard) {
		return strings.HasPrefix(prefix, shard)
	}
	return strings.HasPrefix(shard, prefix)
}

// objectPath returns the path of id: objects/ab/cd123...
func (s *Store) objectPath(id string) (string, error) {
	if len(id) < 3 || strings.ContainsAny(id, `/\.`) {
		return "", fmt.Errorf("invalid document id %q", id)
	}
	return filepath.Join(s.objectsDir, id[:2], id[2:]), nil
}
