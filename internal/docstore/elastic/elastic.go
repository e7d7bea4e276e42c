// Package elastic implements docstore.Store on an Elasticsearch index.
//
// Each object is one document keyed by its ID. The ID is also stored in a
// keyword field named "id" so that prefix queries and sorting do not depend
// on the _id metadata field.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/aweris/docodb/internal/docstore"
)

// DefaultIndex is the index used when Config.Index is empty.
const DefaultIndex = "git-objects"

// mapping keeps the payload out of the inverted index.
const mapping = `{
  "mappings": {
    "properties": {
      "id":       {"type": "keyword"},
      "kind":     {"type": "keyword"},
      "length":   {"type": "long"},
      "data":     {"type": "binary"},
      "encoding": {"type": "keyword"}
    }
  }
}`

// Config configures the Elasticsearch connection.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	// Refresh makes every write visible to searches before Index returns.
	Refresh bool
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Store is an Elasticsearch backed docstore.Store.
type Store struct {
	client  *elasticsearch.Client
	index   string
	refresh string

	mu    sync.Mutex
	ready bool // index known to exist
}

var _ docstore.Store = (*Store)(nil)

// New connects to Elasticsearch.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch: no addresses configured")
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}

	s := &Store{client: client, index: cfg.Index}
	if cfg.Refresh {
		s.refresh = "true"
	}
	return s, nil
}

// EnsureIndex creates the index with the object mapping unless it exists.
// Index and Search call it on first use, so that a dynamic mapping never
// turns the id field into text.
func (s *Store) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}
	if err := s.createIndex(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

func (s *Store) createIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		err := responseError("create index", res)
		// Another client created it first.
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return err
	}
	return nil
}

// Get fetches a document by ID.
func (s *Store) Get(ctx context.Context, id string) (*docstore.Document, error) {
	res, err := s.client.Get(s.index, id, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, docstore.ErrNotFound
	}
	if res.IsError() {
		return nil, responseError("get "+id, res)
	}

	var body struct {
		Found  bool               `json:"found"`
		Source *docstore.Document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("get %s: decode response: %w", id, err)
	}
	if !body.Found || body.Source == nil {
		return nil, docstore.ErrNotFound
	}
	if body.Source.ID == "" {
		body.Source.ID = id
	}
	return body.Source, nil
}

// Index upserts doc under doc.ID.
func (s *Store) Index(ctx context.Context, doc *docstore.Document) error {
	if err := s.EnsureIndex(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}

	opts := []func(*esapi.IndexRequest){
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(doc.ID),
	}
	if s.refresh != "" {
		opts = append(opts, s.client.Index.WithRefresh(s.refresh))
	}

	res, err := s.client.Index(s.index, bytes.NewReader(payload), opts...)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index "+doc.ID, res)
	}
	return nil
}

// Search runs q as a prefix query on the id field, sorted by id.
func (s *Store) Search(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchBody(q))
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("search", res)
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	page := &docstore.Page{Total: sr.Hits.Total.Value, Hits: make([]docstore.Hit, 0, len(sr.Hits.Hits))}
	for _, h := range sr.Hits.Hits {
		hit := docstore.Hit{ID: h.ID}
		if !q.IDsOnly && h.Source != nil {
			hit.Doc = h.Source
			if hit.Doc.ID == "" {
				hit.Doc.ID = h.ID
			}
		}
		page.Hits = append(page.Hits, hit)
	}
	return page, nil
}

// Close is a no-op: the client holds no resources beyond idle connections.
func (s *Store) Close() error { return nil }

func searchBody(q docstore.Query) map[string]any {
	query := map[string]any{"match_all": map[string]any{}}
	if q.Prefix != "" {
		query = map[string]any{
			"constant_score": map[string]any{
				"filter": map[string]any{
					"prefix": map[string]any{"id": q.Prefix},
				},
			},
		}
	}

	body := map[string]any{
		"query":            query,
		"from":             q.From,
		"size":             q.Size,
		"sort":             []any{map[string]any{"id": map[string]any{"order": "asc", "unmapped_type": "keyword"}}},
		"track_total_hits": true,
	}
	if q.IDsOnly {
		body["_source"] = false
	}
	return body
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string             `json:"_id"`
			Source *docstore.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func responseError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return fmt.Errorf("%s: elasticsearch returned %s: %s", op, res.Status(), bytes.TrimSpace(msg))
}
