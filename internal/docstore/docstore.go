// Package docstore defines the remote document store the object backend
// persists into.
//
// The contract mirrors what document-indexed stores
// (Elasticsearch, MongoDB, Redis with a key index) offer natively:
//   - Get fetches one document by its key
//   - Index upserts one document under its key
//   - Search returns one page of documents filtered by key prefix
//
// All Store implementations must be safe for concurrent use from multiple
// goroutines, and must return Search hits ordered by ID ascending so that
// from/size paging is stable while the store is not being written to.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document has the requested ID.
var ErrNotFound = errors.New("docstore: document not found")

// Encodings of Document.Data.
const (
	EncodingBase64     = "base64"
	EncodingZstdBase64 = "zstd+base64"
)

// Document is the persisted form of one object.
type Document struct {
	ID       string `json:"id" bson:"_id"`
	Kind     string `json:"kind" bson:"kind"`
	Length   int64  `json:"length" bson:"length"`
	Data     string `json:"data,omitempty" bson:"data,omitempty"`
	Encoding string `json:"encoding,omitempty" bson:"encoding,omitempty"`
}

// Query selects one page of documents.
type Query struct {
	// Prefix filters on the document ID. Empty matches every document.
	Prefix string
	// From is the number of matching documents to skip.
	From int
	// Size is the maximum number of hits in the page.
	Size int
	// IDsOnly asks the store to leave Hit.Doc nil.
	IDsOnly bool
}

// Hit is a single search result.
type Hit struct {
	ID  string
	Doc *Document
}

// Page is one page of search results along with the number of documents the
// store reports as matching the query overall.
type Page struct {
	Hits  []Hit
	Total int64
}

// Store is a remote document store.
type Store interface {
	// Get retrieves the document stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// Index stores doc under doc.ID, replacing any previous document.
	Index(ctx context.Context, doc *Document) error

	// Search returns the page of documents selected by q.
	Search(ctx context.Context, q Query) (*Page, error)

	// Close releases the connection to the store.
	Close() error
}
