package docodb

import "github.com/aweris/docodb/internal/docstore"

// DocumentStore is the remote store a Backend persists into.
// Re-exported from internal/docstore for convenience.
type DocumentStore = docstore.Store

// Document is the persisted form of an object.
type Document = docstore.Document
