// Package mongostore implements docstore.Store on a MongoDB collection, keyed
// by _id.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"github.com/aweris/docodb/internal/docstore"
)

const (
	DefaultDatabase   = "docodb"
	DefaultCollection = "objects"
)

// Config configures the MongoDB connection.
type Config struct {
	// URL is a mongodb:// connection string.
	URL        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is a MongoDB backed docstore.Store. mgo has no context support, so
// contexts are only checked before each round-trip.
type Store struct {
	session  *mgo.Session
	database string
	collName string
}

var _ docstore.Store = (*Store)(nil)

// New dials MongoDB.
func New(cfg Config) (*Store, error) {
	info, err := dialInfo(cfg)
	if err != nil {
		return nil, err
	}

	session, err := mgo.DialWithInfo(info)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	session.SetMode(mgo.Monotonic, true)

	return &Store{session: session, database: info.Database, collName: cfg.Collection}, nil
}

func dialInfo(cfg Config) (*mgo.DialInfo, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongo url cannot be empty")
	}
	info, err := mgo.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse mongo url: %w", err)
	}
	if cfg.Database != "" {
		info.Database = cfg.Database
	}
	if info.Database == "" {
		info.Database = DefaultDatabase
	}
	if cfg.Timeout > 0 {
		info.Timeout = cfg.Timeout
	} else if info.Timeout == 0 {
		info.Timeout = 10 * time.Second
	}
	return info, nil
}

// collection returns the collection on a copied session; callers must close
// the session.
func (s *Store) collection(ctx context.Context) (*mgo.Collection, *mgo.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	session := s.session.Copy()
	return session.DB(s.database).C(s.collectionName()), session, nil
}

func (s *Store) collectionName() string {
	if s.collName == "" {
		return DefaultCollection
	}
	return s.collName
}

// Get fetches a document by _id.
func (s *Store) Get(ctx context.Context, id string) (*docstore.Document, error) {
	coll, session, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var doc docstore.Document
	if err := coll.FindId(id).One(&doc); err != nil {
		if errors.Is(err, mgo.ErrNotFound) {
			return nil, docstore.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return &doc, nil
}

// Index upserts doc under its _id.
func (s *Store) Index(ctx context.Context, doc *docstore.Document) error {
	coll, session, err := s.collection(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if _, err := coll.UpsertId(doc.ID, doc); err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	return nil
}

// Search runs an anchored regex on _id, which the _id index serves as a
// range scan.
func (s *Store) Search(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	coll, session, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	sel := selector(q.Prefix)

	total, err := coll.Find(sel).Count()
	if err != nil {
		return nil, fmt.Errorf("search: count: %w", err)
	}

	query := coll.Find(sel).Sort("_id").Skip(q.From).Limit(q.Size)
	if q.IDsOnly {
		query = query.Select(bson.M{"_id": 1})
	}

	var docs []docstore.Document
	if err := query.All(&docs); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	page := &docstore.Page{Total: int64(total), Hits: make([]docstore.Hit, 0, len(docs))}
	for i := range docs {
		hit := docstore.Hit{ID: docs[i].ID}
		if !q.IDsOnly {
			hit.Doc = &docs[i]
		}
		page.Hits = append(page.Hits, hit)
	}
	return page, nil
}

// Close closes the root session.
func (s *Store) Close() error {
	s.session.Close()
	return nil
}

func selector(prefix string) bson.M {
	if prefix == "" {
		return bson.M{}
	}
	return bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
}
