// Package redisstore implements docstore.Store on Redis.
//
// Each document is a hash under "<prefix>obj:<id>". A sorted set
// "<prefix>index" holds every ID with score 0, so lexicographic range queries
// give prefix search in ID order.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aweris/docodb/internal/docstore"
)

// DefaultKeyPrefix namespaces keys when Config.KeyPrefix is empty.
const DefaultKeyPrefix = "docodb:"

// Config configures the Redis connection.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// DialTimeout bounds the initial connection check. Zero means 5s.
	DialTimeout time.Duration
}

// Store is a Redis backed docstore.Store.
type Store struct {
	client *redis.Client
	prefix string
}

var _ docstore.Store = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, prefix: cfg.KeyPrefix}, nil
}

func (s *Store) objectKey(id string) string { return s.prefix + "obj:" + id }
func (s *Store) indexKey() string          { return s.prefix + "index" }

// Get fetches a document by ID.
func (s *Store) Get(ctx context.Context, id string) (*docstore.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.objectKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, docstore.ErrNotFound
	}
	return fromHash(id, fields)
}

// Index writes the document hash and its index entry in one transaction.
func (s *Store) Index(ctx context.Context, doc *docstore.Document) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := s.objectKey(doc.ID)
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"kind", doc.Kind,
			"length", doc.Length,
			"data", doc.Data,
			"encoding", doc.Encoding,
		)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: doc.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	return nil
}

// Search pages through the index by lexicographic range.
func (s *Store) Search(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	lo, hi := lexRange(q.Prefix)

	total, err := s.client.ZLexCount(ctx, s.indexKey(), lo, hi).Result()
	if err != nil {
		return nil, fmt.Errorf("search: count: %w", err)
	}

	ids, err := s.client.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
		Min:    lo,
		Max:    hi,
		Offset: int64(q.From),
		Count:  int64(q.Size),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("search: range: %w", err)
	}

	page := &docstore.Page{Total: total, Hits: make([]docstore.Hit, 0, len(ids))}
	if q.IDsOnly || len(ids) == 0 {
		for _, id := range ids {
			page.Hits = append(page.Hits, docstore.Hit{ID: id})
		}
		return page, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.objectKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("search: fetch documents: %w", err)
	}

	for i, id := range ids {
		hit := docstore.Hit{ID: id}
		// The hash can vanish between the range and the fetch; report the ID alone.
		if fields := cmds[i].Val(); len(fields) > 0 {
			doc, err := fromHash(id, fields)
			if err != nil {
				return nil, err
			}
			hit.Doc = doc
		}
		page.Hits = append(page.Hits, hit)
	}
	return page, nil
}

// Close closes the client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// lexRange returns the ZRANGEBYLEX bounds matching every member starting
// with prefix. IDs are hex, so 0xff sorts after any continuation.
func lexRange(prefix string) (lo, hi string) {
	if prefix == "" {
		return "-", "+"
	}
	return "[" + prefix, "[" + prefix + "\xff"
}

func fromHash(id string, fields map[string]string) (*docstore.Document, error) {
	length, err := strconv.ParseInt(fields["length"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("document %s: invalid length %q", id, fields["length"])
	}
	return &docstore.Document{
		ID:       id,
		Kind:     fields["kind"],
		Length:   length,
		Data:     fields["data"],
		Encoding: fields["encoding"],
	}, nil
}
