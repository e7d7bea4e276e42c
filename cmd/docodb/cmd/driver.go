package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/aweris/docodb"
	"github.com/aweris/docodb/internal/docstore"
	"github.com/aweris/docodb/internal/docstore/elastic"
	"github.com/aweris/docodb/internal/docstore/filestore"
	"github.com/aweris/docodb/internal/docstore/memstore"
	"github.com/aweris/docodb/internal/docstore/mongostore"
	"github.com/aweris/docodb/internal/docstore/redisstore"
)

// memory is shared by every command run in the process.
var memory = sync.OnceValue(memstore.New)

func openStore() (docstore.Store, error) {
	driver := viper.GetString("driver")
	url := viper.GetString("url")
	index := viper.GetString("index")

	switch driver {
	case "elastic", "elasticsearch":
		if url == "" {
			url = "http://localhost:9200"
		}
		return elastic.New(elastic.Config{
			Addresses: strings.Split(url, ","),
			Index:     index,
			Username:  viper.GetString("username"),
			Password:  viper.GetString("password"),
		})

	case "redis":
		if url == "" {
			url = "redis://localhost:6379/0"
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redisstore.New(redisstore.Config{
			Addr:      opts.Addr,
			Password:  opts.Password,
			DB:        opts.DB,
			KeyPrefix: index,
		})

	case "mongo", "mongodb":
		if url == "" {
			url = "mongodb://localhost:27017"
		}
		return mongostore.New(mongostore.Config{URL: url, Collection: index})

	case "file":
		if url == "" {
			url = ".docodb"
		}
		return filestore.New(url)

	case "memory":
		return memory(), nil

	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// openBackend opens the configured store and wraps it in a Backend.
func openBackend() (*docodb.Backend, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	b, err := docodb.New(store,
		docodb.WithCache(viper.GetBool("cache")),
		docodb.WithCompression(viper.GetInt("compress")),
		docodb.WithPageSize(viper.GetInt("page_size")),
		docodb.WithLenientReads(viper.GetBool("lenient_reads")),
		docodb.WithLogger(logger),
		docodb.WithMetrics(registry),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	return b, nil
}

// resolveID parses a full ID or resolves an abbreviated one.
func resolveID(ctx context.Context, b *docodb.Backend, s string) (docodb.ID, error) {
	if id, err := docodb.ParseID(s); err == nil {
		return id, nil
	}
	obj, err := b.ReadByPrefix(ctx, s)
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}
