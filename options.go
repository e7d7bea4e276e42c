package docodb

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultPageSize is the number of IDs fetched per round-trip by ForEach.
const DefaultPageSize = 10

// Options configures a Backend.
type Options struct {
	Cache            bool
	CompressionLevel int
	PageSize         int
	LenientReads     bool
	Logger           *slog.Logger
	Registerer       prometheus.Registerer
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		PageSize: DefaultPageSize,
		Logger:   slog.Default(),
	}
}

// WithCache keeps every object read or written in memory for the lifetime of
// the Backend.
func WithCache(enabled bool) Option {
	return func(o *Options) { o.Cache = enabled }
}

// WithCompression stores payloads zstd-compressed at the given level (1-3).
// Zero disables compression.
func WithCompression(level int) Option {
	return func(o *Options) { o.CompressionLevel = level }
}

// WithPageSize sets the page size used to enumerate the store.
func WithPageSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.PageSize = n
		}
	}
}

// WithLenientReads reports document store failures on the read path as
// ErrNotFound instead of ErrUnavailable.
func WithLenientReads(enabled bool) Option {
	return func(o *Options) { o.LenientReads = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithMetrics registers the Backend's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Options) { o.Registerer = reg }
}
