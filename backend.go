package docodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aweris/docodb/internal/cache"
	"github.com/aweris/docodb/internal/compression"
	"github.com/aweris/docodb/internal/docstore"
)

const (
	// prefixProbeSize is the number of hits requested when resolving a prefix:
	// enough to tell none, one and many apart.
	prefixProbeSize = 2

	// maxTeeCapacity bounds the buffer preallocated for caching a written
	// payload. The declared length is not trusted for sizing.
	maxTeeCapacity = 1 << 20
)

// Capability is a set of operations a Backend implements.
type Capability uint

const (
	CapRead Capability = 1 << iota
	CapReadHeader
	CapReadPrefix
	CapWrite
	CapWriteStream
	CapReadStream
	CapExists
	CapForEach
)

var capabilityNames = []string{"read", "read-header", "read-prefix", "write", "write-stream", "read-stream", "exists", "for-each"}

// Has reports whether c includes every operation in op.
func (c Capability) Has(op Capability) bool { return c&op == op }

func (c Capability) String() string {
	var names []string
	for i, name := range capabilityNames {
		if c&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Backend is an object database backend persisting objects in a remote
// document store. It is safe for concurrent use.
type Backend struct {
	store    docstore.Store
	cache    *cache.Map[*Object] // nil when caching is disabled
	zstd     *compression.Compressor
	compress bool
	pageSize int
	lenient  bool
	logger   *slog.Logger
	metrics  *backendMetrics
}

// New creates a Backend on top of store.
func New(store DocumentStore, opts ...Option) (*Backend, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	level := options.CompressionLevel
	z, err := compression.NewCompressor(level)
	if err != nil {
		return nil, err
	}

	metrics, err := newBackendMetrics(options.Registerer)
	if err != nil {
		z.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	b := &Backend{
		store:    store,
		zstd:     z,
		compress: level > 0,
		pageSize: options.PageSize,
		lenient:  options.LenientReads,
		logger:   options.Logger,
		metrics:  metrics,
	}
	if options.Cache {
		b.cache = cache.New[*Object]()
	}
	return b, nil
}

// Capabilities returns the operations advertised to the host object
// database. ReadHeader and OpenWriteStream are available as methods but are
// not advertised, so the host falls back to full reads and whole writes.
func (b *Backend) Capabilities() Capability {
	return CapRead | CapReadPrefix | CapWrite | CapExists | CapForEach
}

// Close releases the compressor and the document store connection.
func (b *Backend) Close() error {
	b.zstd.Close()
	return b.store.Close()
}

// Exists reports whether id is stored. Document store failures are logged and
// reported as absent.
func (b *Backend) Exists(ctx context.Context, id ID) bool {
	defer b.metrics.observe("exists", nil)

	if b.cache != nil {
		hit := b.cache.Has(string(id))
		b.metrics.cacheLookup(hit)
		if hit {
			return true
		}
	}

	doc, err := b.get(ctx, id)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			b.logger.Warn("exists check failed", "id", id, "error", err)
		}
		return false
	}

	if b.cache != nil {
		if obj, err := b.toObject(id, doc); err == nil {
			b.cache.Add(string(id), obj)
		}
	}
	return true
}

// Read returns the object stored under id.
func (b *Backend) Read(ctx context.Context, id ID) (obj *Object, err error) {
	defer func() { b.metrics.observe("read", err) }()

	if obj, ok := b.cached(id); ok && obj.Payload != nil {
		return obj, nil
	}

	doc, err := b.get(ctx, id)
	if err != nil {
		return nil, b.readError(id, err)
	}

	obj, err = b.toObject(id, doc)
	if err != nil {
		return nil, err
	}
	b.remember(obj)
	return obj, nil
}

// ReadHeader returns the kind and length of the object stored under id
// without decoding its payload.
func (b *Backend) ReadHeader(ctx context.Context, id ID) (kind Kind, length int64, err error) {
	defer func() { b.metrics.observe("read_header", err) }()

	if obj, ok := b.cached(id); ok {
		return obj.Kind, obj.Length, nil
	}

	doc, err := b.get(ctx, id)
	if err != nil {
		return KindUnknown, 0, b.readError(id, err)
	}

	kind, err = ParseKind(doc.Kind)
	if err != nil {
		return KindUnknown, 0, fmt.Errorf("object %s: %w", id, err)
	}
	return kind, doc.Length, nil
}

// ReadByPrefix returns the single object whose ID starts with prefix. It
// fails with ErrNotFound when no ID matches and ErrAmbiguous when several do.
func (b *Backend) ReadByPrefix(ctx context.Context, prefix string) (obj *Object, err error) {
	prefix, err = normalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	if len(prefix) == SHA256HexSize {
		return b.Read(ctx, ID(prefix))
	}
	// A full SHA-1 ID can also abbreviate a SHA-256 one.
	if len(prefix) == SHA1HexSize {
		obj, err := b.Read(ctx, ID(prefix))
		if !errors.Is(err, ErrNotFound) {
			return obj, err
		}
	}

	defer func() { b.metrics.observe("read_prefix", err) }()

	var hits []docstore.Hit
	start := time.Now()
	err = docstore.Scan(ctx, b.store, docstore.Query{Prefix: prefix, Size: prefixProbeSize}, prefixProbeSize, func(h docstore.Hit) error {
		hits = append(hits, h)
		return nil
	})
	b.metrics.since("search", start)
	if err != nil {
		return nil, b.readError(ID(prefix), err)
	}

	switch len(hits) {
	case 0:
		return nil, fmt.Errorf("%w: prefix %s", ErrNotFound, prefix)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s matches %s and %s", ErrAmbiguous, prefix, hits[0].ID, hits[1].ID)
	}

	id, err := ParseID(hits[0].ID)
	if err != nil {
		return nil, fmt.Errorf("document for prefix %s: %w", prefix, err)
	}

	doc := hits[0].Doc
	if doc == nil {
		if doc, err = b.get(ctx, id); err != nil {
			return nil, b.readError(id, err)
		}
	}

	obj, err = b.toObject(id, doc)
	if err != nil {
		return nil, err
	}
	b.remember(obj)
	return obj, nil
}

// ReadStream is not supported: objects are always read whole.
func (b *Backend) ReadStream(ctx context.Context, id ID) (io.ReadCloser, error) {
	return nil, ErrUnsupported
}

// Write stores obj, replacing any object already stored under obj.ID. Callers
// are expected to check Exists first; the ID is trusted to be the hash of the
// payload and obj.Length is stored as given.
func (b *Backend) Write(ctx context.Context, obj *Object) error {
	return b.WriteFrom(ctx, obj.ID, obj.Kind, obj.Length, bytes.NewReader(obj.Payload))
}

// WriteFrom stores the payload read from r until EOF under id.
func (b *Backend) WriteFrom(ctx context.Context, id ID, kind Kind, length int64, r io.Reader) (err error) {
	defer func() { b.metrics.observe("write", err) }()

	if !kind.IsValid() {
		return fmt.Errorf("write %s: invalid object kind %d", id, kind)
	}
	if length < 0 {
		return fmt.Errorf("write %s: negative length %d", id, length)
	}

	var payload *bytes.Buffer
	if b.cache != nil {
		payload = bytes.NewBuffer(make([]byte, 0, min(length, maxTeeCapacity)))
		r = io.TeeReader(r, payload)
	}

	data, encoding, n, err := b.encode(r)
	if err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	if n != length {
		b.logger.Warn("payload length differs from declared length", "id", id, "declared", length, "read", n)
	}

	doc := &docstore.Document{
		ID:       string(id),
		Kind:     kind.String(),
		Length:   length,
		Data:     data,
		Encoding: encoding,
	}

	start := time.Now()
	err = b.store.Index(ctx, doc)
	b.metrics.since("index", start)
	if err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}

	b.logger.Debug("object written", "id", id, "kind", kind, "length", length, "encoding", encoding)

	if payload != nil {
		b.remember(&Object{ID: id, Kind: kind, Length: length, Payload: payload.Bytes()})
	}
	return nil
}

// ForEach calls fn with the ID of every stored object, in the order the
// document store returns them. Returning ErrStop from fn ends the iteration
// with a nil error; any other error ends it with an error wrapping both
// ErrUserAborted and fn's error.
//
// Objects written while the iteration is running may or may not be visited.
func (b *Backend) ForEach(ctx context.Context, fn func(ID) error) (err error) {
	defer func() { b.metrics.observe("for_each", err) }()

	q := docstore.Query{Size: b.pageSize, IDsOnly: true}
	err = docstore.Scan(ctx, b.store, q, 0, func(h docstore.Hit) error {
		id, err := ParseID(h.ID)
		if err != nil {
			b.logger.Warn("skipping document with invalid id", "id", h.ID)
			return nil
		}
		if err := fn(id); err != nil {
			return &visitError{err: err}
		}
		return nil
	})

	var ve *visitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve):
		if errors.Is(ve.err, ErrStop) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrUserAborted, ve.err)
	case b.lenient:
		b.logger.Warn("enumeration ended early", "error", err)
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// visitError carries a ForEach callback error through docstore.Scan.
type visitError struct{ err error }

func (e *visitError) Error() string { return e.err.Error() }

func (b *Backend) get(ctx context.Context, id ID) (*docstore.Document, error) {
	start := time.Now()
	defer b.metrics.since("get", start)
	return b.store.Get(ctx, string(id))
}

// readError maps a document store error on the read path.
func (b *Backend) readError(id ID, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if b.lenient {
		b.logger.Warn("document store read failed, reporting not found", "id", id, "error", err)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: read %s: %w", ErrUnavailable, id, err)
}

func (b *Backend) toObject(id ID, doc *docstore.Document) (*Object, error) {
	kind, err := ParseKind(doc.Kind)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}
	payload, err := b.decode(doc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &Object{ID: id, Kind: kind, Length: doc.Length, Payload: payload}, nil
}

func (b *Backend) cached(id ID) (*Object, bool) {
	if b.cache == nil {
		return nil, false
	}
	obj, ok := b.cache.Get(string(id))
	b.metrics.cacheLookup(ok)
	if ok {
		b.logger.Debug("cache hit", "id", id)
	}
	return obj, ok
}

func (b *Backend) remember(obj *Object) {
	if b.cache == nil || obj.Payload == nil {
		return
	}
	b.cache.Add(string(obj.ID), obj)
}
