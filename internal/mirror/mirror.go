// Package mirror copies the whole object set of a Backend to and from an OCI
// registry image.
//
// Objects are grouped by the first two characters of their ID and packed
// into zstd layers of a few megabytes each. The image config carries the
// object count and the prefix to layer mapping as labels.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/docodb"
)

const (
	DefaultConcurrency = 4

	labelCount    = "dev.docodb.count"
	labelPrefixes = "dev.docodb.prefixes"

	maxAttempts = 3
)

// Backend is the subset of *docodb.Backend a mirror reads from and writes to.
type Backend interface {
	ForEach(ctx context.Context, fn func(docodb.ID) error) error
	Read(ctx context.Context, id docodb.ID) (*docodb.Object, error)
	Exists(ctx context.Context, id docodb.ID) bool
	Write(ctx context.Context, obj *docodb.Object) error
}

// Stats summarizes an export or import.
type Stats struct {
	Objects int // objects exported, or written on import
	Skipped int // objects already present on import
	Layers  int
}

// Mirror exports to and imports from one image reference.
type Mirror struct {
	ref         name.Reference
	creds       Credentials
	concurrency int
	logger      *slog.Logger
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithConcurrency bounds parallel object reads, writes and layer transfers.
func WithConcurrency(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithCredentials sets static registry credentials.
func WithCredentials(c Credentials) Option {
	return func(m *Mirror) { m.creds = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Mirror for an image reference such as
// "ghcr.io/acme/objects:nightly". Plain HTTP is allowed when insecure is set.
func New(imageRef string, insecure bool, opts ...Option) (*Mirror, error) {
	nameOpts := []name.Option{name.WithDefaultTag("latest")}
	if insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	ref, err := name.ParseReference(imageRef, nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}

	m := &Mirror{ref: ref, concurrency: DefaultConcurrency, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Mirror) String() string { return m.ref.String() }

// Export reads every object of b and pushes them as one image.
func (m *Mirror) Export(ctx context.Context, b Backend) (Stats, error) {
	var ids []docodb.ID
	if err := b.ForEach(ctx, func(id docodb.ID) error {
		ids = append(ids, id)
		return nil
	}); err != nil {
		return Stats{}, fmt.Errorf("list objects: %w", err)
	}

	p := pool.NewWithResults[*docodb.Object]().WithMaxGoroutines(m.concurrency).WithContext(ctx).WithCancelOnError()
	for _, id := range ids {
		p.Go(func(ctx context.Context) (*docodb.Object, error) {
			obj, err := b.Read(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", id, err)
			}
			return obj, nil
		})
	}
	objects, err := p.Wait()
	if err != nil {
		return Stats{}, err
	}

	byPrefix := GroupByPrefix(objects)
	plan := BuildLayerPlan(CalculatePrefixSizes(byPrefix))
	m.logger.Info("exporting objects", "ref", m.ref, "objects", len(objects), "prefixes", len(byPrefix), "layers", len(plan))

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return Stats{}, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()

	prefixes := make(map[string]PrefixInfo, len(byPrefix))
	layers := make([]v1.Layer, 0, len(plan))
	var totalRaw, totalCompressed int64
	for _, group := range plan {
		var packed []*docodb.Object
		for _, prefix := range group {
			packed = append(packed, byPrefix[prefix]...)
		}
		layer := newObjectLayer(enc, PackLayer(packed))
		digest, err := layer.Digest()
		if err != nil {
			return Stats{}, err
		}
		totalRaw += int64(len(layer.uncompressed))
		totalCompressed += int64(len(layer.compressed))

		layers = append(layers, layer)
		for _, prefix := range group {
			prefixes[prefix] = PrefixInfo{Count: len(byPrefix[prefix]), Layer: digest.String()}
		}
	}

	img, err := buildImage(layers, len(objects), prefixes)
	if err != nil {
		return Stats{}, fmt.Errorf("build image: %w", err)
	}

	opts := append(m.remoteOptions(ctx), remote.WithJobs(m.concurrency))
	if _, err := retry(ctx, maxAttempts, func() (struct{}, error) {
		return struct{}{}, remote.Write(m.ref, img, opts...)
	}); err != nil {
		return Stats{}, fmt.Errorf("push image: %w", err)
	}

	m.logger.Info("export done", "ref", m.ref, "raw_bytes", totalRaw, "compressed_bytes", totalCompressed)
	return Stats{Objects: len(objects), Layers: len(layers)}, nil
}

// Import pulls the image and writes every object b does not already hold.
func (m *Mirror) Import(ctx context.Context, b Backend) (Stats, error) {
	img, err := retry(ctx, maxAttempts, func() (v1.Image, error) {
		return remote.Image(m.ref, m.remoteOptions(ctx)...)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return Stats{}, fmt.Errorf("get config: %w", err)
	}
	if _, ok := cfg.Config.Labels[labelCount]; !ok {
		return Stats{}, fmt.Errorf("%s is not an object mirror: missing %s label", m.ref, labelCount)
	}
	prefixes, err := decodePrefixes(cfg.Config.Labels[labelPrefixes])
	if err != nil {
		return Stats{}, err
	}

	layers, err := img.Layers()
	if err != nil {
		return Stats{}, fmt.Errorf("get layers: %w", err)
	}
	m.logger.Info("importing objects", "ref", m.ref, "layers", len(layers), "prefixes", len(prefixes))

	var written, skipped atomic.Int64
	p := pool.New().WithMaxGoroutines(m.concurrency).WithContext(ctx).WithCancelOnError()
	for _, layer := range layers {
		p.Go(func(ctx context.Context) error {
			rc, err := layer.Uncompressed()
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}
			objects, err := UnpackLayer(rc)
			if cerr := rc.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("unpack layer: %w", err)
			}

			for _, obj := range objects {
				if b.Exists(ctx, obj.ID) {
					skipped.Add(1)
					continue
				}
				if err := b.Write(ctx, obj); err != nil {
					return fmt.Errorf("write %s: %w", obj.ID, err)
				}
				written.Add(1)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Stats{}, err
	}

	stats := Stats{Objects: int(written.Load()), Skipped: int(skipped.Load()), Layers: len(layers)}
	m.logger.Info("import done", "ref", m.ref, "written", stats.Objects, "skipped", stats.Skipped)
	return stats, nil
}

func (m *Mirror) remoteOptions(ctx context.Context) []remote.Option {
	return []remote.Option{remote.WithContext(ctx), m.creds.option()}
}

func buildImage(layers []v1.Layer, count int, prefixes map[string]PrefixInfo) (v1.Image, error) {
	img := empty.Image
	if len(layers) > 0 {
		var err error
		if img, err = mutate.AppendLayers(img, layers...); err != nil {
			return nil, err
		}
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	prefixJSON, err := encodePrefixes(prefixes)
	if err != nil {
		return nil, err
	}
	cfg = cfg.DeepCopy()
	cfg.Config.Labels = map[string]string{
		labelCount:    strconv.Itoa(count),
		labelPrefixes: prefixJSON,
	}
	return mutate.ConfigFile(img, cfg)
}

// objectLayer is a v1.Layer holding packed objects, zstd compressed.
type objectLayer struct {
	compressed   []byte
	uncompressed []byte
}

func newObjectLayer(enc *zstd.Encoder, data []byte) *objectLayer {
	return &objectLayer{
		compressed:   enc.EncodeAll(data, nil),
		uncompressed: data,
	}
}

func (l *objectLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *objectLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *objectLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}

func (l *objectLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}

func (l *objectLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *objectLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// retry runs fn up to maxAttempts times with exponential backoff from 500ms.
func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
