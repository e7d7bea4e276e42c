package docodb

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/docodb/internal/docstore/memstore"
	"github.com/aweris/docodb/internal/testutils"
)

func TestBackend_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	b, _ := newTestBackend(t, WithCache(true), WithMetrics(reg))
	ctx := context.Background()

	obj := writeObject(t, b, KindBlob, []byte("metered"))
	_, err := b.Read(ctx, obj.ID)
	require.NoError(t, err)
	_, err = b.Read(ctx, ID(testutils.RandomHash()))
	require.Error(t, err)

	m := b.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("write", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("read", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("read", "not found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
}

// TestBackend_MetricsSharedRegistry verifies two backends can report into
// the same registry.
func TestBackend_MetricsSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := New(memstore.New(), WithMetrics(reg))
	require.NoError(t, err)
	second, err := New(memstore.New(), WithMetrics(reg))
	require.NoError(t, err)

	writeObject(t, first, KindBlob, []byte("a"))
	writeObject(t, second, KindBlob, []byte("b"))

	assert.Equal(t, 2.0, testutil.ToFloat64(second.metrics.operations.WithLabelValues("write", "ok")))
}

func TestBackend_NoMetrics(t *testing.T) {
	b, _ := newTestBackend(t)
	assert.Nil(t, b.metrics)

	obj := writeObject(t, b, KindBlob, []byte("unmetered"))
	assert.True(t, b.Exists(context.Background(), obj.ID))
}
