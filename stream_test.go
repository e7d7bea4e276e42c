package docodb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/docodb/internal/testutils"
)

// TestWriteStream_Finalize verifies chunks are reassembled in order and the
// result is readable byte for byte.
func TestWriteStream_Finalize(t *testing.T) {
	cacheModes(t, func(t *testing.T, cached bool) {
		b, _ := newTestBackend(t, WithCache(cached))
		ctx := context.Background()

		payload := testutils.RandomPayload(10_000)
		id, err := ComputeID(KindBlob, payload)
		require.NoError(t, err)

		w, err := b.OpenWriteStream(KindBlob, int64(len(payload)))
		require.NoError(t, err)

		// Variable-size chunks, the last one short.
		for off, size := 0, 1; off < len(payload); size *= 3 {
			end := min(off+size, len(payload))
			require.NoError(t, w.Append(bytes.NewReader(payload[off:end]), int64(end-off)))
			off = end
		}
		assert.Equal(t, int64(len(payload)), w.Received())

		require.NoError(t, w.Finalize(ctx, id))

		got, err := b.Read(ctx, id)
		require.NoError(t, err)
		assertObjectEqual(t, &Object{ID: id, Kind: KindBlob, Length: int64(len(payload)), Payload: payload}, got)
	})
}

// TestWriteStream_SizeMismatch covers a stream declaring 10 bytes that only
// receives 8.
func TestWriteStream_SizeMismatch(t *testing.T) {
	b, store := newTestBackend(t)
	ctx := context.Background()
	id := ID(testutils.RandomHash())

	w, err := b.OpenWriteStream(KindBlob, 10)
	require.NoError(t, err)
	require.NoError(t, w.Append(strings.NewReader("abcd"), 4))
	require.NoError(t, w.Append(strings.NewReader("efgh"), 4))

	err = w.Finalize(ctx, id)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	assert.False(t, b.Exists(ctx, id))
	assert.Zero(t, store.Len())

	assert.ErrorIs(t, w.Finalize(ctx, id), ErrStreamClosed)
}

func TestWriteStream_ChunkPastDeclaredLength(t *testing.T) {
	b, store := newTestBackend(t)

	w, err := b.OpenWriteStream(KindBlob, 5)
	require.NoError(t, err)
	require.NoError(t, w.Append(strings.NewReader("abc"), 3))

	err = w.Append(strings.NewReader("def"), 3)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	assert.ErrorIs(t, w.Append(strings.NewReader("d"), 1), ErrStreamClosed)
	assert.ErrorIs(t, w.Finalize(context.Background(), ID(testutils.RandomHash())), ErrStreamClosed)
	assert.Zero(t, store.Len())
}

// TestWriteStream_ShortChunk verifies a source that ends before the declared
// chunk size abandons the stream.
func TestWriteStream_ShortChunk(t *testing.T) {
	b, store := newTestBackend(t)

	w, err := b.OpenWriteStream(KindBlob, 8)
	require.NoError(t, err)

	err = w.Append(strings.NewReader("abc"), 8)
	assert.ErrorIs(t, err, ErrShortChunk)
	assert.ErrorContains(t, err, "8 bytes were expected, 3 have been read")

	assert.ErrorIs(t, w.Finalize(context.Background(), ID(testutils.RandomHash())), ErrStreamClosed)
	assert.Zero(t, store.Len())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("socket closed") }

func TestWriteStream_ReadError(t *testing.T) {
	b, _ := newTestBackend(t)

	w, err := b.OpenWriteStream(KindBlob, 4)
	require.NoError(t, err)

	err = w.Append(failingReader{}, 4)
	assert.ErrorContains(t, err, "socket closed")
	assert.NotErrorIs(t, err, ErrShortChunk)
	assert.ErrorIs(t, w.Append(strings.NewReader("abcd"), 4), ErrStreamClosed)
}

func TestWriteStream_AppendAfterFinalize(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	w, err := b.OpenWriteStream(KindCommit, 3)
	require.NoError(t, err)
	_, err = io.WriteString(w, "abc")
	require.NoError(t, err)

	id := ID(testutils.RandomHash())
	require.NoError(t, w.Finalize(ctx, id))

	assert.ErrorIs(t, w.Append(strings.NewReader("d"), 1), ErrStreamClosed)
	assert.ErrorIs(t, w.Finalize(ctx, id), ErrStreamClosed)

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestWriteStream_EmptyObject(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	id, err := ComputeID(KindBlob, nil)
	require.NoError(t, err)

	w, err := b.OpenWriteStream(KindBlob, 0)
	require.NoError(t, err)
	require.NoError(t, w.Finalize(ctx, id))

	got, err := b.Read(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
	assert.Zero(t, got.Length)
}

func TestWriteStream_Abort(t *testing.T) {
	b, store := newTestBackend(t)

	w, err := b.OpenWriteStream(KindBlob, 2)
	require.NoError(t, err)
	require.NoError(t, w.Append(strings.NewReader("ab"), 2))

	w.Abort()

	assert.ErrorIs(t, w.Finalize(context.Background(), ID(testutils.RandomHash())), ErrStreamClosed)
	assert.Zero(t, store.Len())
}

func TestWriteStream_StoreFailure(t *testing.T) {
	b, err := New(brokenStore{})
	require.NoError(t, err)

	w, err := b.OpenWriteStream(KindBlob, 1)
	require.NoError(t, err)
	require.NoError(t, w.Append(strings.NewReader("a"), 1))

	err = w.Finalize(context.Background(), ID(testutils.RandomHash()))
	assert.ErrorIs(t, err, errConnRefused)
	assert.ErrorIs(t, w.Finalize(context.Background(), ID(testutils.RandomHash())), ErrStreamClosed)
}

func TestOpenWriteStream_Invalid(t *testing.T) {
	b, _ := newTestBackend(t)

	_, err := b.OpenWriteStream(KindUnknown, 1)
	assert.Error(t, err)

	_, err = b.OpenWriteStream(KindBlob, -1)
	assert.Error(t, err)
}
