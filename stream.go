package docodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

type streamState int

const (
	accumulating streamState = iota
	finalized
	abandoned
)

// WriteStream accumulates the chunks of one object whose total length is
// known up front and persists them as a single document on Finalize.
//
// A WriteStream is not safe for concurrent use.
type WriteStream struct {
	backend  *Backend
	kind     Kind
	length   int64
	chunks   [][]byte
	received int64
	state    streamState
}

// OpenWriteStream starts a chunked write of an object of the given kind and
// total length.
func (b *Backend) OpenWriteStream(kind Kind, length int64) (*WriteStream, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("open write stream: invalid object kind %d", kind)
	}
	if length < 0 {
		return nil, fmt.Errorf("open write stream: negative length %d", length)
	}
	return &WriteStream{backend: b, kind: kind, length: length}, nil
}

// Append reads exactly n bytes from r as the next chunk. A short read, or a
// chunk that would take the object past its declared length, abandons the
// stream.
func (w *WriteStream) Append(r io.Reader, n int64) error {
	if w.state != accumulating {
		return ErrStreamClosed
	}
	if n < 0 {
		return fmt.Errorf("append: negative chunk size %d", n)
	}
	if w.received+n > w.length {
		w.abandon()
		return fmt.Errorf("%w: chunk of %d bytes exceeds declared length %d (%d received)", ErrSizeMismatch, n, w.length, w.received)
	}

	chunk := make([]byte, n)
	read, err := io.ReadFull(r, chunk)
	if err != nil {
		w.abandon()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %d bytes were expected, %d have been read", ErrShortChunk, n, read)
		}
		return fmt.Errorf("append: %w", err)
	}

	w.chunks = append(w.chunks, chunk)
	w.received += n
	return nil
}

// Write appends a copy of p as the next chunk.
func (w *WriteStream) Write(p []byte) (int, error) {
	if err := w.Append(bytes.NewReader(p), int64(len(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Received returns the number of bytes accumulated so far.
func (w *WriteStream) Received() int64 { return w.received }

// Finalize persists the accumulated chunks under id. It fails with
// ErrSizeMismatch, persisting nothing, unless the chunks add up to exactly the
// declared length. The stream is closed afterwards whatever the outcome.
func (w *WriteStream) Finalize(ctx context.Context, id ID) error {
	if w.state != accumulating {
		return ErrStreamClosed
	}

	var total int64
	for _, chunk := range w.chunks {
		total += int64(len(chunk))
	}
	if total != w.length {
		w.abandon()
		return fmt.Errorf("%w: %d was expected, the received chunks amount to %d", ErrSizeMismatch, w.length, total)
	}

	readers := make([]io.Reader, len(w.chunks))
	for i, chunk := range w.chunks {
		readers[i] = bytes.NewReader(chunk)
	}

	err := w.backend.WriteFrom(ctx, id, w.kind, w.length, io.MultiReader(readers...))
	w.chunks = nil
	if err != nil {
		w.state = abandoned
		return err
	}
	w.state = finalized
	return nil
}

// Abort discards the accumulated chunks.
func (w *WriteStream) Abort() {
	if w.state == accumulating {
		w.abandon()
	}
}

func (w *WriteStream) abandon() {
	w.chunks = nil
	w.state = abandoned
}
