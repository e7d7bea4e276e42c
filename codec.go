package docodb

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/aweris/docodb/internal/docstore"
)

// encode reads r to EOF and returns its base64 transport form. Without
// compression the payload is streamed straight into the encoder.
func (b *Backend) encode(r io.Reader) (data, encoding string, n int64, err error) {
	var sb strings.Builder

	if !b.compress {
		enc := base64.NewEncoder(base64.StdEncoding, &sb)
		n, err = io.Copy(enc, r)
		if err != nil {
			return "", "", n, fmt.Errorf("read payload: %w", err)
		}
		if err := enc.Close(); err != nil {
			return "", "", n, fmt.Errorf("encode payload: %w", err)
		}
		return sb.String(), docstore.EncodingBase64, n, nil
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", "", int64(len(raw)), fmt.Errorf("read payload: %w", err)
	}
	out, compressed := b.zstd.Compress(raw)
	encoding = docstore.EncodingBase64
	if compressed {
		encoding = docstore.EncodingZstdBase64
	}
	return base64.StdEncoding.EncodeToString(out), encoding, int64(len(raw)), nil
}

// decode returns the raw payload of doc.
func (b *Backend) decode(doc *docstore.Document) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}

	switch doc.Encoding {
	case "", docstore.EncodingBase64:
		return raw, nil
	case docstore.EncodingZstdBase64:
		return b.zstd.Decompress(raw)
	default:
		return nil, fmt.Errorf("unknown payload encoding %q", doc.Encoding)
	}
}
