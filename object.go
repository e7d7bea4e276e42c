package docodb

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Object ID lengths in hex characters.
const (
	SHA1HexSize   = 40
	SHA256HexSize = 64
)

// ID is a content hash in lowercase hex.
type ID string

// ParseID validates s as a full SHA-1 or SHA-256 object ID.
func ParseID(s string) (ID, error) {
	if len(s) != SHA1HexSize && len(s) != SHA256HexSize {
		return "", fmt.Errorf("%w: %q has length %d", ErrInvalidID, s, len(s))
	}
	if !isHex(s) {
		return "", fmt.Errorf("%w: %q is not hex", ErrInvalidID, s)
	}
	return ID(strings.ToLower(s)), nil
}

func (id ID) String() string { return string(id) }

// Short returns the first n characters of id.
func (id ID) Short(n int) string {
	if n >= len(id) {
		return string(id)
	}
	return string(id[:n])
}

// normalizePrefix validates an abbreviated ID. A prefix that cannot be part
// of any ID matches nothing.
func normalizePrefix(prefix string) (string, error) {
	if prefix == "" || len(prefix) > SHA256HexSize || !isHex(prefix) {
		return "", fmt.Errorf("%w: %w: prefix %q", ErrNotFound, ErrInvalidID, prefix)
	}
	return strings.ToLower(prefix), nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// Kind is the type of a version-control object. The numeric values follow
// libgit2's git_object_t.
type Kind int

const (
	KindUnknown Kind = 0
	KindCommit  Kind = 1
	KindTree    Kind = 2
	KindBlob    Kind = 3
	KindTag     Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

func (k Kind) IsValid() bool {
	switch k {
	case KindCommit, KindTree, KindBlob, KindTag:
		return true
	default:
		return false
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "commit":
		return KindCommit, nil
	case "tree":
		return KindTree, nil
	case "blob":
		return KindBlob, nil
	case "tag":
		return KindTag, nil
	default:
		return KindUnknown, fmt.Errorf("unknown object kind %q", s)
	}
}

// Object is one immutable version-control object.
//
// Payload returned by the Backend may be shared with its cache and must not
// be modified.
type Object struct {
	ID      ID
	Kind    Kind
	Length  int64
	Payload []byte
}

func (o *Object) String() string {
	return fmt.Sprintf("Object{id: %s, kind: %s, length: %d}", o.ID, o.Kind, o.Length)
}

// ComputeID returns the git SHA-1 object ID of payload:
// sha1("<kind> <size>\0<payload>").
func ComputeID(kind Kind, payload []byte) (ID, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid object kind: %d - hash not computed", kind)
	}

	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(payload))
	h.Write(payload)
	return ID(hex.EncodeToString(h.Sum(nil))), nil
}
