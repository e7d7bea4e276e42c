package mirror

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aweris/docodb"
)

const (
	LayerMinSize = 2 * 1024 * 1024  // 2MB minimum before combining
	LayerSoftMax = 10 * 1024 * 1024 // 10MB soft maximum

	idLen      = docodb.SHA256HexSize // IDs are zero-padded to the longest form
	headerLen  = idLen + 1 + 8 + 8
	maxPayload = 1 << 32
)

// PrefixInfo describes the objects of one 2-character ID prefix in an image.
type PrefixInfo struct {
	Count int    `json:"count"`
	Layer string `json:"layer"`
}

// GroupByPrefix buckets objects by the first two characters of their ID.
func GroupByPrefix(objects []*docodb.Object) map[string][]*docodb.Object {
	result := make(map[string][]*docodb.Object)
	for _, obj := range objects {
		prefix := extractPrefix(obj.ID)
		result[prefix] = append(result[prefix], obj)
	}
	return result
}

func extractPrefix(id docodb.ID) string {
	if len(id) >= 2 {
		return string(id[:2])
	}
	return "00"
}

// PrefixSize returns the packed size of objects.
func PrefixSize(objects []*docodb.Object) int64 {
	var total int64
	for _, obj := range objects {
		total += headerLen + int64(len(obj.Payload))
	}
	return total
}

// PackLayer packs objects sorted by ID into the layer format:
// [id 64B][kind 1B][declared length 8B][payload size 8B][payload]...
// The declared length is carried as stored, even when it differs from the
// payload size.
func PackLayer(objects []*docodb.Object) []byte {
	sorted := make([]*docodb.Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var buf bytes.Buffer
	buf.Grow(int(PrefixSize(sorted)))
	header := make([]byte, headerLen)

	for _, obj := range sorted {
		clear(header)
		copy(header[:idLen], obj.ID)
		header[idLen] = byte(obj.Kind)
		binary.BigEndian.PutUint64(header[idLen+1:], uint64(obj.Length))
		binary.BigEndian.PutUint64(header[idLen+9:], uint64(len(obj.Payload)))

		buf.Write(header)
		buf.Write(obj.Payload)
	}
	return buf.Bytes()
}

// UnpackLayer reads objects packed by PackLayer from r.
func UnpackLayer(r io.Reader) ([]*docodb.Object, error) {
	br := bufio.NewReader(r)
	header := make([]byte, headerLen)

	var objects []*docodb.Object
	for {
		if _, err := io.ReadFull(br, header); err != nil {
			if errors.Is(err, io.EOF) {
				return objects, nil
			}
			return nil, fmt.Errorf("read header: %w", err)
		}

		id, err := docodb.ParseID(strings.TrimRight(string(header[:idLen]), "\x00"))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", len(objects), err)
		}
		kind := docodb.Kind(header[idLen])
		if !kind.IsValid() {
			return nil, fmt.Errorf("entry %s: invalid object kind %d", id, kind)
		}

		length := int64(binary.BigEndian.Uint64(header[idLen+1:]))
		if length < 0 {
			return nil, fmt.Errorf("entry %s: negative length %d", id, length)
		}
		size := binary.BigEndian.Uint64(header[idLen+9:])
		if size > maxPayload {
			return nil, fmt.Errorf("entry %s: implausible payload size %d", id, size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, fmt.Errorf("entry %s: read payload: %w", id, err)
		}

		objects = append(objects, &docodb.Object{ID: id, Kind: kind, Length: length, Payload: payload})
	}
}

// BuildLayerPlan groups prefixes, in order, into layers of roughly
// LayerSoftMax bytes. A layer under LayerMinSize may grow up to twice the
// soft maximum before a new one is started.
func BuildLayerPlan(prefixSizes map[string]int64) [][]string {
	prefixes := make([]string, 0, len(prefixSizes))
	for p := range prefixSizes {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var layers [][]string
	var current []string
	var size int64

	for _, prefix := range prefixes {
		prefixSize := prefixSizes[prefix]

		if len(current) == 0 {
			current = append(current, prefix)
			size = prefixSize
			continue
		}

		newSize := size + prefixSize
		switch {
		case newSize <= LayerSoftMax, size < LayerMinSize && newSize <= 2*LayerSoftMax:
			current = append(current, prefix)
			size = newSize
		default:
			layers = append(layers, current)
			current = []string{prefix}
			size = prefixSize
		}
	}

	if len(current) > 0 {
		layers = append(layers, current)
	}
	return layers
}

// CalculatePrefixSizes returns the packed size of every prefix group.
func CalculatePrefixSizes(byPrefix map[string][]*docodb.Object) map[string]int64 {
	result := make(map[string]int64, len(byPrefix))
	for prefix, objects := range byPrefix {
		result[prefix] = PrefixSize(objects)
	}
	return result
}

func encodePrefixes(prefixes map[string]PrefixInfo) (string, error) {
	b, err := json.Marshal(prefixes)
	return string(b), err
}

func decodePrefixes(s string) (map[string]PrefixInfo, error) {
	prefixes := make(map[string]PrefixInfo)
	if s == "" {
		return prefixes, nil
	}
	if err := json.Unmarshal([]byte(s), &prefixes); err != nil {
		return nil, fmt.Errorf("parse %s label: %w", labelPrefixes, err)
	}
	return prefixes, nil
}
