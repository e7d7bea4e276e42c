package mirror

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/docodb"
)

func testObject(t *testing.T, kind docodb.Kind, payload string) *docodb.Object {
	t.Helper()

	id, err := docodb.ComputeID(kind, []byte(payload))
	require.NoError(t, err)
	return &docodb.Object{ID: id, Kind: kind, Length: int64(len(payload)), Payload: []byte(payload)}
}

func TestPackUnpackLayer(t *testing.T) {
	objects := []*docodb.Object{
		testObject(t, docodb.KindBlob, "hello\n"),
		testObject(t, docodb.KindTree, ""),
		testObject(t, docodb.KindCommit, strings.Repeat("x", 4096)),
		{ID: docodb.ID(strings.Repeat("ab", 32)), Kind: docodb.KindTag, Length: 3, Payload: []byte("tag")},
	}

	data := PackLayer(objects)
	assert.Equal(t, PrefixSize(objects), int64(len(data)))

	got, err := UnpackLayer(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, got, len(objects))

	byID := make(map[docodb.ID]*docodb.Object)
	for _, obj := range got {
		byID[obj.ID] = obj
	}
	for _, want := range objects {
		obj, ok := byID[want.ID]
		require.True(t, ok, "missing %s", want.ID)
		assert.Equal(t, want.Kind, obj.Kind)
		assert.Equal(t, want.Length, obj.Length)
		assert.Equal(t, string(want.Payload), string(obj.Payload))
	}

	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].ID, got[i].ID)
	}
}

// TestPackLayer_KeepsDeclaredLength verifies a declared length that differs
// from the payload size survives packing.
func TestPackLayer_KeepsDeclaredLength(t *testing.T) {
	obj := &docodb.Object{ID: docodb.ID(strings.Repeat("cd", 20)), Kind: docodb.KindBlob, Length: 99, Payload: []byte("short")}

	got, err := UnpackLayer(bytes.NewReader(PackLayer([]*docodb.Object{obj})))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(99), got[0].Length)
	assert.Equal(t, []byte("short"), got[0].Payload)
}

func TestUnpackLayer_Empty(t *testing.T) {
	got, err := UnpackLayer(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnpackLayer_Truncated(t *testing.T) {
	data := PackLayer([]*docodb.Object{testObject(t, docodb.KindBlob, "truncated payload")})

	_, err := UnpackLayer(bytes.NewReader(data[:len(data)-3]))
	assert.ErrorContains(t, err, "read payload")

	_, err = UnpackLayer(bytes.NewReader(data[:10]))
	assert.ErrorContains(t, err, "read header")
}

func TestUnpackLayer_InvalidKind(t *testing.T) {
	data := PackLayer([]*docodb.Object{testObject(t, docodb.KindBlob, "x")})
	data[idLen] = 9

	_, err := UnpackLayer(bytes.NewReader(data))
	assert.ErrorContains(t, err, "invalid object kind")
}

func TestGroupByPrefix(t *testing.T) {
	objects := []*docodb.Object{
		{ID: "ab01"}, {ID: "ab02"}, {ID: "cd01"}, {ID: "x"},
	}

	groups := GroupByPrefix(objects)
	assert.Len(t, groups["ab"], 2)
	assert.Len(t, groups["cd"], 1)
	assert.Len(t, groups["00"], 1)
}

func TestBuildLayerPlan(t *testing.T) {
	const mb = 1024 * 1024

	tests := []struct {
		name  string
		sizes map[string]int64
		want  [][]string
	}{
		{
			name:  "empty",
			sizes: map[string]int64{},
			want:  nil,
		},
		{
			name:  "small prefixes share a layer",
			sizes: map[string]int64{"00": mb, "01": mb, "02": mb},
			want:  [][]string{{"00", "01", "02"}},
		},
		{
			name:  "split at soft max",
			sizes: map[string]int64{"00": 6 * mb, "01": 6 * mb, "02": 3 * mb},
			want:  [][]string{{"00"}, {"01", "02"}},
		},
		{
			name:  "small layer absorbs an oversized prefix",
			sizes: map[string]int64{"00": mb, "01": 15 * mb, "02": mb},
			want:  [][]string{{"00", "01"}, {"02"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildLayerPlan(tt.sizes))
		})
	}
}

func TestPrefixLabels(t *testing.T) {
	in := map[string]PrefixInfo{}
	for i := range 3 {
		in[fmt.Sprintf("%02x", i)] = PrefixInfo{Count: i + 1, Layer: "sha256:abc"}
	}

	s, err := encodePrefixes(in)
	require.NoError(t, err)

	out, err := decodePrefixes(s)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = decodePrefixes("")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = decodePrefixes("{")
	assert.Error(t, err)
}
