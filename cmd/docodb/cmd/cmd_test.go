package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/docodb"
)

// execute runs the root command on the in-process memory driver.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--driver", "memory", "--log-level", "error"}, args...))

	err := rootCmd.Execute()
	return out.String(), err
}

func TestPutCatRoundTrip(t *testing.T) {
	content := "hello world\n"
	want, err := docodb.ComputeID(docodb.KindBlob, []byte(content))
	require.NoError(t, err)

	out, err := execute(t, content, "put", "--kind", "blob", "--chunk-size", "3", "-")
	require.NoError(t, err)
	assert.Equal(t, string(want)+"\n", out)

	out, err = execute(t, "", "cat", want.Short(8))
	require.NoError(t, err)
	assert.Equal(t, content, out)

	out, err = execute(t, "", "header", string(want))
	require.NoError(t, err)
	assert.Equal(t, string(want)+" blob 12\n", out)

	out, err = execute(t, "", "exists", string(want))
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	// Storing the same content again is a no-op.
	out, err = execute(t, content, "put", "--kind", "blob", "--chunk-size", "3", "-")
	require.NoError(t, err)
	assert.Equal(t, string(want)+"\n", out)
}

func TestPutFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree")
	require.NoError(t, os.WriteFile(path, []byte("tree payload"), 0o644))

	out, err := execute(t, "", "put", "--kind", "tree", "--chunk-size", "4", path)
	require.NoError(t, err)

	id, err := docodb.ParseID(strings.TrimSpace(out))
	require.NoError(t, err)

	out, err = execute(t, "", "header", string(id))
	require.NoError(t, err)
	assert.Contains(t, out, " tree 12")
}

func TestListAndFsck(t *testing.T) {
	for _, content := range []string{"one", "two", "three"} {
		_, err := execute(t, content, "put", "--kind", "blob", "--chunk-size", "1024", "-")
		require.NoError(t, err)
	}

	out, err := execute(t, "", "ls", "--limit", "0")
	require.NoError(t, err)
	all := strings.Fields(out)
	assert.GreaterOrEqual(t, len(all), 3)

	out, err = execute(t, "", "ls", "--limit", "2")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 2)

	out, err = execute(t, "", "fsck")
	require.NoError(t, err)
	assert.Contains(t, out, "0 problems")
}

func TestExistsUnknown(t *testing.T) {
	out, err := execute(t, "", "exists", strings.Repeat("0", 40))
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	_, err = execute(t, "", "exists", "not-an-id")
	assert.ErrorIs(t, err, docodb.ErrInvalidID)
}

func TestCatMissing(t *testing.T) {
	_, err := execute(t, "", "cat", strings.Repeat("0", 39))
	assert.ErrorIs(t, err, docodb.ErrNotFound)
}

func TestInitMemory(t *testing.T) {
	out, err := execute(t, "", "init")
	require.NoError(t, err)
	assert.Equal(t, "driver memory needs no initialization\n", out)
}

func TestUnknownDriver(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--driver", "cassandra", "ls", "--limit", "0"})

	err := rootCmd.Execute()
	assert.ErrorContains(t, err, `unknown driver "cassandra"`)
}

func TestFileDriver(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "payload", "--driver", "file", "--url", dir, "put", "--kind", "blob", "--chunk-size", "1024", "-")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	out, err = execute(t, "", "--driver", "file", "--url", dir, "cat", id[:6])
	require.NoError(t, err)
	assert.Equal(t, "payload", out)
}
