package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, Write(path, map[string]int{"a": 1}))
	require.NoError(t, Write(path, map[string]int{"b": 2}))

	var got map[string]int
	require.NoError(t, Read(path, &got))
	assert.Equal(t, map[string]int{"b": 2}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadMissing(t *testing.T) {
	var v map[string]int
	err := Read(filepath.Join(t.TempDir(), "missing.json"), &v)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var v map[string]int
	err := Read(path, &v)
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}
