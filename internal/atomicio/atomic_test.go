package atomicio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesDirectoriesAndRenames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	err := WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "hello")
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.NoFileExists(t, path+".tmp")
}

func TestWriteFile_FailureKeepsPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	boom := errors.New("boom")
	err := WriteFile(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.NoFileExists(t, path+".tmp")
}

func TestWriteJSON_Indent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}, 4))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"a\": 1\n}\n", string(data))
}
