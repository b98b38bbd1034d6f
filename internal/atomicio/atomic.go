// Package atomicio writes files through a temporary sibling and a rename so
// readers never observe a partially written result.
package atomicio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFunc streams the file body into w.
type WriteFunc func(w io.Writer) error

// WriteFile creates the parent directory, streams fn into path+".tmp"
// through a buffered writer and renames it over path. On any failure the
// temporary file is removed and path is left untouched.
func WriteFile(path string, fn WriteFunc) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}

	bw := bufio.NewWriterSize(file, 1<<20)
	if err := fn(bw); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush %s: %w", tmpPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	return os.Rename(tmpPath, path)
}

// WriteJSON writes v as JSON, indented with indent spaces when indent > 0.
func WriteJSON(path string, v any, indent int) error {
	return WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		if indent > 0 {
			enc.SetIndent("", fmt.Sprintf("%*s", indent, ""))
		}
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		return nil
	})
}
