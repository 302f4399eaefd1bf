// Package ledger implements append-only, line-delimited JSON record files.
// Files are only ever opened for append; nothing is rewritten in place.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const maxLineSize = 16 * 1024 * 1024

// Append encodes every record before touching the file, then writes them with
// a single append so a failed encode never leaves a partial batch behind.
func Append[T any](path string, records ...T) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("encode record %d for %s: %w", i, path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", path, err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to %s: %w", path, err)
	}

	return f.Close()
}

// ReadResult carries decoded records in file order
type ReadResult[T any] struct {
	Records []T
	// Malformed counts non-empty lines that were not valid JSON for T.
	Malformed int
}

// Read decodes every line of path. A missing file reads as empty; blank lines
// are ignored and undecodable lines are counted but skipped.
func Read[T any](path string) (ReadResult[T], error) {
	var res ReadResult[T]

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			res.Malformed++
			continue
		}
		res.Records = append(res.Records, rec)
	}

	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("scan ledger %s: %w", path, err)
	}

	return res, nil
}
