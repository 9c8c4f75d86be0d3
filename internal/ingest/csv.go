// Package ingest reads the MetBull and CNEOS tables. Every column is kept as
// text; numeric coercion happens where a value is used.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kervino2/Meteora/internal/model"
)

// Reader loads the input tables permissively: a missing file or a malformed
// row is logged and skipped, never fatal.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a Reader. A nil logger uses the default.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger.With("component", "ingest")}
}

// Meteorites reads a MetBull export
func (r *Reader) Meteorites(path string) ([]model.MeteoriteRecord, error) {
	var out []model.MeteoriteRecord
	err := r.each(path, func(row rowReader) {
		if name := row.get("name"); name != "" {
			out = append(out, meteoriteFromRow(row))
		}
	})
	return out, err
}

// Events reads a CNEOS fireball export
func (r *Reader) Events(path string) ([]model.ImpactEvent, error) {
	var out []model.ImpactEvent
	err := r.each(path, func(row rowReader) {
		if date := row.get("date"); date != "" {
			out = append(out, eventFromRow(row))
		}
	})
	return out, err
}

// each opens path and calls fn for every well-formed row. Only errors that
// are not about the file being absent or unreadable CSV are returned.
func (r *Reader) each(path string, fn func(rowReader)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("input file not found, continuing with no rows", "path", path)
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.logger.Warn("input file is empty", "path", path)
			return nil
		}
		r.logger.Warn("unreadable CSV header, continuing with no rows", "path", path, "error", err)
		return nil
	}

	skipped := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				r.logger.Warn("skipping malformed row", "path", path, "line", perr.Line, "error", perr.Err)
				continue
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		if len(row) == 0 {
			continue
		}
		fn(rowReader{header: header, row: row})
	}

	if skipped > 0 {
		r.logger.Info("finished with skipped rows", "path", path, "skipped", skipped)
	}
	return nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		name = strings.TrimPrefix(name, "\ufeff")
		key := strings.TrimSpace(strings.ToLower(name))
		if _, dup := header[key]; !dup {
			header[key] = idx
		}
	}
	return header, nil
}

type rowReader struct {
	header map[string]int
	row    []string
}

// get returns the first non-empty value among the given column names
func (r rowReader) get(keys ...string) string {
	for _, key := range keys {
		idx, ok := r.header[strings.ToLower(key)]
		if !ok || idx >= len(r.row) {
			continue
		}
		if v := strings.TrimSpace(r.row[idx]); v != "" {
			return v
		}
	}
	return ""
}
