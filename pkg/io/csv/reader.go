// Package csv reads the fixed-schema event CSVs and writes verdict rows.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	mgio "github.com/hed1ad/marketguard/pkg/io"
)

// Reader reads one event stream from a CSV file with a fixed, explicit
// schema. Header names are matched exactly; nothing is stripped or lowercased
// on the way in.
type Reader struct {
	file     *os.File
	reader   *csv.Reader
	headers  []string
	required []string
}

// NewReader opens a CSV file and validates its header against the required
// column set. A missing column fails here, before any row is read.
func NewReader(filename string, required []string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:     file,
		reader:   csv.NewReader(file),
		required: required,
	}
	r.reader.FieldsPerRecord = -1

	headers, err := r.reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read header of %s: %w", filename, err)
	}
	r.headers = headers

	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %s lacks %v", mgio.ErrMissingField, filename, missing)
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns all rows keyed by column name. Rows with a field count that
// does not match the header are skipped; coercion of values is the
// normalizer's job, not the reader's.
func (r *Reader) Read() ([]map[string]string, error) {
	var rows []map[string]string

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(r.headers) {
			continue
		}

		row := make(map[string]string, len(r.headers))
		for i, h := range r.headers {
			row[h] = record[i]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
