package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmpty  = errors.New("csv is empty")
	ErrHeader = errors.New("malformed csv header")
)

// Table is header-delimited tabular data: the first record names the fields.
type Table struct {
	Header []string
	Rows   []map[string]string
}

// ReadTable reads every record of r keyed by the header row. Blank lines are
// skipped; short rows simply lack the trailing fields.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // exports pad rows inconsistently
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeader, err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" || i >= len(rec) {
				continue
			}
			row[name] = strings.TrimSpace(rec[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	named := 0
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		if h == "" {
			continue
		}
		if seen[h] {
			return fmt.Errorf("%w: duplicate column %q", ErrHeader, h)
		}
		seen[h] = true
		named++
	}
	if named == 0 {
		return fmt.Errorf("%w: no column names", ErrHeader)
	}
	return nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Record is anything that can be written as one CSV line.
type Record interface {
	Values() []string
}

type FilterFunc[T Record] func(T) bool

// Create renders header and the records accepted by filter.
func Create[T Record](header []string, records []T, filter FilterFunc[T]) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	for _, r := range records {
		if filter == nil || filter(r) {
			_ = w.Write(r.Values())
		}
	}
	w.Flush()
	return buf.Bytes()
}
