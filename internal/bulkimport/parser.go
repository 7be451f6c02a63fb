package bulkimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/loadboard/internal/domain"
)

// DefaultMaxRows is the hard cap on data rows per file.
const DefaultMaxRows = 5000

// ParsedFile is a header plus its data rows, in file order.
type ParsedFile struct {
	Headers []string
	Rows    []domain.RawRow
}

// ParseRows reads CSV text whose first line is the header. Blank lines are
// skipped, missing trailing cells read as "", and cells past the header are
// dropped. maxRows <= 0 means DefaultMaxRows.
func ParseRows(data []byte, maxRows int) (*ParsedFile, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	r := csv.NewReader(bytes.NewReader([]byte(stripBOM(string(data)))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoDataRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.Trim(strings.TrimSpace(h), `"'`)
	}

	out := &ParsedFile{Headers: headers}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		if blank(rec) {
			continue
		}
		if len(out.Rows) == maxRows {
			return nil, fmt.Errorf("%w: file has more than %d data rows", ErrTooManyRows, maxRows)
		}
		row := make(domain.RawRow, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		out.Rows = append(out.Rows, row)
	}

	if len(out.Rows) == 0 {
		return nil, ErrNoDataRows
	}
	return out, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func stripBOM(s string) string { return strings.TrimPrefix(s, "\ufeff") }
