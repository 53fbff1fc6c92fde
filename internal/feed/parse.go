package feed

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedFeed wraps errors the CSV reader could not recover from.
var ErrMalformedFeed = errors.New("feed: malformed CSV")

// Columns names the header cells the ingestion reads.
type Columns struct {
	Date    string `yaml:"date" json:"date" validate:"required"`
	Email   string `yaml:"email" json:"email" validate:"required"`
	Payload string `yaml:"payload" json:"payload" validate:"required"`
}

// DefaultColumns matches the published submissions sheet.
var DefaultColumns = Columns{Date: "data", Email: "od", Payload: "json"}

// Row is one data row reduced to the consumed columns. A column absent from
// the header, or a short row, yields an empty field.
type Row struct {
	Line    int
	Date    string
	Email   string
	Payload string
}

// ParseRows reads a CSV export whose first record is the header. Ragged rows
// and missing header columns are reported as warnings; only reader errors
// abort with ErrMalformedFeed.
func ParseRows(body []byte, cols Columns) ([]Row, []string, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%w: no header row", ErrMalformedFeed)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	var warnings []string
	for _, name := range []string{cols.Date, cols.Email, cols.Payload} {
		if _, ok := index[name]; !ok {
			warnings = append(warnings, fmt.Sprintf("header has no %q column", name))
		}
	}

	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	rows := make([]Row, 0)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, warnings, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
		}

		line, _ := r.FieldPos(0)
		if len(rec) != len(header) {
			warnings = append(warnings, fmt.Sprintf("line %d: %d fields, header has %d", line, len(rec), len(header)))
		}

		rows = append(rows, Row{
			Line:    line,
			Date:    field(rec, cols.Date),
			Email:   field(rec, cols.Email),
			Payload: field(rec, cols.Payload),
		})
	}

	return rows, warnings, nil
}
