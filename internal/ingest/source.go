package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is one source row, JSON-shaped. Ingestion only inspects the city,
// natural-key and official fields; everything else passes through to info.
type Record = map[string]any

// Source yields records one at a time and returns io.EOF when exhausted.
// Sources are single-pass: once drained they cannot be re-iterated without
// re-fetching the underlying data.
type Source interface {
	Next() (Record, error)
}

// CSVSource streams records from a CSV document without buffering it whole.
// The official column is decoded as a JSON array; all other cells stay
// strings except numeric-looking ones, which are coerced through an exact
// decimal parse (see coerceValue).
type CSVSource struct {
	r      *csv.Reader
	header []string
	err    error
}

const officialField = "official"

func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read source header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &CSVSource{r: cr, header: header}, nil
}

func (s *CSVSource) Next() (Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	row, err := s.r.Read()
	if err != nil {
		s.err = err
		if err != io.EOF {
			s.err = fmt.Errorf("read source row: %w", err)
		}
		return nil, s.err
	}

	rec := Record{}
	for i, name := range s.header {
		if i >= len(row) {
			break
		}
		cell := row[i]
		if name == officialField {
			rec[name] = parseOfficial(cell)
			continue
		}
		rec[name] = cell
	}
	return rec, nil
}

// parseOfficial decodes the official cell as a JSON array, preserving exact
// numbers for later coercion. A blank or malformed cell degrades to empty.
func parseOfficial(cell string) []any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return []any{}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(cell)))
	dec.UseNumber()
	var arr []any
	if err := dec.Decode(&arr); err != nil {
		return []any{}
	}
	return arr
}

// FetchSource opens the remote dataset as a streaming source. The response
// body stays open for the lifetime of the returned closer.
func FetchSource(ctx context.Context, client *http.Client, url string) (Source, io.Closer, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build source request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch source: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("fetch source: unexpected status %s", resp.Status)
	}
	src, err := NewCSVSource(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, nil, err
	}
	return src, resp.Body, nil
}

// coerceValue recursively rewrites arbitrary-precision decimals to float64,
// which is all the document store can represent. json.Number values arrive
// from the official column decode; they go through shopspring/decimal so
// "1.10" and "1.1" coerce identically.
func coerceValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return val.String()
		}
		f, _ := d.Float64()
		return f
	case decimal.Decimal:
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = coerceValue(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = coerceValue(item)
		}
		return val
	default:
		return v
	}
}
