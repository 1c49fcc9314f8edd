package domain

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Record is one decoded row of an item.
type Record map[string]any

// Format is the encoding of an item's content, derived from its key extension.
type Format string

// Supported formats.
const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatCSV    Format = "csv"
	FormatXML    Format = "xml"
	FormatText   Format = "txt"
)

// supportedExtensions are the extensions ingestion accepts into the inbound zone.
var supportedExtensions = map[string]Format{
	".json":   FormatJSON,
	".jsonl":  FormatNDJSON,
	".ndjson": FormatNDJSON,
	".csv":    FormatCSV,
	".xml":    FormatXML,
	".txt":    FormatText,
}

// FormatOf returns the format for key and whether the extension is supported.
func FormatOf(key string) (Format, bool) {
	f, ok := supportedExtensions[strings.ToLower(path.Ext(key))]
	return f, ok
}

// IsSupported reports whether ingestion should accept key.
func IsSupported(key string) bool {
	_, ok := FormatOf(key)
	return ok
}

// Dataset is the decoded content of one item.
type Dataset struct {
	Key     string
	Format  Format
	Records []Record
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Fields returns the sorted union of field names across all records.
func (d *Dataset) Fields() []string {
	seen := make(map[string]struct{})
	for _, r := range d.Records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// DecodeDataset decodes raw item content according to the key's extension.
// A JSON payload may be an array of objects, a single object, or one object per line.
func DecodeDataset(key string, data []byte) (*Dataset, error) {
	format, ok := FormatOf(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path.Ext(key))
	}

	var (
		records []Record
		err     error
	)
	switch format {
	case FormatJSON, FormatNDJSON:
		records, err = decodeJSON(data)
	case FormatCSV:
		records, err = decodeCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s content cannot be decoded into records", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, key, err)
	}

	return &Dataset{Key: key, Format: format, Records: records}, nil
}

// EncodeNDJSON writes records one JSON object per line.
func EncodeNDJSON(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeJSON(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []Record{}, nil
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	// One or more objects, newline separated or concatenated.
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var records []Record
	for {
		var r Record
		if err := dec.Decode(&r); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func decodeCSV(data []byte) ([]Record, error) {
	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		r := make(Record, len(header))
		for i, name := range header {
			if i < len(row) && row[i] != "" {
				r[name] = row[i]
			} else {
				r[name] = nil
			}
		}
		records = append(records, r)
	}
	return records, nil
}
