package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Flow string

const (
	FlowExport Flow = "export"
	FlowImport Flow = "import"
)

// FilterEntry is one value of an enumerated API filter (for example a country).
// Value keeps the raw JSON so numeric and string codes are sent back unchanged.
type FilterEntry struct {
	Text  string
	Label string
	Value json.RawMessage
	Raw   json.RawMessage
}

// DisplayText returns the first non-empty of text, label and value.
func (e FilterEntry) DisplayText() string {
	if e.Text != "" {
		return e.Text
	}
	if e.Label != "" {
		return e.Label
	}
	return e.ValueString()
}

// ValueString renders Value as plain text: strings unquoted, numbers verbatim,
// null or missing as "".
func (e FilterEntry) ValueString() string {
	trimmed := bytes.TrimSpace(e.Value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return strings.TrimSpace(string(trimmed))
}

func (e FilterEntry) String() string {
	if len(e.Raw) > 0 {
		return string(e.Raw)
	}
	return e.DisplayText()
}

// FilterSet is what the filter-values endpoint returned. Raw holds the payload
// when it did not match a known list envelope.
type FilterSet struct {
	Entries []FilterEntry
	Raw     json.RawMessage
}

type FilterClause struct {
	Filter string            `json:"filter"`
	Values []json.RawMessage `json:"values"`
}

type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
}

// QuerySpec is the request body of the general aggregation endpoint.
type QuerySpec struct {
	Flow       Flow           `json:"flow"`
	GroupBy    []string       `json:"groupBy"`
	Metrics    []string       `json:"metrics"`
	Filters    []FilterClause `json:"filters"`
	StartYear  int            `json:"startYear"`
	EndYear    int            `json:"endYear"`
	Pagination Pagination     `json:"pagination"`
	Language   string         `json:"language"`
}

// RawResponse is the unmodified JSON body of a query response.
type RawResponse []byte

func (r RawResponse) String() string {
	return string(r)
}

// Record is one flattened output row. Keys keep insertion order.
type Record struct {
	keys   []string
	values map[string]any
}

func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r Record) Get(key string) (any, bool) {
	value, ok := r.values[key]
	return value, ok
}

func (r Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

func (r Record) Len() int {
	return len(r.keys)
}

// Cell renders the value stored under key for tabular output. Missing keys and
// nulls render as "".
func (r Record) Cell(key string) string {
	value, ok := r.values[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		if typed {
			return "true"
		}
		return "false"
	case json.RawMessage:
		return string(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
