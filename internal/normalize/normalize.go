// Package normalize turns aggregation responses into flat, ordered records.
//
// Upstream deployments wrap the row collection differently. Envelopes are
// tried in a fixed priority order and the first that yields a non-empty
// collection wins:
//
//	{"rows": ...}           no "data" key (or "data": null)
//	{"list": ...}           no "data" key (or "data": null)
//	{"data": {"rows": ...}}
//	{"data": {"list": ...}}
//	{"data": ...}           "data" is not an object
//
// A collection that is an object is read as the sequence of its values in
// document order. Nested objects inside a row are flattened into dotted keys.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"comexexport/internal/model"
)

var ErrFormat = errors.New("normalize: unexpected response format")

type Envelope int

const (
	EnvelopeNone Envelope = iota
	EnvelopeRows
	EnvelopeList
	EnvelopeDataRows
	EnvelopeDataList
	EnvelopeData
)

func (e Envelope) String() string {
	switch e {
	case EnvelopeRows:
		return "rows"
	case EnvelopeList:
		return "list"
	case EnvelopeDataRows:
		return "data.rows"
	case EnvelopeDataList:
		return "data.list"
	case EnvelopeData:
		return "data"
	default:
		return "none"
	}
}

type variant struct {
	envelope Envelope
	match    func(root gjson.Result) (gjson.Result, bool)
}

var variants = []variant{
	{EnvelopeRows, func(root gjson.Result) (gjson.Result, bool) { return withoutData(root, "rows") }},
	{EnvelopeList, func(root gjson.Result) (gjson.Result, bool) { return withoutData(root, "list") }},
	{EnvelopeDataRows, func(root gjson.Result) (gjson.Result, bool) { return insideData(root, "rows") }},
	{EnvelopeDataList, func(root gjson.Result) (gjson.Result, bool) { return insideData(root, "list") }},
	{EnvelopeData, func(root gjson.Result) (gjson.Result, bool) {
		data, ok := dataOf(root)
		if !ok || data.IsObject() {
			return gjson.Result{}, false
		}
		return data, true
	}},
}

// member returns the value stored under key in object. With duplicate keys the
// last one wins. gjson paths are not used so keys need no escaping.
func member(object gjson.Result, key string) (gjson.Result, bool) {
	var found gjson.Result
	ok := false
	object.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			found, ok = v, true
		}
		return true
	})
	return found, ok
}

func dataOf(root gjson.Result) (gjson.Result, bool) {
	data, ok := member(root, "data")
	if !ok || data.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return data, true
}

func withoutData(root gjson.Result, key string) (gjson.Result, bool) {
	if _, ok := dataOf(root); ok {
		return gjson.Result{}, false
	}
	value, ok := member(root, key)
	if !ok || !truthy(value) {
		return gjson.Result{}, false
	}
	return value, true
}

func insideData(root gjson.Result, key string) (gjson.Result, bool) {
	data, ok := dataOf(root)
	if !ok || !data.IsObject() {
		return gjson.Result{}, false
	}
	value, ok := member(data, key)
	if !ok || !truthy(value) {
		return gjson.Result{}, false
	}
	return value, true
}

// truthy reports whether value counts as present: null, false, 0, "" and empty
// containers do not.
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return value.Num != 0
	case gjson.String:
		return value.Str != ""
	case gjson.JSON:
		nonEmpty := false
		value.ForEach(func(_, _ gjson.Result) bool {
			nonEmpty = true
			return false
		})
		return nonEmpty
	default:
		return false
	}
}

// Result is a normalized response together with the envelope it came from.
type Result struct {
	Envelope Envelope
	Records  []model.Record
}

// Decode resolves the envelope of raw and flattens every row object in it.
// Rows that are not objects are skipped.
func Decode(raw model.RawResponse) (Result, error) {
	if !gjson.ValidBytes(raw) {
		return Result{}, fmt.Errorf("%w: invalid json", ErrFormat)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Result{}, fmt.Errorf("%w: top-level value is not an object", ErrFormat)
	}

	envelope, collection, found := resolve(root)
	if !found {
		return Result{Envelope: envelope}, nil
	}
	rows, err := rowsOf(collection)
	if err != nil {
		return Result{Envelope: envelope}, err
	}

	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		if !row.IsObject() {
			continue
		}
		var record model.Record
		flatten(&record, "", row)
		records = append(records, record)
	}
	return Result{Envelope: envelope, Records: records}, nil
}

// Records is Decode without the envelope.
func Records(raw model.RawResponse) ([]model.Record, error) {
	result, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Columns returns the union of record keys in first-seen order.
func Columns(records []model.Record) []string {
	seen := make(map[string]struct{})
	columns := make([]string, 0)
	for _, record := range records {
		for _, key := range record.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}
	return columns
}

func resolve(root gjson.Result) (Envelope, gjson.Result, bool) {
	for _, v := range variants {
		if collection, ok := v.match(root); ok {
			return v.envelope, collection, true
		}
	}
	return EnvelopeNone, gjson.Result{}, false
}

func rowsOf(collection gjson.Result) ([]gjson.Result, error) {
	if !collection.IsArray() && !collection.IsObject() {
		return nil, fmt.Errorf("%w: row collection is a scalar", ErrFormat)
	}
	rows := make([]gjson.Result, 0)
	collection.ForEach(func(_, row gjson.Result) bool {
		rows = append(rows, row)
		return true
	})
	return rows, nil
}

func flatten(record *model.Record, prefix string, object gjson.Result) {
	object.ForEach(func(k, value gjson.Result) bool {
		key := k.Str
		if prefix != "" {
			key = prefix + "." + k.Str
		}
		switch {
		case value.IsObject():
			flatten(record, key, value)
		case value.IsArray():
			record.Set(key, json.RawMessage(pretty.Ugly([]byte(value.Raw))))
		case value.Type == gjson.String:
			record.Set(key, value.Str)
		case value.Type == gjson.Number:
			record.Set(key, json.Number(value.Raw))
		case value.Type == gjson.True, value.Type == gjson.False:
			record.Set(key, value.Bool())
		default:
			record.Set(key, nil)
		}
		return true
	})
}
