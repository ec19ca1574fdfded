// Package json implements the JSON record reader for both input feeds.
//
// It is deliberately simple and conservative:
//
//   - Supports newline-delimited JSON objects (event logs):
//     {"id":1,"name":"a"}
//     {"id":2,"name":"b"}
//   - Supports a single JSON object per file (song metadata) through the
//     same streaming API; a one-object stream is just NDJSON of length one.
//   - Rejects non-object top-level values unless AllowArrays is set, in
//     which case a top-level array of objects is expanded.
//
// Numbers are decoded with UseNumber so downstream coercion decides how to
// map numeric values instead of inheriting float64 truncation.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"playetl/pkg/records"
)

// Options configures decoding behavior.
type Options struct {
	// AllowArrays accepts a top-level JSON array of objects and expands it
	// into individual records.
	AllowArrays bool
}

// Decoder reads a stream of JSON objects as records.Record values.
type Decoder struct {
	dec *json.Decoder
	opt Options

	// pending holds records expanded from a top-level array.
	pending []records.Record
	n       int
}

// NewDecoder constructs a Decoder from an io.Reader.
func NewDecoder(r io.Reader, opt Options) *Decoder {
	d := json.NewDecoder(r)
	d.UseNumber()
	return &Decoder{dec: d, opt: opt}
}

// Index returns the 1-based position of the most recently returned record.
func (d *Decoder) Index() int { return d.n }

// Next returns the next record in the stream. io.EOF signals a clean end of
// input; any other error means the remainder of the stream is undecodable
// and the unit should be abandoned.
func (d *Decoder) Next() (records.Record, error) {
	if len(d.pending) > 0 {
		rec := d.pending[0]
		d.pending = d.pending[1:]
		d.n++
		return rec, nil
	}

	var raw any
	if err := d.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode: %w", err)
	}

	switch v := raw.(type) {
	case map[string]any:
		d.n++
		return records.Record(v), nil

	case []any:
		if !d.opt.AllowArrays {
			return nil, fmt.Errorf("top-level array encountered but allow_arrays=false")
		}
		for i, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("array element %d is not an object", i)
			}
			d.pending = append(d.pending, records.Record(obj))
		}
		return d.Next()

	default:
		return nil, fmt.Errorf("unsupported top-level JSON type %T", v)
	}
}

// DecodeAll reads every record from r. Intended for small inputs and tests;
// the pipeline uses the streaming Next API.
func DecodeAll(r io.Reader, opt Options) ([]records.Record, error) {
	d := NewDecoder(r, opt)
	var out []records.Record
	for {
		rec, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}
