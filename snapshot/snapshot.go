package snapshot

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Row maps column names to JSON compatible scalar values.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	ret := make(Row, len(r))
	for k, v := range r {
		ret[k] = v
	}
	return ret
}

// Snapshot maps table names to rows in extraction order.
type Snapshot map[string][]Row

// Rows returns the rows of a table. A table absent from the snapshot has
// no rows.
func (s Snapshot) Rows(table string) []Row {
	return s[table]
}

// IDPair is a [surrogate, original] entry of the lookup document.
type IDPair [2]any

func (p IDPair) Surrogate() any { return p[0] }
func (p IDPair) Original() any  { return p[1] }

// Lookup maps a table name to its IDPairs, indexed by row position.
type Lookup map[string][]IDPair

// Decode parses a snapshot document. Numbers are kept as json.Number.
func Decode(data []byte) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ret Snapshot
	if err := dec.Decode(&ret); err != nil {
		return nil, errors.Wrap(err, "error decoding snapshot")
	}
	if ret == nil {
		ret = Snapshot{}
	}
	return ret, nil
}

// Encode renders s as an indented snapshot document.
func Encode(s Snapshot) ([]byte, error) {
	return encode(s)
}

// DecodeLookup parses an id lookup document.
func DecodeLookup(data []byte) (Lookup, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ret Lookup
	if err := dec.Decode(&ret); err != nil {
		return nil, errors.Wrap(err, "error decoding id lookup")
	}
	return ret, nil
}

// EncodeLookup renders l as an indented id lookup document.
func EncodeLookup(l Lookup) ([]byte, error) {
	return encode(l)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "error encoding snapshot")
	}
	return buf.Bytes(), nil
}

// IDFileName returns the name of the lookup document that accompanies a
// snapshot, e.g. data.json becomes data-id.json.
func IDFileName(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return name + "-id"
	}
	return strings.TrimSuffix(name, ext) + "-id" + ext
}
