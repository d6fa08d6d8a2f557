package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		a, b     any
		expected bool
	}{
		{desc: "numeric string and int", a: "1", b: 1, expected: true},
		{desc: "json number and int64", a: json.Number("42"), b: int64(42), expected: true},
		{desc: "trailing zeros", a: "1.50", b: 1.5, expected: true},
		{desc: "exponent", a: "1e3", b: uint16(1000), expected: true},
		{desc: "negative zero", a: "-0.0", b: 0, expected: true},
		{desc: "decimal", a: apd.New(125, -2), b: "1.25", expected: true},
		{desc: "different numbers", a: "1", b: 2, expected: false},
		{desc: "same strings", a: "Ann", b: "Ann", expected: true},
		{desc: "different strings", a: "Ann", b: "Annie", expected: false},
		{desc: "bytes and string", a: []byte("Ann"), b: "Ann", expected: true},
		{desc: "nil and nil", a: nil, b: nil, expected: true},
		{desc: "nil and empty string", a: nil, b: "", expected: false},
		{desc: "nil and zero", a: nil, b: 0, expected: false},
		{desc: "bools", a: true, b: true, expected: true},
		{desc: "bool and string", a: true, b: "true", expected: false},
		{desc: "nan string is text", a: "NaN", b: "NaN", expected: true},
		{
			desc:     "time and string",
			a:        time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
			b:        "2023-01-02T03:04:05Z",
			expected: true,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			require.Equal(t, tc.expected, Equal(tc.a, tc.b))
			require.Equal(t, tc.expected, Equal(tc.b, tc.a))
		})
	}
}

func TestIDFileName(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected string
	}{
		{in: "data.json", expected: "data-id.json"},
		{in: "dumps/2023.01/master.json", expected: "dumps/2023.01/master-id.json"},
		{in: "dumps.d/master", expected: "dumps.d/master-id"},
		{in: "master", expected: "master-id"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.expected, IDFileName(tc.in))
		})
	}
}

func TestDecodeKeepsNumbers(t *testing.T) {
	s, err := Decode([]byte(`{"customers": [{"id": 12345678901234567890, "name": "Ann", "score": 1.10}]}`))
	require.NoError(t, err)
	row := s.Rows("customers")[0]
	require.Equal(t, json.Number("12345678901234567890"), row["id"])
	require.Equal(t, json.Number("1.10"), row["score"])
	require.Empty(t, s.Rows("orders"))

	out, err := Encode(s)
	require.NoError(t, err)
	require.Contains(t, string(out), `"id": 12345678901234567890`)
	require.Contains(t, string(out), `"score": 1.10`)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"customers": {"id": 1}}`))
	require.Error(t, err)
}

func TestLookupRoundTrip(t *testing.T) {
	l := Lookup{"customers": {{"3f0e", json.Number("1")}, {"a91c", json.Number("2")}}}
	out, err := EncodeLookup(l)
	require.NoError(t, err)
	back, err := DecodeLookup(out)
	require.NoError(t, err)
	require.Equal(t, l, back)
	require.Equal(t, "a91c", back["customers"][1].Surrogate())
	require.Equal(t, json.Number("2"), back["customers"][1].Original())
}
