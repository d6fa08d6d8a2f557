package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Equal reports whether two field values represent the same scalar.
// Numbers and numeric strings compare by numeric value, so "1", 1 and 1.0
// are all equal.
func Equal(a, b any) bool {
	return Canonical(a) == Canonical(b)
}

// Canonical returns a key such that Equal(a, b) holds exactly when
// Canonical(a) == Canonical(b).
func Canonical(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case bool:
		return "b:" + strconv.FormatBool(v)
	case string:
		return canonicalText(v)
	case json.Number:
		return canonicalText(string(v))
	case []byte:
		return canonicalText(string(v))
	case int:
		return "n:" + strconv.FormatInt(int64(v), 10)
	case int8:
		return "n:" + strconv.FormatInt(int64(v), 10)
	case int16:
		return "n:" + strconv.FormatInt(int64(v), 10)
	case int32:
		return "n:" + strconv.FormatInt(int64(v), 10)
	case int64:
		return "n:" + strconv.FormatInt(v, 10)
	case uint:
		return "n:" + strconv.FormatUint(uint64(v), 10)
	case uint8:
		return "n:" + strconv.FormatUint(uint64(v), 10)
	case uint16:
		return "n:" + strconv.FormatUint(uint64(v), 10)
	case uint32:
		return "n:" + strconv.FormatUint(uint64(v), 10)
	case uint64:
		return "n:" + strconv.FormatUint(v, 10)
	case float32:
		return canonicalFloat(float64(v))
	case float64:
		return canonicalFloat(v)
	case *apd.Decimal:
		return canonicalDecimal(v)
	case apd.Decimal:
		return canonicalDecimal(&v)
	case time.Time:
		return "s:" + v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return canonicalText(v.String())
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "s:" + fmt.Sprint(v)
	}
	return "j:" + string(b)
}

func canonicalText(s string) string {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return "s:" + s
	}
	return canonicalDecimal(d)
}

func canonicalFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "s:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return canonicalText(strconv.FormatFloat(f, 'g', -1, 64))
}

func canonicalDecimal(d *apd.Decimal) string {
	if d.Form != apd.Finite {
		return "s:" + d.String()
	}
	if d.IsZero() {
		return "n:0"
	}
	var reduced apd.Decimal
	reduced.Reduce(d)
	return "n:" + reduced.Text('f')
}
