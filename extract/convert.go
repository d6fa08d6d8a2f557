package extract

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// pgValue converts a decoded PostgreSQL value into a JSON compatible
// scalar.
func pgValue(v any) any {
	switch v := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case float32:
		return floatValue(float64(v), 32)
	case float64:
		return floatValue(v, 64)
	case time.Time:
		return v
	case []byte:
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case pgtype.Numeric:
		return numericValue(v)
	case map[string]any, []any:
		return v
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return pgValue(dv)
	case fmt.Stringer:
		return v.String()
	}
	return v
}

func floatValue(f float64, bitSize int) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bitSize)
	}
	return json.Number(strconv.FormatFloat(f, 'f', -1, bitSize))
}

func numericValue(n pgtype.Numeric) any {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	case n.Int == nil:
		return json.Number("0")
	}
	d := apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(n.Int), n.Exp)
	return json.Number(d.Text('f'))
}

func isMySQLNumeric(typeName string) bool {
	typeName = strings.ToUpper(typeName)
	if strings.Contains(typeName, "INT") {
		return true
	}
	switch strings.TrimPrefix(typeName, "UNSIGNED ") {
	case "DECIMAL", "FLOAT", "DOUBLE", "YEAR":
		return true
	}
	return false
}

// mysqlValue converts the text form of a MySQL column.
func mysqlValue(raw *string, typeName string) any {
	if raw == nil {
		return nil
	}
	if isMySQLNumeric(typeName) {
		return json.Number(*raw)
	}
	return *raw
}
