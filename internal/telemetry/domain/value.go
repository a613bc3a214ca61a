package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// StorageColumn names one of the typed value columns.
type StorageColumn string

const (
	ColumnBool   StorageColumn = "value_bool"
	ColumnBigint StorageColumn = "value_bigint"
	ColumnInt    StorageColumn = "value_int"
	ColumnDouble StorageColumn = "value_double"
	ColumnText   StorageColumn = "value_text"
)

// IntegerColumn is the preferred column for integral numbers.
type IntegerColumn string

const (
	IntegerBigint IntegerColumn = "bigint"
	IntegerInt    IntegerColumn = "int"
)

// ParseIntegerColumn validates an integer column preference. Empty means unset.
func ParseIntegerColumn(value string) (IntegerColumn, error) {
	switch IntegerColumn(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return "", nil
	case IntegerBigint:
		return IntegerBigint, nil
	case IntegerInt:
		return IntegerInt, nil
	default:
		return "", ErrInvalidIntegerColumn
	}
}

func (c IntegerColumn) column() StorageColumn {
	if c == IntegerInt {
		return ColumnInt
	}
	return ColumnBigint
}

// NormalizedValue is a scalar placed in exactly one typed column.
// Value holds a bool, int64, float64 or string.
type NormalizedValue struct {
	Field  string
	Raw    any
	Column StorageColumn
	Value  any
}

// decimalLiteral matches plain decimal and exponent literals.
var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// Classify picks a storage column for value. First match wins:
// bool, native number, "true"/"false", numeric string, text.
// The string "7" and the number 7 land in the same column. Numeric strings
// without a decimal point use the integer column only when integral:
// "1e3" is 1000 in the integer column, "1e-3" goes to value_double.
func Classify(value any, pref IntegerColumn) NormalizedValue {
	out := NormalizedValue{Raw: value}
	switch v := value.(type) {
	case bool:
		out.Column, out.Value = ColumnBool, v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			out.Column, out.Value = pref.column(), i
			break
		}
		f, err := v.Float64()
		if err != nil {
			out.Column, out.Value = ColumnText, v.String()
			break
		}
		out.Column, out.Value = classifyFloat(f, pref)
	case float64:
		out.Column, out.Value = classifyFloat(v, pref)
	case float32:
		out.Column, out.Value = classifyFloat(float64(v), pref)
	case int:
		out.Column, out.Value = pref.column(), int64(v)
	case int8:
		out.Column, out.Value = pref.column(), int64(v)
	case int16:
		out.Column, out.Value = pref.column(), int64(v)
	case int32:
		out.Column, out.Value = pref.column(), int64(v)
	case int64:
		out.Column, out.Value = pref.column(), v
	case uint:
		out.Column, out.Value = classifyUint(uint64(v), pref)
	case uint8:
		out.Column, out.Value = pref.column(), int64(v)
	case uint16:
		out.Column, out.Value = pref.column(), int64(v)
	case uint32:
		out.Column, out.Value = pref.column(), int64(v)
	case uint64:
		out.Column, out.Value = classifyUint(v, pref)
	case string:
		out.Column, out.Value = classifyString(v, pref)
	default:
		out.Column, out.Value = ColumnText, stringify(v)
	}
	return out
}

func classifyFloat(f float64, pref IntegerColumn) (StorageColumn, any) {
	if isIntegral(f) {
		return pref.column(), int64(f)
	}
	return ColumnDouble, f
}

func classifyUint(u uint64, pref IntegerColumn) (StorageColumn, any) {
	if u > math.MaxInt64 {
		return ColumnDouble, float64(u)
	}
	return pref.column(), int64(u)
}

func classifyString(s string, pref IntegerColumn) (StorageColumn, any) {
	if s == "true" || s == "false" {
		return ColumnBool, s == "true"
	}
	f, ok := parseNumeric(s)
	if !ok {
		return ColumnText, s
	}
	if strings.Contains(s, ".") {
		return ColumnDouble, f
	}
	if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return pref.column(), i
	}
	// Exponent forms such as "1e-3" carry no decimal point but are not integral.
	return classifyFloat(f, pref)
}

// parseNumeric reports whether s reads as a finite number. Surrounding
// whitespace is ignored, blank is not numeric and 0x/0o/0b prefixes are
// accepted.
func parseNumeric(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	if len(t) > 2 && t[0] == '0' {
		base := 0
		switch t[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			u, err := strconv.ParseUint(t[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return float64(u), true
		}
	}
	if !decimalLiteral.MatchString(t) {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isIntegral(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64
}

func stringify(value any) string {
	if value == nil {
		return "null"
	}
	if raw, ok := value.(json.RawMessage); ok {
		return string(raw)
	}
	if s, ok := value.(fmt.Stringer); ok {
		return s.String()
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}
