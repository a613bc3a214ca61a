package telemetry

import (
	"encoding/json"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		value  any
		pref   IntegerColumn
		column StorageColumn
		want   any
	}{
		{name: "bool", value: true, column: ColumnBool, want: true},
		{name: "json integer", value: json.Number("42"), column: ColumnBigint, want: int64(42)},
		{name: "json integer as int", value: json.Number("42"), pref: IntegerInt, column: ColumnInt, want: int64(42)},
		{name: "json integral float", value: json.Number("7.0"), column: ColumnBigint, want: int64(7)},
		{name: "json float", value: json.Number("3.14"), column: ColumnDouble, want: 3.14},
		{name: "native int", value: 42, column: ColumnBigint, want: int64(42)},
		{name: "native float", value: 3.14, column: ColumnDouble, want: 3.14},
		{name: "native integral float", value: 12.0, column: ColumnBigint, want: int64(12)},
		{name: "string true", value: "true", column: ColumnBool, want: true},
		{name: "string false", value: "false", column: ColumnBool, want: false},
		{name: "string True is text", value: "True", column: ColumnText, want: "True"},
		{name: "string integer", value: "7", column: ColumnBigint, want: int64(7)},
		{name: "string integer padded", value: "  7 ", pref: IntegerInt, column: ColumnInt, want: int64(7)},
		{name: "string decimal", value: "7.5", column: ColumnDouble, want: 7.5},
		{name: "string integral decimal", value: "7.0", column: ColumnDouble, want: 7.0},
		{name: "string exponent", value: "1e3", column: ColumnBigint, want: int64(1000)},
		{name: "string negative exponent", value: "1e-3", column: ColumnDouble, want: 0.001},
		{name: "string hex", value: "0x1F", column: ColumnBigint, want: int64(31)},
		{name: "string text", value: "abc", column: ColumnText, want: "abc"},
		{name: "empty string", value: "", column: ColumnText, want: ""},
		{name: "blank string", value: "   ", column: ColumnText, want: "   "},
		{name: "infinity literal", value: "Infinity", column: ColumnText, want: "Infinity"},
		{name: "nan literal", value: "NaN", column: ColumnText, want: "NaN"},
		{name: "overflowing literal", value: "1e400", column: ColumnText, want: "1e400"},
		{name: "null", value: nil, column: ColumnText, want: "null"},
		{name: "array", value: []any{json.Number("1"), "a"}, column: ColumnText, want: `[1,"a"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.value, tc.pref)
			if got.Column != tc.column {
				t.Fatalf("column = %s, want %s", got.Column, tc.column)
			}
			if got.Value != tc.want {
				t.Fatalf("value = %#v, want %#v", got.Value, tc.want)
			}
		})
	}
}

func TestParseIntegerColumn(t *testing.T) {
	if got, err := ParseIntegerColumn(""); err != nil || got != "" {
		t.Fatalf("empty: %q %v", got, err)
	}
	if got, err := ParseIntegerColumn("INT"); err != nil || got != IntegerInt {
		t.Fatalf("int: %q %v", got, err)
	}
	if _, err := ParseIntegerColumn("smallint"); err != ErrInvalidIntegerColumn {
		t.Fatalf("expected ErrInvalidIntegerColumn, got %v", err)
	}
}
