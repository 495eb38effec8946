// Package sqltypes implements MiniSQL's column-type and row-value model:
// conversions between parsed literals, typed values, and the MySQL
// text/binary wire encodings.
package sqltypes

import (
	"fmt"

	"github.com/minisql/minisql/server/common"
)

// Type is one of the six column types the data model supports.
type Type int

const (
	Integer Type = iota
	Float
	Varchar
	Text
	Boolean
	JSON
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Varchar:
		return "VARCHAR"
	case Text:
		return "TEXT"
	case Boolean:
		return "BOOLEAN"
	case JSON:
		return "JSON"
	default:
		return "UNKNOWN"
	}
}

// MySQLType returns the wire type code and default column flags for t, per
// the table in the data model.
func (t Type) MySQLType() (code byte, numFlag bool) {
	switch t {
	case Integer:
		return common.COLUMN_TYPE_LONGLONG, true
	case Float:
		return common.COLUMN_TYPE_DOUBLE, true
	case Varchar:
		return common.COLUMN_TYPE_VAR_STRING, false
	case Text:
		return common.COLUMN_TYPE_BLOB, false
	case Boolean:
		return common.COLUMN_TYPE_TINY, true
	case JSON:
		return common.COLUMN_TYPE_JSON, false
	default:
		return common.COLUMN_TYPE_VAR_STRING, false
	}
}

// Column flag bits used in column-definition packets.
const (
	FlagNotNull      uint16 = 0x0001
	FlagPriKey       uint16 = 0x0002
	FlagNum          uint16 = 0x8000
	FlagAutoIncrement uint16 = 0x0200
)

// ColumnDef describes one column of a table schema.
type ColumnDef struct {
	Name          string
	Type          Type
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Default       Value
	HasDefault    bool
	Length        int // Varchar(n); 0 otherwise
}

// Flags computes the wire flag bitmask for this column definition.
func (c ColumnDef) Flags() uint16 {
	_, num := c.Type.MySQLType()
	var f uint16
	if num {
		f |= FlagNum
	}
	if !c.Nullable {
		f |= FlagNotNull
	}
	if c.PrimaryKey {
		f |= FlagPriKey
	}
	if c.AutoIncrement {
		f |= FlagAutoIncrement
	}
	return f
}

// Decimals returns the column-definition "decimals" byte: 0 for integral
// types, 31 for floats carrying no explicit scale.
func (c ColumnDef) Decimals() byte {
	if c.Type == Float {
		return 31
	}
	return 0
}

// Schema is an ordered sequence of column descriptors.
type Schema []ColumnDef

// IndexOf returns the position of the named column, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Row is an ordered sequence of values whose length equals the owning
// table's column count.
type Row []Value

func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Value is a tagged variant over Integer/Float/Varchar/Text/Boolean/JSON
// plus Null.
type Value struct {
	typ    Type
	isNull bool
	i      int64
	f      float64
	s      string
	b      bool
}

// NullValue constructs the Null variant.
func NullValue() Value { return Value{isNull: true} }

func IntValue(v int64) Value     { return Value{typ: Integer, i: v} }
func FloatValue(v float64) Value { return Value{typ: Float, f: v} }
func VarcharValue(v string) Value { return Value{typ: Varchar, s: v} }
func TextValue(v string) Value   { return Value{typ: Text, s: v} }
func BoolValue(v bool) Value {
	val := Value{typ: Boolean, b: v}
	if v {
		val.i = 1
	}
	return val
}
func JSONValue(v string) Value { return Value{typ: JSON, s: v} }

func (v Value) IsNull() bool { return v.isNull }
func (v Value) Type() Type   { return v.typ }

func (v Value) Int() int64 {
	if v.typ == Boolean {
		if v.b {
			return 1
		}
		return 0
	}
	return v.i
}

func (v Value) Float() float64 { return v.f }
func (v Value) Str() string    { return v.s }
func (v Value) Bool() bool     { return v.b }

// Text renders the canonical text-protocol encoding of v.
func (v Value) Text() string {
	if v.isNull {
		return ""
	}
	switch v.typ {
	case Integer:
		return fmt.Sprintf("%d", v.i)
	case Float:
		return formatFloat(v.f)
	case Varchar, Text, JSON:
		return v.s
	case Boolean:
		if v.b {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

// CoerceForArith widens v and other to a common numeric representation per
// the data model's coercion rules: Integer<->Float coerce to Float;
// numeric<->string attempts a numeric parse of the string (unparsable ⇒ 0).
func CoerceForArith(a, b Value) (af, bf float64, bothInt bool, ai, bi int64) {
	av, aIsInt := numericOf(a)
	bv, bIsInt := numericOf(b)
	return av, bv, aIsInt && bIsInt, int64(av), int64(bv)
}

func numericOf(v Value) (float64, bool) {
	switch v.typ {
	case Integer:
		return float64(v.i), true
	case Float:
		return v.f, false
	case Boolean:
		if v.b {
			return 1, true
		}
		return 0, true
	case Varchar, Text, JSON:
		n, isInt := parseNumericPrefix(v.s)
		return n, isInt
	default:
		return 0, true
	}
}

// parseNumericPrefix parses a leading numeric prefix of s the way MySQL's
// implicit string->number coercion does, returning 0 for an unparsable
// string rather than an error.
func parseNumericPrefix(s string) (float64, bool) {
	var f float64
	var n int
	isInt := true
	_, err := fmt.Sscanf(s, "%f%n", &f, &n)
	if err != nil {
		return 0, true
	}
	for _, r := range s[:n] {
		if r == '.' || r == 'e' || r == 'E' {
			isInt = false
			break
		}
	}
	return f, isInt
}
