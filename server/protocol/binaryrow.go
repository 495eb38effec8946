package protocol

import (
	"math"

	"github.com/minisql/minisql/server/sqltypes"
)

// nullBitmapLen is ceil((cols+2)/8) bytes, offset 2, per §6.
func nullBitmapLen(cols int) int {
	return (cols + 2 + 7) / 8
}

// EncodeBinaryRow renders one binary-protocol (COM_STMT_EXECUTE result)
// row: a leading 0x00, a null bitmap, then the non-null columns encoded by
// fixed-width little-endian integers/floats or lenenc-strings.
func EncodeBinaryRow(schema sqltypes.Schema, row sqltypes.Row) []byte {
	bitmap := make([]byte, nullBitmapLen(len(row)))
	for i, v := range row {
		if v.IsNull() {
			bitPos := i + 2
			bitmap[bitPos/8] |= 1 << uint(bitPos%8)
		}
	}

	buf := make([]byte, 0, 16+8*len(row))
	buf = append(buf, 0x00)
	buf = append(buf, bitmap...)

	for i, v := range row {
		if v.IsNull() {
			continue
		}
		typ := sqltypes.Boolean
		if i < len(schema) {
			typ = schema[i].Type
		} else {
			typ = v.Type()
		}
		buf = appendBinaryValue(buf, typ, v)
	}
	return buf
}

func appendBinaryValue(buf []byte, typ sqltypes.Type, v sqltypes.Value) []byte {
	switch typ {
	case sqltypes.Boolean:
		b := byte(0)
		if v.Bool() || v.Int() != 0 {
			b = 1
		}
		return append(buf, b)
	case sqltypes.Integer:
		n := uint64(v.Int())
		return append(buf, byte(n), byte(n>>8), byte(n>>16), byte(n>>24), byte(n>>32), byte(n>>40), byte(n>>48), byte(n>>56))
	case sqltypes.Float:
		bits := math.Float64bits(v.Float())
		return append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24), byte(bits>>32), byte(bits>>40), byte(bits>>48), byte(bits>>56))
	case sqltypes.Varchar, sqltypes.Text, sqltypes.JSON:
		return appendLenencString(buf, v.Text())
	default:
		return appendLenencString(buf, v.Text())
	}
}

// DecodeBinaryParams decodes the null bitmap + typed values of a
// COM_STMT_EXECUTE payload's parameter block, given the declared type code
// for each of n positional parameters. The type block is read only when
// new-params-bound-flag is 1; otherwise no types are read and every
// non-NULL parameter is decoded with type code 0.
func DecodeBinaryParams(payload []byte, n int) ([]sqltypes.Value, error) {
	c := newCursor(payload)
	bmLen := (n + 7) / 8
	bitmap, err := c.bytes(bmLen)
	if err != nil {
		return nil, err
	}
	newParamsBound, err := c.byte()
	if err != nil {
		return nil, err
	}
	types := make([]byte, n)
	if newParamsBound == 1 {
		for i := 0; i < n; i++ {
			t, err := c.byte()
			if err != nil {
				return nil, err
			}
			if _, err := c.byte(); err != nil { // unsigned flag
				return nil, err
			}
			types[i] = t
		}
	}

	values := make([]sqltypes.Value, n)
	for i := 0; i < n; i++ {
		isNull := bitmap[i/8]&(1<<uint(i%8)) != 0
		if isNull {
			values[i] = sqltypes.NullValue()
			continue
		}
		v, err := decodeBinaryValue(c, types[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func decodeBinaryValue(c *cursor, typeCode byte) (sqltypes.Value, error) {
	switch typeCode {
	case 1: // TINY
		b, err := c.byte()
		if err != nil {
			return sqltypes.Value{}, err
		}
		if b == 0 || b == 1 {
			return sqltypes.BoolValue(b == 1), nil
		}
		return sqltypes.IntValue(int64(int8(b))), nil
	case 2: // SHORT
		v, err := c.u16()
		if err != nil {
			return sqltypes.Value{}, err
		}
		return sqltypes.IntValue(int64(int16(v))), nil
	case 3, 9: // LONG, INT24
		v, err := c.u32()
		if err != nil {
			return sqltypes.Value{}, err
		}
		return sqltypes.IntValue(int64(int32(v))), nil
	case 8: // LONGLONG
		v, err := c.u64()
		if err != nil {
			return sqltypes.Value{}, err
		}
		return sqltypes.IntValue(int64(v)), nil
	case 4: // FLOAT
		v, err := c.u32()
		if err != nil {
			return sqltypes.Value{}, err
		}
		return sqltypes.FloatValue(float64(math.Float32frombits(v))), nil
	case 5: // DOUBLE
		v, err := c.u64()
		if err != nil {
			return sqltypes.Value{}, err
		}
		return sqltypes.FloatValue(math.Float64frombits(v)), nil
	default: // VAR_STRING, BLOB, STRING, JSON, and anything else: lenenc-string
		s, isNull, err := c.lenencString()
		if err != nil {
			return sqltypes.Value{}, err
		}
		if isNull {
			return sqltypes.NullValue(), nil
		}
		return sqltypes.VarcharValue(s), nil
	}
}
