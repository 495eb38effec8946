package sqltypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueText(t *testing.T) {
	require.Equal(t, "42", IntValue(42).Text())
	require.Equal(t, "3.5", FloatValue(3.5).Text())
	require.Equal(t, "hi", VarcharValue("hi").Text())
	require.Equal(t, "1", BoolValue(true).Text())
	require.Equal(t, "0", BoolValue(false).Text())
	require.Equal(t, "", NullValue().Text())
	require.True(t, NullValue().IsNull())
}

func TestBoolValueInt(t *testing.T) {
	require.Equal(t, int64(1), BoolValue(true).Int())
	require.Equal(t, int64(0), BoolValue(false).Int())
}

func TestSchemaIndexOf(t *testing.T) {
	s := Schema{{Name: "id"}, {Name: "name"}}
	require.Equal(t, 0, s.IndexOf("id"))
	require.Equal(t, 1, s.IndexOf("name"))
	require.Equal(t, -1, s.IndexOf("missing"))
}

func TestRowClone(t *testing.T) {
	r := Row{IntValue(1), VarcharValue("a")}
	clone := r.Clone()
	clone[0] = IntValue(99)
	require.Equal(t, int64(1), r[0].Int())
	require.Equal(t, int64(99), clone[0].Int())
}

func TestColumnDefFlags(t *testing.T) {
	def := ColumnDef{Type: Integer, PrimaryKey: true, AutoIncrement: true}
	flags := def.Flags()
	require.NotZero(t, flags&FlagNum)
	require.NotZero(t, flags&FlagNotNull)
	require.NotZero(t, flags&FlagPriKey)
	require.NotZero(t, flags&FlagAutoIncrement)

	nullable := ColumnDef{Type: Varchar, Nullable: true}
	require.Zero(t, nullable.Flags()&FlagNotNull)
}

func TestColumnDefDecimals(t *testing.T) {
	require.Equal(t, byte(31), ColumnDef{Type: Float}.Decimals())
	require.Equal(t, byte(0), ColumnDef{Type: Integer}.Decimals())
}

func TestCoerceForArith(t *testing.T) {
	af, bf, bothInt, ai, bi := CoerceForArith(IntValue(3), IntValue(4))
	require.True(t, bothInt)
	require.Equal(t, float64(3), af)
	require.Equal(t, float64(4), bf)
	require.Equal(t, int64(3), ai)
	require.Equal(t, int64(4), bi)

	af, bf, bothInt, _, _ = CoerceForArith(IntValue(3), FloatValue(1.5))
	require.False(t, bothInt)
	require.Equal(t, float64(3), af)
	require.Equal(t, 1.5, bf)

	af, _, bothInt, _, _ = CoerceForArith(VarcharValue("12abc"), IntValue(0))
	require.True(t, bothInt)
	require.Equal(t, float64(12), af)

	af, _, _, _, _ = CoerceForArith(VarcharValue("not-a-number"), IntValue(0))
	require.Equal(t, float64(0), af)
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "INTEGER", Integer.String())
	require.Equal(t, "VARCHAR", Varchar.String())
	require.Equal(t, "BOOLEAN", Boolean.String())
}
