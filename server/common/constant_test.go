package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandStringKnownAndUnknown(t *testing.T) {
	require.Equal(t, "COM_QUERY", CommandString(COM_QUERY))
	require.Equal(t, "COM_STMT_PREPARE", CommandString(COM_STMT_PREPARE))
	require.Equal(t, "COM_PING", CommandString(COM_PING))
	require.Equal(t, "UNKNOWN", CommandString(0xff))
}

func TestConvertColTypeToEnumsAndBack(t *testing.T) {
	cases := map[string]byte{
		"tiny":    COLUMN_TYPE_TINY,
		"varchar": COLUMN_TYPE_VARCHAR,
		"float":   COLUMN_TYPE_FLOAT,
		"decimal": COLUMN_TYPE_DECIMAL,
		"blob":    COLUMN_TYPE_BLOB,
		"int":     COLUMN_TYPE_INT24,
	}
	for name, code := range cases {
		require.Equal(t, code, ConvertColTypeToEnums(name))
		require.Equal(t, name, ConvertColTypeToStr(code))
	}
}

func TestConvertColTypeToEnumsUnknownReturnsZero(t *testing.T) {
	require.Equal(t, byte(0), ConvertColTypeToEnums("nonsense"))
}
