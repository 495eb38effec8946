package merrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMapsKindToCode(t *testing.T) {
	err := New(KindUnknownTable, "Table '%s.%s' doesn't exist", "minisql", "ghosts")
	require.Equal(t, uint16(1146), err.Code)
	require.Equal(t, "42S02", err.SQLState)
	require.Equal(t, "Table 'minisql.ghosts' doesn't exist", err.Error())
}

func TestWrapKeepsCauseReachable(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindStorageIO, cause, "writing wal segment")

	require.Equal(t, uint16(1030), err.Code)
	require.ErrorIs(t, err, cause)
}

func TestAs(t *testing.T) {
	err := New(KindParseError, "bad syntax")
	me, ok := As(err)
	require.True(t, ok)
	require.Equal(t, KindParseError, me.Kind)

	_, ok = As(errors.New("plain"))
	require.False(t, ok)
}

func TestCodeOfFallsBackForPlainErrors(t *testing.T) {
	code, sqlState, msg := CodeOf(errors.New("boom"))
	require.Equal(t, uint16(1105), code)
	require.Equal(t, "HY000", sqlState)
	require.Equal(t, "boom", msg)
}

func TestCodeOfUsesWrappedError(t *testing.T) {
	err := fmt.Errorf("inserting row: %w", New(KindDuplicateKey, "Duplicate entry '1' for key 'PRIMARY'"))
	code, sqlState, msg := CodeOf(err)
	require.Equal(t, uint16(1062), code)
	require.Equal(t, "23000", sqlState)
	require.Equal(t, "Duplicate entry '1' for key 'PRIMARY'", msg)
}

func TestHelperConstructors(t *testing.T) {
	require.Contains(t, UnknownTable("", "widgets").Error(), "minisql.widgets")
	require.Contains(t, UnknownColumn("foo", "field list").Error(), "foo")
	require.Contains(t, DuplicateKey("1", "PRIMARY").Error(), "PRIMARY")
	require.Contains(t, ParseErrorNear("SELECT *").Error(), "SELECT *")
	require.Contains(t, AccessDenied("root", "localhost").Error(), "root")
}
