package sandstone

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/sqltypes"
)

func schema() sqltypes.Schema {
	return sqltypes.Schema{
		{Name: "id", Type: sqltypes.Integer, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: sqltypes.Varchar},
	}
}

func TestInsertAndReadRow(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	txn, err := e.Begin()
	require.NoError(t, err)

	row := sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}
	require.NoError(t, e.Insert(txn, "widgets", 1, row))
	require.NoError(t, txn.Commit())

	got, ok, err := e.ReadRow(txn, "widgets", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got[1].Text())
}

func TestReadRowMissingReturnsNotOK(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	_, ok, err := e.ReadRow(nil, "widgets", 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScanVisitsAllRows(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	require.NoError(t, e.Insert(nil, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, e.Insert(nil, "widgets", 2, sqltypes.Row{sqltypes.IntValue(2), sqltypes.VarcharValue("b")}))

	seen := map[engine.RowID]bool{}
	require.NoError(t, e.Scan(nil, "widgets", func(id engine.RowID, row sqltypes.Row) (bool, error) {
		seen[id] = true
		return true, nil
	}))
	require.Len(t, seen, 2)
}

func TestScanStopsWhenCallbackReturnsFalse(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	for i := engine.RowID(1); i <= 5; i++ {
		require.NoError(t, e.Insert(nil, "widgets", i, sqltypes.Row{sqltypes.IntValue(int64(i))}))
	}
	count := 0
	require.NoError(t, e.Scan(nil, "widgets", func(id engine.RowID, row sqltypes.Row) (bool, error) {
		count++
		return false, nil
	}))
	require.Equal(t, 1, count)
}

func TestUpdateLastWriterWins(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	require.NoError(t, e.Insert(nil, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))

	require.NoError(t, e.Update(nil, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("b")}))
	row, _, _ := e.ReadRow(nil, "widgets", 1)
	require.Equal(t, "b", row[1].Text())
}

func TestWinsOriginTiebreak(t *testing.T) {
	require.True(t, wins(5, 2, 5, 1))
	require.False(t, wins(5, 1, 5, 2))
	require.True(t, wins(6, 0, 5, 99))
}

func TestDeleteRemovesRow(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	require.NoError(t, e.Insert(nil, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1)}))
	require.NoError(t, e.Delete(nil, "widgets", 1))
	_, ok, _ := e.ReadRow(nil, "widgets", 1)
	require.False(t, ok)
}

func TestIndexProbeDegradesToFullScan(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	require.NoError(t, e.Insert(nil, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, e.Insert(nil, "widgets", 2, sqltypes.Row{sqltypes.IntValue(2), sqltypes.VarcharValue("b")}))

	var rows []sqltypes.Row
	require.NoError(t, e.IndexProbe(nil, "widgets", "idx_name", sqltypes.VarcharValue("a"), func(id engine.RowID, row sqltypes.Row) (bool, error) {
		rows = append(rows, row)
		return true, nil
	}))
	require.Len(t, rows, 2)
}

func TestDropTableRemovesData(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	require.NoError(t, e.Insert(nil, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1)}))
	require.NoError(t, e.DropTable("widgets"))

	_, ok, err := e.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenIsIdempotent(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Open("widgets", schema()))
	require.NoError(t, e.Insert(nil, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1)}))
	require.NoError(t, e.Open("widgets", schema()))

	_, ok, _ := e.ReadRow(nil, "widgets", 1)
	require.True(t, ok, "re-opening an existing table must not clear its rows")
}
