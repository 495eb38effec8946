package granite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/sqltypes"
)

func widgetSchema() sqltypes.Schema {
	return sqltypes.Schema{
		{Name: "id", Type: sqltypes.Integer, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: sqltypes.Varchar},
	}
}

func TestInsertCommitAndReadRow(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())

	row, ok, err := e.ReadRow(txn, "widgets", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", row[1].Text())
}

func TestUncommittedInsertNotVisibleOutsideTxn(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))

	_, ok, err := e.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.False(t, ok, "uncommitted writes must not be visible to a txn-less read")

	require.NoError(t, txn.Abort())
	_, ok, err = e.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxnSeesItsOwnUncommittedWrites(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))

	row, ok, err := e.ReadRow(txn, "widgets", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", row[1].Text())
}

func TestScanReflectsCommittedRows(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, e.Insert(txn, "widgets", 2, sqltypes.Row{sqltypes.IntValue(2), sqltypes.VarcharValue("b")}))
	require.NoError(t, txn.Commit())

	seen := map[engine.RowID]bool{}
	require.NoError(t, e.Scan(nil, "widgets", func(id engine.RowID, row sqltypes.Row) (bool, error) {
		seen[id] = true
		return true, nil
	}))
	require.Len(t, seen, 2)
}

func TestUpdateAndDelete(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())

	txn2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Update(txn2, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("b")}))
	require.NoError(t, txn2.Commit())

	row, _, _ := e.ReadRow(nil, "widgets", 1)
	require.Equal(t, "b", row[1].Text())

	txn3, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Delete(txn3, "widgets", 1))
	require.NoError(t, txn3.Commit())

	_, ok, _ := e.ReadRow(nil, "widgets", 1)
	require.False(t, ok)
}

func TestAbortDiscardsWriteSet(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Abort())
	require.NoError(t, txn.Commit(), "committing an aborted txn is a no-op, not an error")

	_, ok, _ := e.ReadRow(nil, "widgets", 1)
	require.False(t, ok)
}

func TestUniqueIndexRejectsDuplicateKey(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))
	require.NoError(t, e.CreateIndex("widgets", "idx_name", []int{1}, true))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())

	txn2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn2, "widgets", 2, sqltypes.Row{sqltypes.IntValue(2), sqltypes.VarcharValue("a")}))
	err = txn2.Commit()
	require.Error(t, err)
}

func TestIndexProbeFindsMatchingRows(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))
	require.NoError(t, e.CreateIndex("widgets", "idx_name", []int{1}, false))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, e.Insert(txn, "widgets", 2, sqltypes.Row{sqltypes.IntValue(2), sqltypes.VarcharValue("b")}))
	require.NoError(t, txn.Commit())

	var found []engine.RowID
	require.NoError(t, e.IndexProbe(nil, "widgets", "idx_name", sqltypes.VarcharValue("a"), func(id engine.RowID, row sqltypes.Row) (bool, error) {
		found = append(found, id)
		return true, nil
	}))
	require.Equal(t, []engine.RowID{1}, found)
}

func TestDropIndexStopsEnforcingUniqueness(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))
	require.NoError(t, e.CreateIndex("widgets", "idx_name", []int{1}, true))
	require.NoError(t, e.DropIndex("widgets", "idx_name"))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())

	txn2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn2, "widgets", 2, sqltypes.Row{sqltypes.IntValue(2), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn2.Commit())
}

func TestFlushThenReopenLoadsFromDataFile(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())
	require.NoError(t, e.Flush("widgets"))
	require.NoError(t, e.Close())

	e2, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e2.Open("widgets", widgetSchema()))

	row, ok, err := e2.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", row[1].Text())
}

// TestReopenReplaysCommittedWALWithoutFlush simulates crash recovery: a
// committed transaction survives a fresh Engine opened against the same
// dataDir without an intervening Flush, because Open replays the WAL.
func TestReopenReplaysCommittedWALWithoutFlush(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())
	require.NoError(t, e.Close())

	e2, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e2.Open("widgets", widgetSchema()))

	row, ok, err := e2.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", row[1].Text())
}

func TestReopenDoesNotReplayUncommittedTxn(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	// Intentionally never commit txn, simulating a crash mid-transaction.
	require.NoError(t, e.Close())

	e2, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e2.Open("widgets", widgetSchema()))

	_, ok, err := e2.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckpointThenVacuumTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())

	require.NoError(t, e.Checkpoint(nil))
	require.NoError(t, e.Vacuum())

	info, err := os.Stat(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	require.Zero(t, info.Size())

	row, ok, err := e.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", row[1].Text())
}

func TestVacuumPreservesDataAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())
	require.NoError(t, e.Vacuum())
	require.NoError(t, e.Close())

	e2, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e2.Open("widgets", widgetSchema()))

	row, ok, err := e2.ReadRow(nil, "widgets", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", row[1].Text())
}

func TestDropTableRemovesDataFile(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))
	require.NoError(t, e.Flush("widgets"))
	require.NoError(t, e.DropTable("widgets"))

	require.NoFileExists(t, filepath.Join(dir, "tables", "widgets.dat"))
}

func TestOpenIsIdempotentPerEngineInstance(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Open("widgets", widgetSchema()))

	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(txn, "widgets", 1, sqltypes.Row{sqltypes.IntValue(1), sqltypes.VarcharValue("a")}))
	require.NoError(t, txn.Commit())

	require.NoError(t, e.Open("widgets", widgetSchema()))
	_, ok, _ := e.ReadRow(nil, "widgets", 1)
	require.True(t, ok, "re-Open on an already-open table must not clear its rows")
}
