package executor

import (
	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqlparser"
	"github.com/minisql/minisql/server/sqltypes"
)

// execInsert evaluates each VALUES row, fills in defaults/auto-increment,
// and inserts under txn. Per spec.md §4.G: an INSERT omitting the
// auto-increment column allocates max(counter+1, max(existing)+1); an
// explicit larger value bumps the counter. last_insert_id is set to the
// generated key, or the first row's explicit key if larger.
func (x *Executor) execInsert(t *catalog.Table, txn engine.Txn, stmt sqlparser.InsertStmt, params []sqltypes.Value) (*OkSummary, error) {
	eng := x.Engines.For(t.Engine)
	pkPos := t.PrimaryKeyColumn()

	positions := make([]int, len(stmt.Columns))
	if len(stmt.Columns) == 0 {
		positions = make([]int, len(t.Schema))
		for i := range t.Schema {
			positions[i] = i
		}
	} else {
		for i, col := range stmt.Columns {
			pos := t.Schema.IndexOf(col)
			if pos < 0 {
				return nil, merrors.UnknownColumn(col, t.Name)
			}
			positions[i] = pos
		}
	}

	var lastInsertID int64
	var affected uint64
	ctx := &rowContext{params: params}

	for rowIdx, valExprs := range stmt.Rows {
		if len(valExprs) != len(positions) {
			return nil, merrors.New(merrors.KindParseError, "column count doesn't match value count")
		}
		row := make(sqltypes.Row, len(t.Schema))
		for i, def := range t.Schema {
			if def.HasDefault {
				row[i] = def.Default
			} else {
				row[i] = sqltypes.NullValue()
			}
		}
		for i, pos := range positions {
			v, err := ctx.eval(valExprs[i])
			if err != nil {
				return nil, err
			}
			row[pos] = v
		}

		var id int64
		if pkPos >= 0 {
			if row[pkPos].IsNull() {
				next, err := x.Catalog.NextAutoIncrement(t.Name)
				if err != nil {
					return nil, err
				}
				id = next
				row[pkPos] = sqltypes.IntValue(id)
			} else {
				id = row[pkPos].Int()
				if err := x.bumpAutoIncrement(t, id); err != nil {
					return nil, err
				}
			}
			if rowIdx == 0 {
				lastInsertID = id
			}
		} else {
			next, err := x.Catalog.NextAutoIncrement(t.Name)
			if err != nil {
				return nil, err
			}
			id = next
		}

		if err := eng.Insert(txn, t.Name, engine.RowID(id), row); err != nil {
			return nil, err
		}
		affected++
	}

	return &OkSummary{AffectedRows: affected, LastInsertID: uint64(lastInsertID)}, nil
}

// bumpAutoIncrement advances the catalog's counter to at least id, so a
// later implicit insert never collides with an explicitly-inserted key.
func (x *Executor) bumpAutoIncrement(t *catalog.Table, id int64) error {
	if id <= t.AutoIncrement {
		return nil
	}
	for t.AutoIncrement < id {
		if _, err := x.Catalog.NextAutoIncrement(t.Name); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) execUpdate(t *catalog.Table, txn engine.Txn, stmt sqlparser.UpdateStmt, params []sqltypes.Value) (*OkSummary, error) {
	eng := x.Engines.For(t.Engine)
	var affected uint64

	err := eng.Scan(txn, t.Name, func(id engine.RowID, row sqltypes.Row) (bool, error) {
		ctx := &rowContext{params: params, rows: []boundRow{{table: t.Name, schema: t.Schema, row: row}}}
		if stmt.Where != nil {
			keep, err := ctx.eval(stmt.Where)
			if err != nil {
				return false, err
			}
			if keep.IsNull() || !truthy(keep) {
				return true, nil
			}
		}
		newRow := row.Clone()
		for _, a := range stmt.Sets {
			pos := t.Schema.IndexOf(a.Column)
			if pos < 0 {
				return false, merrors.UnknownColumn(a.Column, t.Name)
			}
			v, err := ctx.eval(a.Value)
			if err != nil {
				return false, err
			}
			newRow[pos] = v
		}
		if err := eng.Update(txn, t.Name, id, newRow); err != nil {
			return false, err
		}
		affected++
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &OkSummary{AffectedRows: affected}, nil
}

func (x *Executor) execDelete(t *catalog.Table, txn engine.Txn, stmt sqlparser.DeleteStmt, params []sqltypes.Value) (*OkSummary, error) {
	eng := x.Engines.For(t.Engine)
	var affected uint64
	var toDelete []engine.RowID

	err := eng.Scan(txn, t.Name, func(id engine.RowID, row sqltypes.Row) (bool, error) {
		ctx := &rowContext{params: params, rows: []boundRow{{table: t.Name, schema: t.Schema, row: row}}}
		if stmt.Where != nil {
			keep, err := ctx.eval(stmt.Where)
			if err != nil {
				return false, err
			}
			if keep.IsNull() || !truthy(keep) {
				return true, nil
			}
		}
		toDelete = append(toDelete, id)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	for _, id := range toDelete {
		if err := eng.Delete(txn, t.Name, id); err != nil {
			return nil, err
		}
		affected++
	}
	return &OkSummary{AffectedRows: affected}, nil
}
