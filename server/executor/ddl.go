package executor

import (
	"strings"

	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqlparser"
	"github.com/minisql/minisql/server/sqltypes"
)

func (x *Executor) execCreateTable(stmt sqlparser.CreateTable) (*OkSummary, error) {
	if existing := x.Catalog.Get(stmt.Table); existing != nil {
		if stmt.IfNotExists {
			return &OkSummary{Info: "table already exists"}, nil
		}
		return nil, merrors.New(merrors.KindConstraintViolation, "Table '%s' already exists", stmt.Table)
	}

	schema := make(sqltypes.Schema, 0, len(stmt.Columns))
	for _, col := range stmt.Columns {
		def := sqltypes.ColumnDef{
			Name:          col.Name,
			Type:          col.Type,
			Nullable:      col.Nullable,
			PrimaryKey:    col.PrimaryKey,
			AutoIncrement: col.AutoIncrement,
			Length:        col.Length,
		}
		if col.HasDefault {
			zero := &rowContext{}
			v, err := zero.eval(col.Default)
			if err != nil {
				return nil, err
			}
			def.Default = v
			def.HasDefault = true
		}
		schema = append(schema, def)
	}

	t := &catalog.Table{
		Name:   stmt.Table,
		Schema: schema,
		Engine: catalog.Granite,
	}
	if err := x.Catalog.CreateTable(t); err != nil {
		return nil, err
	}
	eng := x.Engines.For(t.Engine)
	if err := eng.Open(t.Name, schema); err != nil {
		return nil, err
	}
	return &OkSummary{Info: "table created"}, nil
}

func (x *Executor) execDropTable(stmt sqlparser.DropTable) (*OkSummary, error) {
	t := x.Catalog.Get(stmt.Table)
	if t == nil {
		if stmt.IfExists {
			return &OkSummary{}, nil
		}
		return nil, merrors.UnknownTable("", stmt.Table)
	}
	eng := x.Engines.For(t.Engine)
	if err := x.Catalog.DropTable(stmt.Table, stmt.IfExists); err != nil {
		return nil, err
	}
	if err := eng.DropTable(stmt.Table); err != nil {
		return nil, err
	}
	return &OkSummary{}, nil
}

func (x *Executor) execTruncateTable(stmt sqlparser.TruncateTable) (*OkSummary, error) {
	t := x.Catalog.Get(stmt.Table)
	if t == nil {
		return nil, merrors.UnknownTable("", stmt.Table)
	}
	eng := x.Engines.For(t.Engine)
	txn, err := eng.Begin()
	if err != nil {
		return nil, err
	}
	if _, err := x.execDelete(t, txn, sqlparser.DeleteStmt{Table: stmt.Table}, nil); err != nil {
		_ = txn.Abort()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return &OkSummary{}, nil
}

func (x *Executor) execCreateIndex(stmt sqlparser.CreateIndex) (*OkSummary, error) {
	t := x.Catalog.Get(stmt.Table)
	if t == nil {
		return nil, merrors.UnknownTable("", stmt.Table)
	}
	idx := catalog.Index{Name: stmt.Name, Table: stmt.Table, Columns: stmt.Columns, Unique: stmt.Unique}
	if err := x.Catalog.CreateIndex(idx); err != nil {
		return nil, err
	}
	positions := make([]int, len(stmt.Columns))
	for i, col := range stmt.Columns {
		positions[i] = t.Schema.IndexOf(col)
	}
	eng := x.Engines.For(t.Engine)
	type indexCreator interface {
		CreateIndex(table, name string, columnPositions []int, unique bool) error
	}
	if ic, ok := eng.(indexCreator); ok {
		if err := ic.CreateIndex(stmt.Table, stmt.Name, positions, stmt.Unique); err != nil {
			return nil, err
		}
	}
	return &OkSummary{}, nil
}

func (x *Executor) execDropIndex(stmt sqlparser.DropIndex) (*OkSummary, error) {
	t := x.Catalog.Get(stmt.Table)
	if t == nil {
		return nil, merrors.UnknownTable("", stmt.Table)
	}
	if err := x.Catalog.DropIndex(stmt.Name, stmt.Table); err != nil {
		return nil, err
	}
	eng := x.Engines.For(t.Engine)
	type indexDropper interface {
		DropIndex(table, name string) error
	}
	if id, ok := eng.(indexDropper); ok {
		if err := id.DropIndex(stmt.Table, stmt.Name); err != nil {
			return nil, err
		}
	}
	return &OkSummary{}, nil
}

// execAlterEngine migrates table to the target engine, copying every row
// across via a full scan + reinsert before flipping the catalog tag — on
// any migration failure the catalog is left unchanged (spec.md §4.G
// failure semantics), per the Open Question decision in DESIGN.md: a
// target engine that cannot represent the table (e.g. no eligible primary
// key for Sandstone's keyed store) is NotSupported.
func (x *Executor) execAlterEngine(stmt sqlparser.AlterEngine) (*OkSummary, error) {
	t := x.Catalog.Get(stmt.Table)
	if t == nil {
		return nil, merrors.UnknownTable("", stmt.Table)
	}
	target := catalog.Engine(strings.ToUpper(stmt.Engine))
	if target != catalog.Granite && target != catalog.Sandstone {
		return nil, merrors.New(merrors.KindNotSupported, "unknown storage engine '%s'", stmt.Engine)
	}
	if target == t.Engine {
		return &OkSummary{}, nil
	}
	if target == catalog.Sandstone && t.PrimaryKeyColumn() < 0 {
		return nil, merrors.New(merrors.KindNotSupported, "table '%s' has no auto-increment primary key; cannot move to SANDSTONE", stmt.Table)
	}

	src := x.Engines.For(t.Engine)
	dst := x.Engines.For(target)
	if err := dst.Open(t.Name, t.Schema); err != nil {
		return nil, err
	}
	txn, err := dst.Begin()
	if err != nil {
		return nil, err
	}
	copyErr := src.Scan(nil, t.Name, func(id engine.RowID, row sqltypes.Row) (bool, error) {
		return true, dst.Insert(txn, t.Name, id, row)
	})
	if copyErr != nil {
		_ = txn.Abort()
		return nil, copyErr
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	if err := x.Catalog.AlterEngine(t.Name, target); err != nil {
		return nil, err
	}
	if err := src.DropTable(t.Name); err != nil {
		return nil, err
	}
	return &OkSummary{Info: "engine changed"}, nil
}
