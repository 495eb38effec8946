package executor

import (
	"strings"

	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/session"
	"github.com/minisql/minisql/server/sqlparser"
	"github.com/minisql/minisql/server/sqltypes"
)

// Execute runs one parsed statement for sess, returning either a result set
// (SELECT/SHOW/DESCRIBE) or an OK summary (everything else). Statements
// that mutate a table run inside sess's open explicit transaction if one
// exists, else an implicit one-statement transaction against that table's
// engine — committed on success, aborted on any error, per spec.md §4.G's
// failure semantics.
func (x *Executor) Execute(sess *session.Session, stmt sqlparser.Statement, params []sqltypes.Value) (*ResultSet, *OkSummary, error) {
	switch s := stmt.(type) {
	case sqlparser.CreateTable:
		ok, err := x.execCreateTable(s)
		return nil, ok, err
	case sqlparser.DropTable:
		ok, err := x.execDropTable(s)
		return nil, ok, err
	case sqlparser.TruncateTable:
		ok, err := x.execTruncateTable(s)
		return nil, ok, err
	case sqlparser.CreateIndex:
		ok, err := x.execCreateIndex(s)
		return nil, ok, err
	case sqlparser.DropIndex:
		ok, err := x.execDropIndex(s)
		return nil, ok, err
	case sqlparser.AlterEngine:
		ok, err := x.execAlterEngine(s)
		return nil, ok, err
	case sqlparser.ShowTables:
		rs, err := x.execShowTables()
		return rs, nil, err
	case sqlparser.Describe:
		rs, err := x.execDescribe(s)
		return rs, nil, err
	case sqlparser.Vacuum:
		ok, err := x.execVacuum()
		return nil, ok, err
	case sqlparser.Checkpoint:
		ok, err := x.execCheckpoint()
		return nil, ok, err
	case sqlparser.BeginStmt:
		if _, err := sess.BeginTxn(x.Engines.Granite); err != nil {
			return nil, nil, err
		}
		return nil, &OkSummary{Info: "started transaction"}, nil
	case sqlparser.CommitStmt:
		return nil, x.endExplicitTxn(sess, true)
	case sqlparser.RollbackStmt:
		return nil, x.endExplicitTxn(sess, false)
	case sqlparser.InsertStmt:
		return x.runMutation(sess, s.Table, func(t *catalog.Table, txn engine.Txn) (*OkSummary, error) {
			ok, err := x.execInsert(t, txn, s, params)
			if err == nil && t.PrimaryKeyColumn() >= 0 {
				sess.SetLastInsertID(ok.LastInsertID)
			}
			return ok, err
		})
	case sqlparser.UpdateStmt:
		return x.runMutation(sess, s.Table, func(t *catalog.Table, txn engine.Txn) (*OkSummary, error) {
			return x.execUpdate(t, txn, s, params)
		})
	case sqlparser.DeleteStmt:
		return x.runMutation(sess, s.Table, func(t *catalog.Table, txn engine.Txn) (*OkSummary, error) {
			return x.execDelete(t, txn, s, params)
		})
	case sqlparser.SelectStmt:
		txn := sess.CurrentTxn()
		rs, err := x.execSelectWithLastInsertID(s, txn, params, sess.LastInsertID())
		return rs, nil, err
	default:
		return nil, nil, merrors.New(merrors.KindInternal, "unhandled statement type %T", stmt)
	}
}

// runMutation resolves table's engine, binds sess's open explicit
// transaction or opens an implicit one-statement transaction, runs fn, and
// commits/aborts accordingly.
func (x *Executor) runMutation(sess *session.Session, table string, fn func(t *catalog.Table, txn engine.Txn) (*OkSummary, error)) (*ResultSet, *OkSummary, error) {
	t := x.Catalog.Get(table)
	if t == nil {
		return nil, nil, merrors.UnknownTable("", table)
	}
	eng := x.Engines.For(t.Engine)

	if sess.InTxn() {
		txn := sess.CurrentTxn()
		ok, err := fn(t, txn)
		if err != nil {
			// The transaction is marked for rollback-on-commit by the
			// caller's subsequent COMMIT failing; we don't abort it here
			// since sess still owns it until an explicit COMMIT/ROLLBACK.
			return nil, nil, err
		}
		return nil, ok, nil
	}

	txn, err := eng.Begin()
	if err != nil {
		return nil, nil, err
	}
	ok, err := fn(t, txn)
	if err != nil {
		_ = txn.Abort()
		return nil, nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, nil, err
	}
	return nil, ok, nil
}

func (x *Executor) endExplicitTxn(sess *session.Session, commit bool) (*OkSummary, error) {
	txn := sess.CurrentTxn()
	if txn == nil {
		return nil, merrors.New(merrors.KindTxnAborted, "no transaction is active")
	}
	var err error
	if commit {
		err = txn.Commit()
	} else {
		err = txn.Abort()
	}
	sess.EndTxn()
	if err != nil {
		return nil, err
	}
	info := "rolled back"
	if commit {
		info = "committed"
	}
	return &OkSummary{Info: info}, nil
}

func (x *Executor) execShowTables() (*ResultSet, error) {
	tables := x.Catalog.Tables()
	rows := make([]sqltypes.Row, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, sqltypes.Row{sqltypes.VarcharValue(t.Name)})
	}
	return &ResultSet{
		Columns: []Column{{Name: "Tables", Def: sqltypes.ColumnDef{Name: "Tables", Type: sqltypes.Varchar}}},
		Rows:    rows,
	}, nil
}

func (x *Executor) execDescribe(stmt sqlparser.Describe) (*ResultSet, error) {
	t := x.Catalog.Get(stmt.Table)
	if t == nil {
		return nil, merrors.UnknownTable("", stmt.Table)
	}
	columns := []Column{
		{Name: "Field", Def: sqltypes.ColumnDef{Name: "Field", Type: sqltypes.Varchar}},
		{Name: "Type", Def: sqltypes.ColumnDef{Name: "Type", Type: sqltypes.Varchar}},
		{Name: "Null", Def: sqltypes.ColumnDef{Name: "Null", Type: sqltypes.Varchar}},
		{Name: "Key", Def: sqltypes.ColumnDef{Name: "Key", Type: sqltypes.Varchar}},
		{Name: "Extra", Def: sqltypes.ColumnDef{Name: "Extra", Type: sqltypes.Varchar}},
	}
	rows := make([]sqltypes.Row, 0, len(t.Schema))
	for _, def := range t.Schema {
		null := "YES"
		if !def.Nullable {
			null = "NO"
		}
		key := ""
		if def.PrimaryKey {
			key = "PRI"
		}
		extra := ""
		if def.AutoIncrement {
			extra = "auto_increment"
		}
		rows = append(rows, sqltypes.Row{
			sqltypes.VarcharValue(def.Name),
			sqltypes.VarcharValue(def.Type.String()),
			sqltypes.VarcharValue(null),
			sqltypes.VarcharValue(key),
			sqltypes.VarcharValue(extra),
		})
	}
	return &ResultSet{Columns: columns, Rows: rows}, nil
}

// execVacuum flushes and compacts every table's on-disk representation on
// each engine that implements Vacuum (Granite; in-memory Sandstone has
// none), per spec.md §4.E.
func (x *Executor) execVacuum() (*OkSummary, error) {
	type vacuumer interface{ Vacuum() error }
	for _, eng := range []engine.Engine{x.Engines.Granite, x.Engines.Sandstone} {
		if v, ok := eng.(vacuumer); ok {
			if err := v.Vacuum(); err != nil {
				return nil, err
			}
		}
	}
	return &OkSummary{Info: "vacuum complete"}, nil
}

// execCheckpoint writes a durable checkpoint marker to Granite's WAL. No
// other connection's in-flight transactions are tracked here (the
// server-wide active-transaction set lives with the net/session layer, out
// of the executor's scope), so the marker always lists none active.
func (x *Executor) execCheckpoint() (*OkSummary, error) {
	type checkpointer interface{ Checkpoint([]uint64) error }
	if c, ok := x.Engines.Granite.(checkpointer); ok {
		if err := c.Checkpoint(nil); err != nil {
			return nil, err
		}
	}
	return &OkSummary{Info: "checkpoint complete"}, nil
}

// execSelectWithLastInsertID runs a SELECT, resolving any LAST_INSERT_ID()
// projection/predicate reference against the session's connection-local
// value per spec.md §4.G. The rewrite builds fresh expression trees rather
// than mutating stmt's — a prepared statement's AST is cached and re-used
// across executions, so mutating it in place would leak one execution's
// last_insert_id into the next.
func (x *Executor) execSelectWithLastInsertID(stmt sqlparser.SelectStmt, txn engine.Txn, params []sqltypes.Value, lastInsertID uint64) (*ResultSet, error) {
	rewritten := make([]sqlparser.Projection, len(stmt.Projections))
	for i, p := range stmt.Projections {
		rewritten[i] = p
		if p.Expr != nil {
			rewritten[i].Expr = rewriteLastInsertIDExpr(p.Expr, lastInsertID)
		}
	}
	stmt.Projections = rewritten
	if stmt.Where != nil {
		stmt.Where = rewriteLastInsertIDExpr(stmt.Where, lastInsertID)
	}
	return x.execSelect(stmt, txn, params)
}

// rewriteLastInsertIDExpr replaces every LAST_INSERT_ID() call in expr with
// a literal carrying the session's current value, since rowContext has no
// session awareness of its own. Always returns a new node for any subtree
// containing the call, leaving shared subtrees (and the original) intact.
func rewriteLastInsertIDExpr(expr sqlparser.Expr, id uint64) sqlparser.Expr {
	switch e := expr.(type) {
	case sqlparser.FuncCall:
		if strings.EqualFold(e.Name, "LAST_INSERT_ID") {
			return sqlparser.LiteralExpr{Value: sqltypes.IntValue(int64(id))}
		}
		args := make([]sqlparser.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = rewriteLastInsertIDExpr(a, id)
		}
		e.Args = args
		return e
	case sqlparser.BinaryExpr:
		e.Left = rewriteLastInsertIDExpr(e.Left, id)
		e.Right = rewriteLastInsertIDExpr(e.Right, id)
		return e
	case sqlparser.UnaryExpr:
		e.X = rewriteLastInsertIDExpr(e.X, id)
		return e
	case sqlparser.IsNullExpr:
		e.X = rewriteLastInsertIDExpr(e.X, id)
		return e
	case sqlparser.InExpr:
		e.X = rewriteLastInsertIDExpr(e.X, id)
		list := make([]sqlparser.Expr, len(e.List))
		for i, item := range e.List {
			list[i] = rewriteLastInsertIDExpr(item, id)
		}
		e.List = list
		return e
	default:
		return expr
	}
}
