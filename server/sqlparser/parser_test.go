package sqlparser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minisql/minisql/server/sqltypes"
)

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE IF NOT EXISTS widgets (
		id INT PRIMARY KEY AUTO_INCREMENT,
		name VARCHAR(64) NOT NULL,
		price FLOAT
	)`)
	require.NoError(t, err)
	ct, ok := stmt.(CreateTable)
	require.True(t, ok)
	require.True(t, ct.IfNotExists)
	require.Equal(t, "widgets", ct.Table)
	require.Len(t, ct.Columns, 3)
	require.Equal(t, "id", ct.Columns[0].Name)
	require.True(t, ct.Columns[0].PrimaryKey)
	require.True(t, ct.Columns[0].AutoIncrement)
	require.Equal(t, sqltypes.Varchar, ct.Columns[1].Type)
	require.Equal(t, 64, ct.Columns[1].Length)
}

func TestParseDropTable(t *testing.T) {
	stmt, err := Parse("DROP TABLE IF EXISTS widgets")
	require.NoError(t, err)
	dt, ok := stmt.(DropTable)
	require.True(t, ok)
	require.True(t, dt.IfExists)
	require.Equal(t, "widgets", dt.Table)
}

func TestParseCreateIndex(t *testing.T) {
	stmt, err := Parse("CREATE UNIQUE INDEX idx_name ON widgets (name)")
	require.NoError(t, err)
	ci, ok := stmt.(CreateIndex)
	require.True(t, ok)
	require.True(t, ci.Unique)
	require.Equal(t, []string{"name"}, ci.Columns)
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO widgets (name, price) VALUES ('sprocket', 9.99)")
	require.NoError(t, err)
	ins, ok := stmt.(InsertStmt)
	require.True(t, ok)
	require.Equal(t, "widgets", ins.Table)
	require.Equal(t, []string{"name", "price"}, ins.Columns)
	require.Len(t, ins.Rows, 1)
	require.Len(t, ins.Rows[0], 2)
}

func TestParseInsertWithParams(t *testing.T) {
	stmt, numParams, err := ParseWithParamCount("INSERT INTO widgets (name) VALUES (?)")
	require.NoError(t, err)
	require.Equal(t, 1, numParams)
	ins, ok := stmt.(InsertStmt)
	require.True(t, ok)
	pe, ok := ins.Rows[0][0].(ParamExpr)
	require.True(t, ok)
	require.Equal(t, 0, pe.Index)
}

func TestParseUpdate(t *testing.T) {
	stmt, err := Parse("UPDATE widgets SET price = price + 1 WHERE id = 1")
	require.NoError(t, err)
	upd, ok := stmt.(UpdateStmt)
	require.True(t, ok)
	require.Equal(t, "widgets", upd.Table)
	require.Len(t, upd.Sets, 1)
	require.Equal(t, "price", upd.Sets[0].Column)
	require.NotNil(t, upd.Where)
}

func TestParseDelete(t *testing.T) {
	stmt, err := Parse("DELETE FROM widgets WHERE id = 1")
	require.NoError(t, err)
	del, ok := stmt.(DeleteStmt)
	require.True(t, ok)
	require.Equal(t, "widgets", del.Table)
}

func TestParseSelectBasic(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM widgets WHERE price > 5 ORDER BY name DESC LIMIT 10 OFFSET 2")
	require.NoError(t, err)
	sel, ok := stmt.(SelectStmt)
	require.True(t, ok)
	require.Len(t, sel.Projections, 2)
	require.Equal(t, "widgets", sel.Table)
	require.NotNil(t, sel.Where)
	require.Len(t, sel.OrderBy, 1)
	require.True(t, sel.OrderBy[0].Desc)
	require.NotNil(t, sel.Limit)
	require.EqualValues(t, 10, *sel.Limit)
	require.NotNil(t, sel.Offset)
	require.EqualValues(t, 2, *sel.Offset)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM widgets")
	require.NoError(t, err)
	sel := stmt.(SelectStmt)
	require.Len(t, sel.Projections, 1)
	require.True(t, sel.Projections[0].Star)
}

func TestParseSelectJoin(t *testing.T) {
	stmt, err := Parse("SELECT w.id FROM widgets w LEFT JOIN orders o ON o.widget_id = w.id")
	require.NoError(t, err)
	sel := stmt.(SelectStmt)
	require.Equal(t, "w", sel.Alias)
	require.Len(t, sel.Joins, 1)
	require.Equal(t, LeftJoin, sel.Joins[0].Kind)
	require.Equal(t, "orders", sel.Joins[0].Table)
}

func TestParseSelectAggregateAndGroupBy(t *testing.T) {
	stmt, err := Parse("SELECT COUNT(*), SUM(price) FROM widgets GROUP BY name")
	require.NoError(t, err)
	sel := stmt.(SelectStmt)
	require.Len(t, sel.Projections, 2)
	fc, ok := sel.Projections[0].Expr.(FuncCall)
	require.True(t, ok)
	require.Equal(t, "COUNT", fc.Name)
	require.True(t, fc.Star)
	require.Len(t, sel.GroupBy, 1)
}

func TestParseWhereInAndIsNull(t *testing.T) {
	stmt, err := Parse("SELECT id FROM widgets WHERE id IN (1, 2, 3) AND name IS NOT NULL")
	require.NoError(t, err)
	sel := stmt.(SelectStmt)
	and, ok := sel.Where.(BinaryExpr)
	require.True(t, ok)
	require.Equal(t, "AND", and.Op)
	in, ok := and.Left.(InExpr)
	require.True(t, ok)
	require.Len(t, in.List, 3)
	isNull, ok := and.Right.(IsNullExpr)
	require.True(t, ok)
	require.True(t, isNull.Not)
}

func TestParseBeginCommitRollback(t *testing.T) {
	for sql, want := range map[string]Statement{
		"BEGIN":    BeginStmt{},
		"COMMIT":   CommitStmt{},
		"ROLLBACK": RollbackStmt{},
	} {
		stmt, err := Parse(sql)
		require.NoError(t, err)
		require.IsType(t, want, stmt)
	}
}

func TestParseShowTablesAndDescribe(t *testing.T) {
	stmt, err := Parse("SHOW TABLES")
	require.NoError(t, err)
	require.IsType(t, ShowTables{}, stmt)

	stmt, err = Parse("DESCRIBE widgets")
	require.NoError(t, err)
	desc, ok := stmt.(Describe)
	require.True(t, ok)
	require.Equal(t, "widgets", desc.Table)
}

func TestParseAlterEngine(t *testing.T) {
	stmt, err := Parse("ALTER TABLE widgets ENGINE = SANDSTONE")
	require.NoError(t, err)
	ae, ok := stmt.(AlterEngine)
	require.True(t, ok)
	require.Equal(t, "widgets", ae.Table)
	require.Equal(t, "SANDSTONE", ae.Engine)
}

func TestParseSyntaxErrorNearToken(t *testing.T) {
	_, err := Parse("SELECT FROM")
	require.Error(t, err)
}

func TestParseTruncate(t *testing.T) {
	stmt, err := Parse("TRUNCATE TABLE widgets")
	require.NoError(t, err)
	require.Equal(t, "widgets", stmt.(TruncateTable).Table)
}
