package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqltypes"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	c, err := Open(path)
	require.NoError(t, err)
	return c
}

func widgetsTable() *Table {
	return &Table{
		Name:   "widgets",
		Engine: Granite,
		Schema: sqltypes.Schema{
			{Name: "id", Type: sqltypes.Integer, PrimaryKey: true, AutoIncrement: true},
			{Name: "name", Type: sqltypes.Varchar},
		},
	}
}

func TestCreateAndGetTable(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateTable(widgetsTable()))

	got := c.Get("WIDGETS")
	require.NotNil(t, got)
	require.Equal(t, "widgets", got.Name)

	require.Nil(t, c.Get("missing"))
}

func TestCreateTableDuplicate(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateTable(widgetsTable()))
	err := c.CreateTable(widgetsTable())
	require.Error(t, err)
	merr, ok := merrors.As(err)
	require.True(t, ok)
	require.Equal(t, merrors.KindConstraintViolation, merr.Kind)
}

func TestDropTable(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateTable(widgetsTable()))
	require.NoError(t, c.DropTable("widgets", false))
	require.Nil(t, c.Get("widgets"))

	require.Error(t, c.DropTable("widgets", false))
	require.NoError(t, c.DropTable("widgets", true))
}

func TestTablesOrderedByName(t *testing.T) {
	c := newTestCatalog(t)
	for _, name := range []string{"zebra", "apple", "mango"} {
		tbl := widgetsTable()
		tbl.Name = name
		require.NoError(t, c.CreateTable(tbl))
	}
	tables := c.Tables()
	require.Len(t, tables, 3)
	require.Equal(t, []string{"apple", "mango", "zebra"}, []string{tables[0].Name, tables[1].Name, tables[2].Name})
}

func TestNextAutoIncrement(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateTable(widgetsTable()))

	v1, err := c.NextAutoIncrement("widgets")
	require.NoError(t, err)
	require.Equal(t, int64(1), v1)

	v2, err := c.NextAutoIncrement("widgets")
	require.NoError(t, err)
	require.Equal(t, int64(2), v2)
}

func TestCreateIndex(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateTable(widgetsTable()))

	require.NoError(t, c.CreateIndex(Index{Name: "idx_name", Table: "widgets", Columns: []string{"name"}}))
	require.Error(t, c.CreateIndex(Index{Name: "idx_name", Table: "widgets", Columns: []string{"name"}}))
	require.Error(t, c.CreateIndex(Index{Name: "idx_bad", Table: "widgets", Columns: []string{"nope"}}))

	require.NoError(t, c.DropIndex("idx_name", "widgets"))
	require.Error(t, c.DropIndex("idx_name", "widgets"))
}

func TestCatalogPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	c1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c1.CreateTable(widgetsTable()))
	if _, err := c1.NextAutoIncrement("widgets"); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(path)
	require.NoError(t, err)
	got := c2.Get("widgets")
	require.NotNil(t, got)
	require.Equal(t, int64(1), got.AutoIncrement)
}

func TestPrimaryKeyColumn(t *testing.T) {
	tbl := widgetsTable()
	require.Equal(t, 0, tbl.PrimaryKeyColumn())

	noPK := &Table{Schema: sqltypes.Schema{{Name: "x", Type: sqltypes.Varchar}}}
	require.Equal(t, -1, noPK.PrimaryKeyColumn())
}
