package net

import (
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/engine/granite"
	"github.com/minisql/minisql/server/engine/sandstone"
	"github.com/minisql/minisql/server/executor"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.Open(dir + "/catalog.json")
	require.NoError(t, err)
	graniteEngine, err := granite.New(dir + "/granite")
	require.NoError(t, err)
	engines := &executor.Engines{Granite: graniteEngine, Sandstone: sandstone.New(1)}
	exec := executor.New(cat, engines)

	srv, err := New("127.0.0.1:0", exec, cat, "root", "secret")
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv.Addr().String()
}

// TestMySQLClientRoundTrip drives MiniSQL with a real database/sql +
// go-sql-driver/mysql client end to end: DDL, parameterized INSERT via a
// prepared statement, and a SELECT read back over the binary protocol.
func TestMySQLClientRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	dsn := "root:secret@tcp(" + addr + ")/minisql"

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE widgets (id INT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(64))")
	require.NoError(t, err)

	stmt, err := db.Prepare("INSERT INTO widgets (name) VALUES (?)")
	require.NoError(t, err)
	defer stmt.Close()

	res, err := stmt.Exec("sprocket")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	rows, err := db.Query("SELECT id, name FROM widgets WHERE id = ?", id)
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var gotID int64
	var gotName string
	require.NoError(t, rows.Scan(&gotID, &gotName))
	require.Equal(t, int64(1), gotID)
	require.Equal(t, "sprocket", gotName)
	require.False(t, rows.Next())
}

func TestAuthFailureClosesConnection(t *testing.T) {
	addr := startTestServer(t)
	db, err := sql.Open("mysql", "root:wrong@tcp("+addr+")/minisql")
	require.NoError(t, err)
	defer db.Close()

	err = db.Ping()
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	addr := startTestServer(t)
	db, err := sql.Open("mysql", "root:secret@tcp("+addr+")/minisql")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())
}

