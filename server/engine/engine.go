// Package engine defines the storage-engine capability interface shared by
// Granite (durable, WAL-backed) and Sandstone (in-memory, last-writer-wins)
// so the executor can treat either uniformly.
package engine

import "github.com/minisql/minisql/server/sqltypes"

// RowID identifies a row within one table's engine-local storage. For
// Granite this is the table's primary-key value when one exists, or an
// internally-assigned sequence otherwise; for Sandstone it is always the
// row's key.
type RowID uint64

// Txn is a handle to an in-flight transaction on one engine. Sandstone's
// Txn implementations are no-ops beyond bookkeeping, since Sandstone has no
// durability or isolation to manage.
type Txn interface {
	// Commit finalizes the transaction's writes.
	Commit() error
	// Abort discards the transaction's writes.
	Abort() error
}

// Engine is the storage capability surface required by the executor and
// catalog maintenance operations. A table is bound to exactly one Engine
// instance for the lifetime of its engine tag.
type Engine interface {
	// Open prepares (or creates) the on-disk/in-memory state for table.
	Open(table string, schema sqltypes.Schema) error

	// Begin starts a transaction. Sandstone returns a no-op Txn since it has
	// no transactional semantics; Granite returns a real WAL-backed one.
	Begin() (Txn, error)

	// ReadRow fetches one row by id, or ok=false if it doesn't exist (or was
	// deleted in a still-open shadow the caller's snapshot shouldn't see).
	ReadRow(txn Txn, table string, id RowID) (row sqltypes.Row, ok bool, err error)

	// Scan invokes fn for every visible row in table, in storage order,
	// stopping early if fn returns false.
	Scan(txn Txn, table string, fn func(id RowID, row sqltypes.Row) (keepGoing bool, err error)) error

	// IndexProbe looks up rows via a named index for an equality key,
	// invoking fn for each match. An index the engine does not know is not
	// an error: Granite then falls back to a full Scan, and Sandstone, which
	// keeps no indexes, always visits every row. Callers re-apply their own
	// predicate to the rows they receive.
	IndexProbe(txn Txn, table, index string, key sqltypes.Value, fn func(id RowID, row sqltypes.Row) (keepGoing bool, err error)) error

	// Insert adds row to table under an already-allocated id, returning an
	// error (e.g. DuplicateKey) if the insert cannot proceed.
	Insert(txn Txn, table string, id RowID, row sqltypes.Row) error

	// Update replaces the row at id with newRow.
	Update(txn Txn, table string, id RowID, newRow sqltypes.Row) error

	// Delete removes the row at id.
	Delete(txn Txn, table string, id RowID) error

	// Flush makes all committed writes for table durable / consistent,
	// without requiring a checkpoint (Granite's Vacuum calls it for every
	// table).
	Flush(table string) error

	// DropTable releases table's engine-local storage.
	DropTable(table string) error

	// Close releases all resources held by the engine (called at shutdown).
	Close() error
}
