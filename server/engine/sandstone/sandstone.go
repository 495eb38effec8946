// Package sandstone implements MiniSQL's non-durable, in-memory storage
// engine: a keyed store resolving concurrent writes by last-writer-wins,
// with syntactically-accepted but no-op transactions (for MyISAM-style
// client compatibility).
package sandstone

import (
	"sync"
	"sync/atomic"

	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/sqltypes"
)

// entry is one stored row plus the LWW metadata used to resolve concurrent
// writes: a monotonic logical timestamp and the origin id that produced it.
type entry struct {
	row       sqltypes.Row
	timestamp uint64
	origin    uint32
}

type table struct {
	mu      sync.RWMutex
	schema  sqltypes.Schema
	rows    map[engine.RowID]entry
	nextID  uint64
}

// Engine is the Sandstone storage engine: no WAL, no recovery, one
// in-memory map per table.
type Engine struct {
	mu       sync.RWMutex
	tables   map[string]*table
	clock    uint64 // monotonic LWW timestamp source
	originID uint32
}

// New constructs a Sandstone engine. originID tiebreaks concurrent writes
// carrying the same logical timestamp (relevant if a future build runs
// multiple Sandstone instances against shared storage; single-node MiniSQL
// always uses one).
func New(originID uint32) *Engine {
	return &Engine{tables: make(map[string]*table), originID: originID}
}

func (e *Engine) Open(name string, schema sqltypes.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tables[name]; exists {
		return nil
	}
	e.tables[name] = &table{schema: schema, rows: make(map[engine.RowID]entry)}
	return nil
}

// noopTxn satisfies engine.Txn with no-op Commit/Abort, per §4.F.
type noopTxn struct{}

func (noopTxn) Commit() error { return nil }
func (noopTxn) Abort() error  { return nil }

func (e *Engine) Begin() (engine.Txn, error) { return noopTxn{}, nil }

func (e *Engine) table(name string) *table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tables[name]
}

func (e *Engine) nextTimestamp() uint64 {
	return atomic.AddUint64(&e.clock, 1)
}

func (e *Engine) ReadRow(_ engine.Txn, name string, id engine.RowID) (sqltypes.Row, bool, error) {
	t := e.table(name)
	if t == nil {
		return nil, false, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ent, ok := t.rows[id]
	if !ok {
		return nil, false, nil
	}
	return ent.row.Clone(), true, nil
}

func (e *Engine) Scan(_ engine.Txn, name string, fn func(engine.RowID, sqltypes.Row) (bool, error)) error {
	t := e.table(name)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	snapshot := make(map[engine.RowID]sqltypes.Row, len(t.rows))
	for id, ent := range t.rows {
		snapshot[id] = ent.row
	}
	t.mu.RUnlock()
	for id, row := range snapshot {
		keepGoing, err := fn(id, row.Clone())
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

// IndexProbe has no dedicated index structures in Sandstone (§4.F describes
// only a primary-key map); it degrades to a full scan that passes every row
// to fn without comparing the key, and the executor re-applies WHERE.
func (e *Engine) IndexProbe(txn engine.Txn, name, _ string, key sqltypes.Value, fn func(engine.RowID, sqltypes.Row) (bool, error)) error {
	return e.Scan(txn, name, func(id engine.RowID, row sqltypes.Row) (bool, error) {
		return fn(id, row)
	})
}

func (e *Engine) Insert(_ engine.Txn, name string, id engine.RowID, row sqltypes.Row) error {
	t := e.table(name)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[id] = entry{row: row.Clone(), timestamp: e.nextTimestamp(), origin: e.originID}
	return nil
}

// Update applies last-writer-wins: a write only takes effect if its
// timestamp is newer than (or ties and wins on origin id over) whatever is
// currently stored.
func (e *Engine) Update(_ engine.Txn, name string, id engine.RowID, newRow sqltypes.Row) error {
	t := e.table(name)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := e.nextTimestamp()
	existing, ok := t.rows[id]
	if ok && !wins(ts, e.originID, existing.timestamp, existing.origin) {
		return nil
	}
	t.rows[id] = entry{row: newRow.Clone(), timestamp: ts, origin: e.originID}
	return nil
}

func wins(ts uint64, origin uint32, otherTS uint64, otherOrigin uint32) bool {
	if ts != otherTS {
		return ts > otherTS
	}
	return origin > otherOrigin
}

func (e *Engine) Delete(_ engine.Txn, name string, id engine.RowID) error {
	t := e.table(name)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, id)
	return nil
}

func (e *Engine) Flush(string) error { return nil }

func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, name)
	return nil
}

func (e *Engine) Close() error { return nil }
