package granite

import (
	"sync"

	"github.com/minisql/minisql/server/sqltypes"
)

// State mirrors the Transaction lifecycle from §3: Active, Committing,
// Committed, Aborted.
type State int

const (
	StateActive State = iota
	StateCommitting
	StateCommitted
	StateAborted
)

type opKind byte

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

type pendingOp struct {
	kind         opKind
	table        string
	id           uint64
	before       sqltypes.Row // Update/Delete: row as it was before this txn touched it
	after        sqltypes.Row // Insert/Update: the new row image
}

// Txn is Granite's transaction handle: a snapshot of Active/Committed/etc.
// state plus the ordered write set buffered in memory until commit, per
// §4.E.2. It implements engine.Txn.
type Txn struct {
	mu    sync.Mutex
	id    uint64
	state State
	ops   []pendingOp
	eng   *Engine
}

func (t *Txn) ID() uint64 { return t.id }

func (t *Txn) overlayFor(table string) map[uint64]*pendingOp {
	out := make(map[uint64]*pendingOp)
	for i := range t.ops {
		op := &t.ops[i]
		if op.table == table {
			out[op.id] = op
		}
	}
	return out
}

func (t *Txn) record(op pendingOp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, op)
}

// Commit appends the buffered write set to the WAL (group-committed),
// then applies it to authoritative table state under each table's write
// lock, per §4.E.2 step 3-4.
func (t *Txn) Commit() error {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return nil
	}
	t.state = StateCommitting
	ops := append([]pendingOp{}, t.ops...)
	t.mu.Unlock()

	if err := t.eng.commit(t.id, ops); err != nil {
		t.mu.Lock()
		t.state = StateAborted
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.state = StateCommitted
	t.mu.Unlock()
	return nil
}

// Abort discards the buffered write set and copy-on-write shadow; the WAL
// file is never touched, per §4.E.2.
func (t *Txn) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateAborted
	t.ops = nil
	return nil
}
