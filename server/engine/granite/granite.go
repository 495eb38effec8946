package granite

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/minisql/minisql/logger"
	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqltypes"
)

// Engine is Granite: the durable, transactional, row-oriented storage
// engine. One shared WAL and checkpoint marker serve every Granite table;
// each table additionally owns a data file under dataDir/tables.
type Engine struct {
	dataDir string
	wal     *walManager

	mu     sync.RWMutex
	tables map[string]*table

	nextTxnID uint64
}

// New opens (or initializes) a Granite engine rooted at dataDir: it creates
// the tables directory and opens the shared WAL. It loads no table and
// replays nothing; Open does that for each table.
func New(dataDir string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "tables"), 0755); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageIO, err, "creating data directory")
	}
	walPath := filepath.Join(dataDir, "wal.log")
	checkpointPath := filepath.Join(dataDir, "wal.checkpoint")
	wal, err := newWALManager(walPath, checkpointPath)
	if err != nil {
		return nil, err
	}
	e := &Engine{dataDir: dataDir, wal: wal, tables: make(map[string]*table)}
	return e, nil
}

func (e *Engine) tableDataPath(name string) string {
	return filepath.Join(e.dataDir, "tables", name+".dat")
}

// Open loads (or creates) table's in-memory state from its data file, then
// replays every committed WAL record for it still in the WAL (only VACUUM
// empties the WAL, right after flushing every data file). Indexes are not WAL-logged (§4.E.5) and Open creates none;
// the caller re-issues CreateIndex for each catalog-declared index, which
// builds the index from the rows loaded here.
func (e *Engine) Open(name string, schema sqltypes.Schema) error {
	e.mu.Lock()
	if _, exists := e.tables[name]; exists {
		e.mu.Unlock()
		return nil
	}
	t := newTable(schema)
	e.tables[name] = t
	e.mu.Unlock()

	if err := e.loadDataFile(name, t); err != nil {
		return err
	}
	return e.replayWALFor(name, t)
}

type dataFileFormat struct {
	Rows map[uint64][]json.RawMessage `json:"rows"`
}

// loadDataFile reads the table's compact snapshot file, if any.
func (e *Engine) loadDataFile(name string, t *table) error {
	data, err := os.ReadFile(e.tableDataPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return merrors.Wrap(merrors.KindStorageIO, err, "reading data file for table %s", name)
	}
	rows, err := decodeDataFile(data)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageIO, err, "decoding data file for table %s", name)
	}
	t.mu.Lock()
	for id, row := range rows {
		t.rows[id] = row
	}
	t.mu.Unlock()
	return nil
}

// replayWALFor scans the whole WAL from its first byte (the checkpoint
// marker is not consulted) and re-applies every record belonging to a
// transaction whose stream ends in COMMIT, ignoring the rest, per §4.E.3.
// Records after the first corrupt one are not replayed; the file itself is
// left as it is. Replay is idempotent: re-applying
// an already-reflected insert/update/delete just overwrites the same state.
func (e *Engine) replayWALFor(name string, t *table) error {
	f, err := os.Open(filepath.Join(e.dataDir, "wal.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return merrors.Wrap(merrors.KindStorageIO, err, "opening WAL for replay")
	}
	defer f.Close()

	r := newWALReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return err
	}
	if r.truncatedAt >= 0 {
		logger.Errorf("WAL for table %s truncated at byte offset %d, discarding trailing bytes", name, r.truncatedAt)
	}

	byTxn := make(map[uint64][]Record)
	committed := make(map[uint64]bool)
	for _, rec := range records {
		byTxn[rec.TxnID] = append(byTxn[rec.TxnID], rec)
		if rec.Type == RecCommit {
			committed[rec.TxnID] = true
		}
		if rec.LSN > e.wal.lsn {
			e.wal.lsn = rec.LSN
		}
	}

	for txnID, recs := range byTxn {
		if !committed[txnID] {
			continue
		}
		for _, rec := range recs {
			switch rec.Type {
			case RecInsert:
				tbl, id, row, err := decodeRowBody(rec.Body)
				if err == nil && tbl == name {
					t.rows[id] = row
				}
			case RecUpdate:
				tbl, id, _, after, err := decodeUpdateBody(rec.Body)
				if err == nil && tbl == name {
					t.rows[id] = after
				}
			case RecDelete:
				tbl, id, _, err := decodeRowBody(rec.Body)
				if err == nil && tbl == name {
					delete(t.rows, id)
				}
			}
		}
	}
	return nil
}

func (e *Engine) Begin() (engine.Txn, error) {
	id := atomic.AddUint64(&e.nextTxnID, 1)
	return &Txn{id: id, state: StateActive, eng: e}, nil
}

func (e *Engine) lookupTable(name string) *table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tables[name]
}

func (e *Engine) ReadRow(txn engine.Txn, name string, id engine.RowID) (sqltypes.Row, bool, error) {
	t := e.lookupTable(name)
	if t == nil {
		return nil, false, nil
	}
	if gt, ok := txn.(*Txn); ok {
		if op, found := gt.overlayFor(name)[uint64(id)]; found {
			switch op.kind {
			case opDelete:
				return nil, false, nil
			default:
				return op.after.Clone(), true, nil
			}
		}
	}
	return t.read(uint64(id))
}

func (e *Engine) Scan(txn engine.Txn, name string, fn func(engine.RowID, sqltypes.Row) (bool, error)) error {
	t := e.lookupTable(name)
	if t == nil {
		return nil
	}
	snapshot := t.snapshot()
	var overlay map[uint64]*pendingOp
	if gt, ok := txn.(*Txn); ok {
		overlay = gt.overlayFor(name)
	}
	for id, op := range overlay {
		switch op.kind {
		case opDelete:
			delete(snapshot, id)
		default:
			snapshot[id] = op.after.Clone()
		}
	}
	for id, row := range snapshot {
		keepGoing, err := fn(engine.RowID(id), row)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

func (e *Engine) IndexProbe(txn engine.Txn, name, index string, key sqltypes.Value, fn func(engine.RowID, sqltypes.Row) (bool, error)) error {
	t := e.lookupTable(name)
	if t == nil {
		return nil
	}
	ids, ok := t.probe(index, key)
	if !ok {
		return e.Scan(txn, name, fn)
	}
	var overlay map[uint64]*pendingOp
	if gt, ok := txn.(*Txn); ok {
		overlay = gt.overlayFor(name)
	}
	for id := range ids {
		if op, found := overlay[id]; found {
			if op.kind == opDelete {
				continue
			}
			keepGoing, err := fn(engine.RowID(id), op.after.Clone())
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
			continue
		}
		row, ok := t.read(id)
		if !ok {
			continue
		}
		keepGoing, err := fn(engine.RowID(id), row)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

func (e *Engine) Insert(txn engine.Txn, name string, id engine.RowID, row sqltypes.Row) error {
	gt, ok := txn.(*Txn)
	if !ok {
		return merrors.New(merrors.KindInternal, "granite.Insert called with foreign txn handle")
	}
	gt.record(pendingOp{kind: opInsert, table: name, id: uint64(id), after: row.Clone()})
	return nil
}

func (e *Engine) Update(txn engine.Txn, name string, id engine.RowID, newRow sqltypes.Row) error {
	gt, ok := txn.(*Txn)
	if !ok {
		return merrors.New(merrors.KindInternal, "granite.Update called with foreign txn handle")
	}
	before, _, _ := e.ReadRow(txn, name, id)
	gt.record(pendingOp{kind: opUpdate, table: name, id: uint64(id), before: before, after: newRow.Clone()})
	return nil
}

func (e *Engine) Delete(txn engine.Txn, name string, id engine.RowID) error {
	gt, ok := txn.(*Txn)
	if !ok {
		return merrors.New(merrors.KindInternal, "granite.Delete called with foreign txn handle")
	}
	before, _, _ := e.ReadRow(txn, name, id)
	gt.record(pendingOp{kind: opDelete, table: name, id: uint64(id), before: before})
	return nil
}

// commit appends ops' WAL records (group-committed) then applies the write
// set to authoritative table state under each table's write lock.
func (e *Engine) commit(txnID uint64, ops []pendingOp) error {
	if len(ops) == 0 {
		return nil
	}
	var encoded []byte
	lsn := e.wal.nextLSN()
	encoded = append(encoded, encodeRecord(Record{Type: RecBegin, LSN: lsn, TxnID: txnID})...)
	for _, op := range ops {
		lsn = e.wal.nextLSN()
		var body []byte
		var typ RecordType
		switch op.kind {
		case opInsert:
			typ = RecInsert
			body = encodeRowBody(op.table, op.id, op.after)
		case opUpdate:
			typ = RecUpdate
			body = encodeUpdateBody(op.table, op.id, op.before, op.after)
		case opDelete:
			typ = RecDelete
			body = encodeRowBody(op.table, op.id, op.before)
		}
		encoded = append(encoded, encodeRecord(Record{Type: typ, LSN: lsn, TxnID: txnID, Body: body})...)
	}
	commitLSN := e.wal.nextLSN()
	encoded = append(encoded, encodeRecord(Record{Type: RecCommit, LSN: commitLSN, TxnID: txnID})...)

	if err := e.wal.appendAndSync(encoded, commitLSN); err != nil {
		return err
	}

	for _, op := range ops {
		t := e.lookupTable(op.table)
		if t == nil {
			continue
		}
		switch op.kind {
		case opInsert:
			if err := t.applyInsert(op.id, op.after); err != nil {
				return err
			}
		case opUpdate:
			if err := t.applyUpdate(op.id, op.after); err != nil {
				return err
			}
		case opDelete:
			t.applyDelete(op.id)
		}
	}
	return nil
}

// Flush persists table's current in-memory state to its data file.
func (e *Engine) Flush(name string) error {
	t := e.lookupTable(name)
	if t == nil {
		return nil
	}
	rows := t.snapshot()
	data, err := encodeDataFile(rows)
	if err != nil {
		return merrors.Wrap(merrors.KindInternal, err, "encoding data file for table %s", name)
	}
	path := e.tableDataPath(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return merrors.Wrap(merrors.KindStorageIO, err, "writing data file for table %s", name)
	}
	return os.Rename(tmp, path)
}

// Checkpoint writes a CHECKPOINT record, fsyncs, and persists the
// checkpoint marker with this LSN. At restart the marker only seeds the
// LSN counter; replay still reads the whole WAL, and no data file is
// flushed here.
func (e *Engine) Checkpoint(activeTxnIDs []uint64) error {
	lsn := e.wal.nextLSN()
	rec := encodeRecord(Record{Type: RecCheckpoint, LSN: lsn, Body: encodeCheckpointBody(activeTxnIDs)})
	if err := e.wal.appendAndSync(rec, lsn); err != nil {
		return err
	}
	return e.wal.writeCheckpointMarker(lsn)
}

// Vacuum rewrites every table's data file compactly, truncates the WAL,
// and resets the checkpoint marker to the new origin, per §4.E.4. The
// caller (executor) must hold the catalog write lock for the duration.
func (e *Engine) Vacuum() error {
	e.mu.RLock()
	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	e.mu.RUnlock()

	for _, name := range names {
		if err := e.Flush(name); err != nil {
			return err
		}
	}
	if err := e.wal.truncate(filepath.Join(e.dataDir, "wal.log")); err != nil {
		return err
	}
	return e.wal.writeCheckpointMarker(e.wal.lsn)
}

func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	delete(e.tables, name)
	e.mu.Unlock()
	if err := os.Remove(e.tableDataPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CreateIndex builds an in-memory index over table's current rows; index
// definitions and mutations are not WAL-logged (§4.E.5) and do not survive
// a restart. The catalog is the source of truth for which indexes exist,
// and the server's startup re-issues CreateIndex for each of them after
// Open.
func (e *Engine) CreateIndex(table, name string, columnPositions []int, unique bool) error {
	t := e.lookupTable(table)
	if t == nil {
		return merrors.UnknownTable("", table)
	}
	t.addIndex(indexDef{name: name, columns: columnPositions, unique: unique})
	return nil
}

func (e *Engine) DropIndex(table, name string) error {
	t := e.lookupTable(table)
	if t == nil {
		return merrors.UnknownTable("", table)
	}
	t.removeIndex(name)
	return nil
}

func (e *Engine) Close() error {
	return e.wal.close()
}

func encodeDataFile(rows map[uint64]sqltypes.Row) ([]byte, error) {
	raw := make(map[string][]byte, len(rows))
	for id, row := range rows {
		raw[strconv.FormatUint(id, 10)] = appendRow(nil, row)
	}
	return json.Marshal(raw)
}

func decodeDataFile(data []byte) (map[uint64]sqltypes.Row, error) {
	var raw map[string][]byte
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[uint64]sqltypes.Row, len(raw))
	for k, b := range raw {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, err
		}
		c := newBodyCursor(b)
		row, err := c.row()
		if err != nil {
			return nil, err
		}
		out[id] = row
	}
	return out, nil
}
