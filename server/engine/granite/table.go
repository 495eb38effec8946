package granite

import (
	"fmt"
	"sync"

	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqltypes"
)

// indexDef describes one index: its name, the schema positions of its
// columns, and whether it is unique. Its entries live in table.indexData,
// keyed by indexKey's encoding of the column values; a real ordered B-tree
// is out of scope (§ Non-goals), so probe answers equality lookups only.
type indexDef struct {
	name    string
	columns []int // schema column positions
	unique  bool
}

type table struct {
	mu      sync.RWMutex
	schema  sqltypes.Schema
	rows    map[uint64]sqltypes.Row
	indexes []indexDef
	// index name -> encoded key -> row id set
	indexData map[string]map[string]map[uint64]bool
}

func newTable(schema sqltypes.Schema) *table {
	return &table{
		schema:    schema,
		rows:      make(map[uint64]sqltypes.Row),
		indexData: make(map[string]map[string]map[uint64]bool),
	}
}

func (t *table) addIndex(def indexDef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexes = append(t.indexes, def)
	data := make(map[string]map[uint64]bool)
	for id, row := range t.rows {
		key := indexKey(def, row)
		if data[key] == nil {
			data[key] = make(map[uint64]bool)
		}
		data[key][id] = true
	}
	t.indexData[def.name] = data
}

func (t *table) removeIndex(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.indexData, name)
	for i, idx := range t.indexes {
		if idx.name == name {
			t.indexes = append(t.indexes[:i], t.indexes[i+1:]...)
			break
		}
	}
}

func indexKey(def indexDef, row sqltypes.Row) string {
	s := ""
	for _, pos := range def.columns {
		if pos < len(row) {
			s += fmt.Sprintf("\x00%s", row[pos].Text())
		}
	}
	return s
}

// applyInsert inserts row under id, maintaining indexes and rejecting a
// duplicate key on a unique index.
func (t *table) applyInsert(id uint64, row sqltypes.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkUniqueLocked(id, row, false); err != nil {
		return err
	}
	t.rows[id] = row
	t.indexAllLocked(id, row)
	return nil
}

func (t *table) checkUniqueLocked(id uint64, row sqltypes.Row, isUpdate bool) error {
	for _, def := range t.indexes {
		if !def.unique {
			continue
		}
		key := indexKey(def, row)
		data := t.indexData[def.name]
		if data == nil {
			continue
		}
		for existingID := range data[key] {
			if isUpdate && existingID == id {
				continue
			}
			return merrors.DuplicateKey(key, def.name)
		}
	}
	return nil
}

func (t *table) indexAllLocked(id uint64, row sqltypes.Row) {
	for _, def := range t.indexes {
		key := indexKey(def, row)
		data := t.indexData[def.name]
		if data[key] == nil {
			data[key] = make(map[uint64]bool)
		}
		data[key][id] = true
	}
}

func (t *table) deindexAllLocked(id uint64, row sqltypes.Row) {
	for _, def := range t.indexes {
		key := indexKey(def, row)
		if set := t.indexData[def.name][key]; set != nil {
			delete(set, id)
		}
	}
}

func (t *table) applyUpdate(id uint64, newRow sqltypes.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkUniqueLocked(id, newRow, true); err != nil {
		return err
	}
	if old, ok := t.rows[id]; ok {
		t.deindexAllLocked(id, old)
	}
	t.rows[id] = newRow
	t.indexAllLocked(id, newRow)
	return nil
}

func (t *table) applyDelete(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.rows[id]; ok {
		t.deindexAllLocked(id, old)
		delete(t.rows, id)
	}
}

func (t *table) read(id uint64) (sqltypes.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

func (t *table) snapshot() map[uint64]sqltypes.Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uint64]sqltypes.Row, len(t.rows))
	for id, row := range t.rows {
		out[id] = row.Clone()
	}
	return out
}

func (t *table) probe(indexName string, key sqltypes.Value) (map[uint64]bool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, def := range t.indexes {
		if def.name != indexName {
			continue
		}
		data := t.indexData[def.name]
		ids := data[encodeSingle(key)]
		out := make(map[uint64]bool, len(ids))
		for id := range ids {
			out[id] = true
		}
		return out, true
	}
	return nil, false
}

func encodeSingle(v sqltypes.Value) string {
	return "\x00" + v.Text()
}
