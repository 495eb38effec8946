// Package catalog implements the process-wide table/index manifest: an
// atomically-persisted JSON file mapping table name to schema, engine tag,
// auto-increment state, and index descriptors.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqltypes"
)

// Engine names a storage engine a table can be assigned to.
type Engine string

const (
	Granite   Engine = "GRANITE"
	Sandstone Engine = "SANDSTONE"
)

// Index describes one secondary or unique index on a table.
type Index struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"` // ordered column names
	Unique  bool     `json:"unique"`
}

// Table is the catalog's descriptor for one table: schema, engine
// assignment, auto-increment counter, and its indexes.
type Table struct {
	Name          string         `json:"name"`
	Schema        sqltypes.Schema `json:"schema"`
	Engine        Engine         `json:"engine"`
	AutoIncrement int64          `json:"auto_increment"` // last value assigned (0 before the first)
	Indexes       []Index        `json:"indexes"`
}

// PrimaryKeyColumn returns the index of the single integer auto-increment
// primary-key column, or -1 if the table has none (per §3, only such a
// column doubles as the row identifier).
func (t *Table) PrimaryKeyColumn() int {
	for i, c := range t.Schema {
		if c.PrimaryKey && c.AutoIncrement && c.Type == sqltypes.Integer {
			return i
		}
	}
	return -1
}

// manifest is the on-disk JSON shape of the whole catalog.
type manifest struct {
	Tables []*Table `json:"tables"`
}

// Catalog is the process-wide, mutex-guarded table/index registry.
type Catalog struct {
	mu       sync.RWMutex
	path     string
	byLower  map[string]*Table // keyed by lower-cased name for case-insensitive lookup
	nextFile int64
}

// Open loads path (if present) or starts an empty catalog rooted there.
func Open(path string) (*Catalog, error) {
	c := &Catalog{path: path, byLower: make(map[string]*Table)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, merrors.Wrap(merrors.KindStorageIO, err, "reading catalog manifest %s", path)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageIO, err, "parsing catalog manifest %s", path)
	}
	for _, t := range m.Tables {
		c.byLower[strings.ToLower(t.Name)] = t
	}
	return c, nil
}

// persist rewrites the manifest atomically: write to a temp file in the
// same directory, fsync it, then rename over the original. A partial write
// during a crash leaves the prior manifest intact because rename is atomic.
func (c *Catalog) persist() error {
	m := manifest{Tables: make([]*Table, 0, len(c.byLower))}
	for _, t := range c.byLower {
		m.Tables = append(m.Tables, t)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return merrors.Wrap(merrors.KindInternal, err, "encoding catalog manifest")
	}
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".catalog-*.tmp")
	if err != nil {
		return merrors.Wrap(merrors.KindStorageIO, err, "creating catalog temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return merrors.Wrap(merrors.KindStorageIO, err, "writing catalog temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return merrors.Wrap(merrors.KindStorageIO, err, "fsyncing catalog temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return merrors.Wrap(merrors.KindStorageIO, err, "closing catalog temp file")
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return merrors.Wrap(merrors.KindStorageIO, err, "renaming catalog manifest into place")
	}
	return nil
}

// CreateTable registers a new table. Returns ConstraintViolation if the
// name already exists.
func (c *Catalog) CreateTable(t *Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(t.Name)
	if _, exists := c.byLower[key]; exists {
		return merrors.New(merrors.KindConstraintViolation, "Table '%s' already exists", t.Name)
	}
	c.byLower[key] = t
	return c.persist()
}

// DropTable removes a table. If ifExists and the table is absent, returns
// nil rather than UnknownTable (§4.C).
func (c *Catalog) DropTable(name string, ifExists bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := c.byLower[key]; !exists {
		if ifExists {
			return nil
		}
		return merrors.UnknownTable("", name)
	}
	delete(c.byLower, key)
	return c.persist()
}

// AlterEngine reassigns a table's engine tag. The caller (executor) is
// responsible for actually migrating row data before calling this; on
// migration failure the caller must not call AlterEngine at all, so the
// original engine keeps the data and the tag is unchanged.
func (c *Catalog) AlterEngine(name string, engine Engine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, exists := c.byLower[strings.ToLower(name)]
	if !exists {
		return merrors.UnknownTable("", name)
	}
	t.Engine = engine
	return c.persist()
}

// CreateIndex adds an index descriptor to table.
func (c *Catalog) CreateIndex(idx Index) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, exists := c.byLower[strings.ToLower(idx.Table)]
	if !exists {
		return merrors.UnknownTable("", idx.Table)
	}
	for _, col := range idx.Columns {
		if t.Schema.IndexOf(col) < 0 {
			return merrors.UnknownColumn(col, idx.Table)
		}
	}
	for _, existing := range t.Indexes {
		if strings.EqualFold(existing.Name, idx.Name) {
			return merrors.New(merrors.KindConstraintViolation, "Index '%s' already exists", idx.Name)
		}
	}
	t.Indexes = append(t.Indexes, idx)
	return c.persist()
}

// DropIndex removes a named index from table.
func (c *Catalog) DropIndex(name, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, exists := c.byLower[strings.ToLower(table)]
	if !exists {
		return merrors.UnknownTable("", table)
	}
	for i, idx := range t.Indexes {
		if strings.EqualFold(idx.Name, name) {
			t.Indexes = append(t.Indexes[:i], t.Indexes[i+1:]...)
			return c.persist()
		}
	}
	return merrors.New(merrors.KindInternal, "index '%s' not found on table '%s'", name, table)
}

// Get returns the table descriptor, or nil if absent. The returned pointer
// must be treated as read-only by callers outside catalog — mutate only
// through Catalog's own methods, which persist the manifest.
func (c *Catalog) Get(name string) *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byLower[strings.ToLower(name)]
}

// Tables returns every table descriptor, ordered by name.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Table, 0, len(c.byLower))
	for _, t := range c.byLower {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NextAutoIncrement atomically allocates and returns the next
// auto-increment value for table, persisting the new counter. Must be
// called under the table's write lock (the executor holds it already for
// the INSERT).
func (c *Catalog) NextAutoIncrement(name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, exists := c.byLower[strings.ToLower(name)]
	if !exists {
		return 0, merrors.UnknownTable("", name)
	}
	t.AutoIncrement++
	v := t.AutoIncrement
	if err := c.persist(); err != nil {
		return 0, err
	}
	return v, nil
}

// TempFileName generates a unique scratch filename under dir, used by
// VACUUM's rewrite-then-rename of a table's data file.
func (c *Catalog) TempFileName(dir, prefix string) string {
	n := atomic.AddInt64(&c.nextFile, 1)
	return filepath.Join(dir, fmt.Sprintf(".%s-%d.tmp", prefix, n))
}
