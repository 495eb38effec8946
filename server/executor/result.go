// Package executor walks a parsed sqlparser.Statement, resolving names
// against the catalog, evaluating predicates with SQL's three-valued
// logic, and driving the bound table's storage engine. See spec.md §4.G.
package executor

import (
	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/sqltypes"
)

// Column describes one result-set column's wire metadata.
type Column struct {
	Name string
	Def  sqltypes.ColumnDef
}

// ResultSet is the shape returned by statements that produce rows.
type ResultSet struct {
	Columns []Column
	Rows    []sqltypes.Row
}

// OkSummary is the shape returned by statements that only report success.
type OkSummary struct {
	AffectedRows uint64
	LastInsertID uint64
	Info         string
}

// Engines resolves a catalog engine tag to its live engine.Engine instance.
type Engines struct {
	Granite   engine.Engine
	Sandstone engine.Engine
}

func (e *Engines) For(tag catalog.Engine) engine.Engine {
	if tag == catalog.Sandstone {
		return e.Sandstone
	}
	return e.Granite
}

// Executor holds the shared, process-wide state (catalog + engines) that
// every statement execution borrows for its duration, per spec.md §3's
// ownership summary.
type Executor struct {
	Catalog *catalog.Catalog
	Engines *Engines
}

func New(cat *catalog.Catalog, engines *Engines) *Executor {
	return &Executor{Catalog: cat, Engines: engines}
}
