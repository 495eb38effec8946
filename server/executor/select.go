package executor

import (
	"sort"
	"strings"

	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqlparser"
	"github.com/minisql/minisql/server/sqltypes"
	"github.com/shopspring/decimal"
)

// source describes one FROM/JOIN table: its catalog entry, query alias, and
// join kind (InnerJoin for the primary FROM source).
type source struct {
	table *catalog.Table
	alias string
	kind  sqlparser.JoinKind
	on    sqlparser.Expr
}

func (s source) matches(qualifier string) bool {
	if qualifier == "" {
		return true
	}
	if s.alias != "" {
		return strings.EqualFold(s.alias, qualifier)
	}
	return strings.EqualFold(s.table.Name, qualifier)
}

// PreviewSelectColumns resolves a SELECT's result-set column metadata
// without running it, for COM_STMT_PREPARE's column-definition block
// (spec.md §4.H). It shares resolveSources/expandProjections with
// execSelect so the preview always matches what execution actually returns.
func (x *Executor) PreviewSelectColumns(stmt sqlparser.SelectStmt) ([]Column, error) {
	sources, err := x.resolveSources(stmt)
	if err != nil {
		return nil, err
	}
	outCols, err := x.expandProjections(stmt.Projections, sources)
	if err != nil {
		return nil, err
	}
	columns := make([]Column, len(outCols))
	for i, c := range outCols {
		columns[i] = Column{Name: c.name, Def: c.def}
	}
	return columns, nil
}

func (x *Executor) execSelect(stmt sqlparser.SelectStmt, txn engine.Txn, params []sqltypes.Value) (*ResultSet, error) {
	noFrom := stmt.Table == "" && stmt.Where == nil
	for _, p := range stmt.Projections {
		noFrom = noFrom && !p.Star
	}
	if noFrom {
		outCols, err := x.expandProjections(stmt.Projections, nil)
		if err != nil {
			return nil, err
		}
		rows, columns, err := x.project(outCols, [][]boundRow{nil}, params)
		if err != nil {
			return nil, err
		}
		return &ResultSet{Columns: columns, Rows: rows}, nil
	}

	sources, err := x.resolveSources(stmt)
	if err != nil {
		return nil, err
	}

	outCols, err := x.expandProjections(stmt.Projections, sources)
	if err != nil {
		return nil, err
	}

	combos, err := x.buildCombos(sources, txn, stmt.Where, params)
	if err != nil {
		return nil, err
	}

	if stmt.Where != nil {
		filtered := combos[:0]
		for _, combo := range combos {
			ctx := &rowContext{rows: combo, params: params}
			v, err := ctx.eval(stmt.Where)
			if err != nil {
				return nil, err
			}
			if !v.IsNull() && truthy(v) {
				filtered = append(filtered, combo)
			}
		}
		combos = filtered
	}

	hasAgg := hasAggregate(stmt.Projections)
	var rows []sqltypes.Row
	var columns []Column
	var rowCombos [][][]boundRow // per output row, the combos it was derived from (one for plain rows, many for groups)

	if hasAgg || len(stmt.GroupBy) > 0 {
		var groupCombos [][][]boundRow
		rows, columns, groupCombos, err = x.aggregate(outCols, combos, stmt.GroupBy, params)
		rowCombos = groupCombos
	} else {
		rows, columns, err = x.project(outCols, combos, params)
		for _, c := range combos {
			rowCombos = append(rowCombos, [][]boundRow{c})
		}
	}
	if err != nil {
		return nil, err
	}

	if len(stmt.OrderBy) > 0 {
		if err := x.orderRows(rows, rowCombos, stmt.OrderBy, params); err != nil {
			return nil, err
		}
	}

	rows = applyLimitOffset(rows, stmt.Limit, stmt.Offset)

	return &ResultSet{Columns: columns, Rows: rows}, nil
}

func (x *Executor) resolveSources(stmt sqlparser.SelectStmt) ([]source, error) {
	t := x.Catalog.Get(stmt.Table)
	if t == nil {
		return nil, merrors.UnknownTable("", stmt.Table)
	}
	sources := []source{{table: t, alias: stmt.Alias}}
	for _, j := range stmt.Joins {
		jt := x.Catalog.Get(j.Table)
		if jt == nil {
			return nil, merrors.UnknownTable("", j.Table)
		}
		sources = append(sources, source{table: jt, alias: j.Alias, kind: j.Kind, on: j.On})
	}
	return sources, nil
}

// buildCombos executes the FROM+JOIN plan as nested-loop joins, producing
// one []boundRow per output combination, per spec.md §4.G. The primary
// source is fetched via an index probe when the WHERE clause carries an
// equality or IN predicate on one of its indexes' leading columns;
// otherwise (and always for joined sources) it's a full scan. Either way
// the caller re-applies the complete WHERE clause afterward, so a chosen
// access path only needs to be a superset of the matching rows.
func (x *Executor) buildCombos(sources []source, txn engine.Txn, where sqlparser.Expr, params []sqltypes.Value) ([][]boundRow, error) {
	first := sources[0]
	eng := x.Engines.For(first.table.Engine)
	var combos [][]boundRow
	addRow := func(row sqltypes.Row) {
		combos = append(combos, []boundRow{{table: first.table.Name, alias: first.alias, schema: first.table.Schema, row: row}})
	}

	indexName, keys, ok := selectAccessPath(first.table, first.alias, where, params)
	if ok {
		seen := make(map[engine.RowID]bool)
		for _, key := range keys {
			err := eng.IndexProbe(txn, first.table.Name, indexName, key, func(id engine.RowID, row sqltypes.Row) (bool, error) {
				if !seen[id] {
					seen[id] = true
					addRow(row)
				}
				return true, nil
			})
			if err != nil {
				return nil, err
			}
		}
	} else {
		err := eng.Scan(txn, first.table.Name, func(_ engine.RowID, row sqltypes.Row) (bool, error) {
			addRow(row)
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}

	for _, j := range sources[1:] {
		next, err := x.joinOne(combos, j, txn)
		if err != nil {
			return nil, err
		}
		combos = next
	}
	return combos, nil
}

// flattenAnd splits expr into its top-level AND-conjuncts.
func flattenAnd(expr sqlparser.Expr) []sqlparser.Expr {
	if be, ok := expr.(sqlparser.BinaryExpr); ok && be.Op == "AND" {
		return append(flattenAnd(be.Left), flattenAnd(be.Right)...)
	}
	return []sqlparser.Expr{expr}
}

// columnMatches reports whether ref names column, qualified (if at all) by
// alias.
func columnMatches(ref sqlparser.ColumnRef, alias, column string) bool {
	if !strings.EqualFold(ref.Column, column) {
		return false
	}
	if ref.Table == "" {
		return true
	}
	return strings.EqualFold(ref.Table, alias)
}

// selectAccessPath looks for a top-level WHERE conjunct that equality- or
// IN-matches one of table's indexes' leading column, per spec.md §4.G's
// index-selection rule.
func selectAccessPath(t *catalog.Table, alias string, where sqlparser.Expr, params []sqltypes.Value) (string, []sqltypes.Value, bool) {
	if where == nil || len(t.Indexes) == 0 {
		return "", nil, false
	}
	ctx := &rowContext{params: params}
	conjuncts := flattenAnd(where)
	for _, idx := range t.Indexes {
		if len(idx.Columns) == 0 {
			continue
		}
		leading := idx.Columns[0]
		for _, c := range conjuncts {
			switch e := c.(type) {
			case sqlparser.BinaryExpr:
				if e.Op != "=" {
					continue
				}
				ref, lit, matched := asColumnLiteral(e)
				if !matched || !columnMatches(ref, alias, leading) {
					continue
				}
				v, err := ctx.eval(lit)
				if err != nil {
					continue
				}
				return idx.Name, []sqltypes.Value{v}, true
			case sqlparser.InExpr:
				if e.Not {
					continue
				}
				ref, ok := e.X.(sqlparser.ColumnRef)
				if !ok || !columnMatches(ref, alias, leading) {
					continue
				}
				keys := make([]sqltypes.Value, 0, len(e.List))
				failed := false
				for _, item := range e.List {
					v, err := ctx.eval(item)
					if err != nil {
						failed = true
						break
					}
					keys = append(keys, v)
				}
				if !failed && len(keys) > 0 {
					return idx.Name, keys, true
				}
			}
		}
	}
	return "", nil, false
}

// asColumnLiteral reports whether e is `column = value` in either operand
// order, returning the column reference and the value-side expression.
func asColumnLiteral(e sqlparser.BinaryExpr) (sqlparser.ColumnRef, sqlparser.Expr, bool) {
	if ref, ok := e.Left.(sqlparser.ColumnRef); ok {
		if _, isCol := e.Right.(sqlparser.ColumnRef); !isCol {
			return ref, e.Right, true
		}
	}
	if ref, ok := e.Right.(sqlparser.ColumnRef); ok {
		if _, isCol := e.Left.(sqlparser.ColumnRef); !isCol {
			return ref, e.Left, true
		}
	}
	return sqlparser.ColumnRef{}, nil, false
}

func (x *Executor) joinOne(combos [][]boundRow, j source, txn engine.Txn) ([][]boundRow, error) {
	eng := x.Engines.For(j.table.Engine)
	var joinRows []boundRow
	err := eng.Scan(txn, j.table.Name, func(_ engine.RowID, row sqltypes.Row) (bool, error) {
		joinRows = append(joinRows, boundRow{table: j.table.Name, alias: j.alias, schema: j.table.Schema, row: row})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	var out [][]boundRow
	matchedRight := make([]bool, len(joinRows))

	for _, combo := range combos {
		matchedLeft := false
		for i, jr := range joinRows {
			candidate := append(append([]boundRow{}, combo...), jr)
			keep := true
			if j.on != nil {
				ctx := &rowContext{rows: candidate}
				v, err := ctx.eval(j.on)
				if err != nil {
					return nil, err
				}
				keep = !v.IsNull() && truthy(v)
			}
			if keep {
				out = append(out, candidate)
				matchedLeft = true
				matchedRight[i] = true
			}
		}
		if !matchedLeft && j.kind == sqlparser.LeftJoin {
			out = append(out, append(append([]boundRow{}, combo...), nullRow(j.table.Name, j.alias, j.table.Schema)))
		}
	}

	if j.kind == sqlparser.RightJoin {
		template := nullTemplate(combos)
		for i, jr := range joinRows {
			if !matchedRight[i] {
				out = append(out, append(append([]boundRow{}, template...), jr))
			}
		}
	}
	return out, nil
}

func nullRow(table, alias string, schema sqltypes.Schema) boundRow {
	row := make(sqltypes.Row, len(schema))
	for i := range row {
		row[i] = sqltypes.NullValue()
	}
	return boundRow{table: table, alias: alias, schema: schema, row: row}
}

// nullTemplate builds a null-padded boundRow set matching the shape of
// every combo (used to seed unmatched rows on the preserved side of a
// RIGHT JOIN when no left-side combo exists at all, i.e. the left table is
// empty).
func nullTemplate(combos [][]boundRow) []boundRow {
	if len(combos) == 0 {
		return nil
	}
	out := make([]boundRow, len(combos[0]))
	for i, b := range combos[0] {
		out[i] = nullRow(b.table, b.alias, b.schema)
	}
	return out
}

func hasAggregate(projections []sqlparser.Projection) bool {
	for _, p := range projections {
		if fc, ok := p.Expr.(sqlparser.FuncCall); ok && isAggregateFunc(fc.Name) {
			return true
		}
	}
	return false
}

func isAggregateFunc(name string) bool {
	switch strings.ToUpper(name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	default:
		return false
	}
}

// outputCol is one resolved projection: a concrete expression to evaluate
// per row (star expansions are rewritten to ColumnRef at plan time) plus
// its display name.
type outputCol struct {
	name string
	expr sqlparser.Expr
	def  sqltypes.ColumnDef
}

func (x *Executor) expandProjections(projections []sqlparser.Projection, sources []source) ([]outputCol, error) {
	var out []outputCol
	for _, p := range projections {
		switch {
		case p.Star && p.Table == "":
			first := sources[0]
			for _, def := range first.table.Schema {
				out = append(out, outputCol{name: def.Name, expr: sqlparser.ColumnRef{Table: first.alias, Column: def.Name}, def: def})
			}
		case p.Star:
			s, ok := findSource(sources, p.Table)
			if !ok {
				return nil, merrors.New(merrors.KindUnknownTable, "Unknown table '%s'", p.Table)
			}
			for _, def := range s.table.Schema {
				out = append(out, outputCol{name: def.Name, expr: sqlparser.ColumnRef{Table: p.Table, Column: def.Name}, def: def})
			}
		default:
			name := p.Alias
			if name == "" {
				name = displayName(p.Expr)
			}
			def := inferDef(p.Expr, sources)
			out = append(out, outputCol{name: name, expr: p.Expr, def: def})
		}
	}
	return out, nil
}

func findSource(sources []source, qualifier string) (source, bool) {
	for _, s := range sources {
		if s.matches(qualifier) && qualifier != "" {
			return s, true
		}
	}
	return source{}, false
}

func displayName(e sqlparser.Expr) string {
	switch v := e.(type) {
	case sqlparser.ColumnRef:
		return v.Column
	case sqlparser.FuncCall:
		return strings.ToLower(v.Name) + "(...)"
	default:
		return "expr"
	}
}

// inferDef picks a wire type for a projected expression: the source
// column's definition when it's a plain column reference, else a generic
// nullable VARCHAR/INTEGER guess good enough for text-protocol display.
func inferDef(e sqlparser.Expr, sources []source) sqltypes.ColumnDef {
	switch v := e.(type) {
	case sqlparser.ColumnRef:
		s, ok := findSourceOrFirst(sources, v.Table)
		if ok {
			if pos := s.table.Schema.IndexOf(v.Column); pos >= 0 {
				return s.table.Schema[pos]
			}
		}
	case sqlparser.FuncCall:
		switch strings.ToUpper(v.Name) {
		case "COUNT":
			return sqltypes.ColumnDef{Name: "count", Type: sqltypes.Integer}
		case "SUM", "AVG":
			return sqltypes.ColumnDef{Name: strings.ToLower(v.Name), Type: sqltypes.Float}
		case "LAST_INSERT_ID":
			return sqltypes.ColumnDef{Name: "last_insert_id", Type: sqltypes.Integer}
		}
	}
	return sqltypes.ColumnDef{Name: "expr", Type: sqltypes.Varchar, Nullable: true}
}

func findSourceOrFirst(sources []source, qualifier string) (source, bool) {
	if qualifier == "" {
		if len(sources) > 0 {
			return sources[0], true
		}
		return source{}, false
	}
	return findSource(sources, qualifier)
}

func (x *Executor) project(cols []outputCol, combos [][]boundRow, params []sqltypes.Value) ([]sqltypes.Row, []Column, error) {
	columns := make([]Column, len(cols))
	for i, c := range cols {
		columns[i] = Column{Name: c.name, Def: c.def}
	}
	rows := make([]sqltypes.Row, 0, len(combos))
	for _, combo := range combos {
		ctx := &rowContext{rows: combo, params: params}
		row := make(sqltypes.Row, len(cols))
		for i, c := range cols {
			v, err := ctx.eval(c.expr)
			if err != nil {
				return nil, nil, err
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}

// aggregate groups combos by the evaluated GROUP BY key tuple (or one
// implicit group if there is none) and evaluates each projection's
// aggregate or first-row value per group, per spec.md §4.G.
func (x *Executor) aggregate(cols []outputCol, combos [][]boundRow, groupBy []sqlparser.Expr, params []sqltypes.Value) ([]sqltypes.Row, []Column, [][][]boundRow, error) {
	columns := make([]Column, len(cols))
	for i, c := range cols {
		columns[i] = Column{Name: c.name, Def: c.def}
	}

	type group struct {
		combos []([]boundRow)
	}
	order := []string{}
	groups := map[string]*group{}

	for _, combo := range combos {
		ctx := &rowContext{rows: combo, params: params}
		key := ""
		for _, g := range groupBy {
			v, err := ctx.eval(g)
			if err != nil {
				return nil, nil, nil, err
			}
			key += "\x00" + v.Text()
		}
		gr, ok := groups[key]
		if !ok {
			gr = &group{}
			groups[key] = gr
			order = append(order, key)
		}
		gr.combos = append(gr.combos, combo)
	}
	if len(combos) == 0 && len(groupBy) == 0 {
		// SELECT COUNT(*) with no rows still yields one row (count=0).
		groups[""] = &group{}
		order = append(order, "")
	}

	rows := make([]sqltypes.Row, 0, len(order))
	groupCombos := make([][][]boundRow, 0, len(order))
	for _, key := range order {
		gr := groups[key]
		row := make(sqltypes.Row, len(cols))
		for i, c := range cols {
			v, err := evalAggOrFirst(c.expr, gr.combos, params)
			if err != nil {
				return nil, nil, nil, err
			}
			row[i] = v
		}
		rows = append(rows, row)
		groupCombos = append(groupCombos, gr.combos)
	}
	return rows, columns, groupCombos, nil
}

func evalAggOrFirst(expr sqlparser.Expr, combos [][]boundRow, params []sqltypes.Value) (sqltypes.Value, error) {
	fc, ok := expr.(sqlparser.FuncCall)
	if !ok || !isAggregateFunc(fc.Name) {
		if len(combos) == 0 {
			return sqltypes.NullValue(), nil
		}
		ctx := &rowContext{rows: combos[0], params: params}
		return ctx.eval(expr)
	}
	return evalAggregate(fc, combos, params)
}

func evalAggregate(fc sqlparser.FuncCall, combos [][]boundRow, params []sqltypes.Value) (sqltypes.Value, error) {
	switch strings.ToUpper(fc.Name) {
	case "COUNT":
		if fc.Star {
			return sqltypes.IntValue(int64(len(combos))), nil
		}
		var n int64
		for _, combo := range combos {
			ctx := &rowContext{rows: combo, params: params}
			v, err := ctx.eval(fc.Args[0])
			if err != nil {
				return sqltypes.Value{}, err
			}
			if !v.IsNull() {
				n++
			}
		}
		return sqltypes.IntValue(n), nil
	case "SUM", "AVG":
		sum := decimal.Zero
		var n int64
		for _, combo := range combos {
			ctx := &rowContext{rows: combo, params: params}
			v, err := ctx.eval(fc.Args[0])
			if err != nil {
				return sqltypes.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			d, err := decimal.NewFromString(v.Text())
			if err != nil {
				continue
			}
			sum = sum.Add(d)
			n++
		}
		if strings.EqualFold(fc.Name, "AVG") {
			if n == 0 {
				return sqltypes.NullValue(), nil
			}
			avg, _ := sum.Div(decimal.NewFromInt(n)).Float64()
			return sqltypes.FloatValue(avg), nil
		}
		f, _ := sum.Float64()
		return sqltypes.FloatValue(f), nil
	case "MIN", "MAX":
		var best *sqltypes.Value
		for _, combo := range combos {
			ctx := &rowContext{rows: combo, params: params}
			v, err := ctx.eval(fc.Args[0])
			if err != nil {
				return sqltypes.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			if best == nil {
				bv := v
				best = &bv
				continue
			}
			op := "<"
			if strings.EqualFold(fc.Name, "MAX") {
				op = ">"
			}
			if compare(v, *best, op) {
				bv := v
				best = &bv
			}
		}
		if best == nil {
			return sqltypes.NullValue(), nil
		}
		return *best, nil
	default:
		return sqltypes.Value{}, merrors.New(merrors.KindInternal, "unknown aggregate %s", fc.Name)
	}
}

// orderRows sorts rows stably by each ORDER BY item, re-evaluating the
// item's expression against the combos it was derived from — so an
// aggregate-query ORDER BY referencing e.g. COUNT(*) resolves against that
// output row's whole group rather than a single underlying row.
func (x *Executor) orderRows(rows []sqltypes.Row, rowCombos [][][]boundRow, orderBy []sqlparser.OrderItem, params []sqltypes.Value) error {
	type keyed struct {
		row  sqltypes.Row
		keys []sqltypes.Value
	}
	items := make([]keyed, len(rows))
	for i := range rows {
		var combos [][]boundRow
		if i < len(rowCombos) {
			combos = rowCombos[i]
		}
		keys := make([]sqltypes.Value, len(orderBy))
		for j, item := range orderBy {
			v, err := evalAggOrFirst(item.Expr, combos, params)
			if err != nil {
				return err
			}
			keys[j] = v
		}
		items[i] = keyed{row: rows[i], keys: keys}
	}
	sort.SliceStable(items, func(i, j int) bool {
		for k, item := range orderBy {
			a, b := items[i].keys[k], items[j].keys[k]
			switch {
			case a.IsNull() && b.IsNull():
				continue
			case a.IsNull():
				return !item.Desc
			case b.IsNull():
				return item.Desc
			}
			if compare(a, b, "=") {
				continue
			}
			less := compare(a, b, "<")
			if item.Desc {
				return !less
			}
			return less
		}
		return false
	})
	for i := range items {
		rows[i] = items[i].row
	}
	return nil
}

func applyLimitOffset(rows []sqltypes.Row, limit, offset *int64) []sqltypes.Row {
	start := 0
	if offset != nil && *offset > 0 {
		start = int(*offset)
	}
	if start > len(rows) {
		return nil
	}
	rows = rows[start:]
	if limit != nil && *limit >= 0 && int64(len(rows)) > *limit {
		rows = rows[:*limit]
	}
	return rows
}
