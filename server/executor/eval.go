package executor

import (
	"strings"

	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqlparser"
	"github.com/minisql/minisql/server/sqltypes"
)

// boundRow is one source table's current row during expression evaluation,
// keyed by both its table name and (if present) its query alias.
type boundRow struct {
	table  string
	alias  string
	schema sqltypes.Schema
	row    sqltypes.Row
}

func (b boundRow) matches(qualifier string) bool {
	if qualifier == "" {
		return true
	}
	if b.alias != "" {
		return strings.EqualFold(b.alias, qualifier)
	}
	return strings.EqualFold(b.table, qualifier)
}

// rowContext is the per-output-row environment expression evaluation runs
// against: the joined source rows in scope plus any bound statement
// parameters (for prepared-statement execution).
type rowContext struct {
	rows   []boundRow
	params []sqltypes.Value
}

func (c *rowContext) resolveColumn(ref sqlparser.ColumnRef) (sqltypes.Value, error) {
	var found *sqltypes.Value
	var foundCount int
	for _, b := range c.rows {
		if !b.matches(ref.Table) {
			continue
		}
		pos := b.schema.IndexOf(ref.Column)
		if pos < 0 {
			continue
		}
		v := b.row[pos]
		found = &v
		foundCount++
	}
	if found == nil {
		return sqltypes.Value{}, merrors.UnknownColumn(ref.Column, "field list")
	}
	if foundCount > 1 && ref.Table == "" {
		return sqltypes.Value{}, merrors.New(merrors.KindUnknownColumn, "Column '%s' in field list is ambiguous", ref.Column)
	}
	return *found, nil
}

// eval evaluates expr to a value. Boolean sub-expressions follow SQL's
// three-valued logic: NULL propagates through comparisons and AND/OR per
// spec.md §4.G.
func (c *rowContext) eval(expr sqlparser.Expr) (sqltypes.Value, error) {
	switch e := expr.(type) {
	case sqlparser.LiteralExpr:
		return e.Value, nil
	case sqlparser.ParamExpr:
		if e.Index < 0 || e.Index >= len(c.params) {
			return sqltypes.Value{}, merrors.New(merrors.KindInternal, "parameter index %d out of range", e.Index)
		}
		return c.params[e.Index], nil
	case sqlparser.ColumnRef:
		return c.resolveColumn(e)
	case sqlparser.UnaryExpr:
		return c.evalUnary(e)
	case sqlparser.BinaryExpr:
		return c.evalBinary(e)
	case sqlparser.IsNullExpr:
		return c.evalIsNull(e)
	case sqlparser.InExpr:
		return c.evalIn(e)
	case sqlparser.FuncCall:
		return sqltypes.Value{}, merrors.New(merrors.KindInternal, "aggregate/function %s not valid in this context", e.Name)
	default:
		return sqltypes.Value{}, merrors.New(merrors.KindInternal, "unhandled expression type %T", expr)
	}
}

func (c *rowContext) evalUnary(e sqlparser.UnaryExpr) (sqltypes.Value, error) {
	v, err := c.eval(e.X)
	if err != nil {
		return sqltypes.Value{}, err
	}
	switch e.Op {
	case "NOT":
		if v.IsNull() {
			return sqltypes.NullValue(), nil
		}
		return sqltypes.BoolValue(!truthy(v)), nil
	case "-":
		if v.IsNull() {
			return sqltypes.NullValue(), nil
		}
		if v.Type() == sqltypes.Integer {
			return sqltypes.IntValue(-v.Int()), nil
		}
		af, _, _, _, _ := sqltypes.CoerceForArith(v, sqltypes.IntValue(0))
		return sqltypes.FloatValue(-af), nil
	default:
		return sqltypes.Value{}, merrors.New(merrors.KindInternal, "unknown unary operator %s", e.Op)
	}
}

// truthy converts a non-null value to a boolean per MySQL's numeric-zero
// convention.
func truthy(v sqltypes.Value) bool {
	switch v.Type() {
	case sqltypes.Boolean:
		return v.Bool()
	case sqltypes.Integer:
		return v.Int() != 0
	case sqltypes.Float:
		return v.Float() != 0
	default:
		return v.Text() != "" && v.Text() != "0"
	}
}

func (c *rowContext) evalBinary(e sqlparser.BinaryExpr) (sqltypes.Value, error) {
	switch e.Op {
	case "AND":
		return c.evalAnd(e.Left, e.Right)
	case "OR":
		return c.evalOr(e.Left, e.Right)
	}

	left, err := c.eval(e.Left)
	if err != nil {
		return sqltypes.Value{}, err
	}
	right, err := c.eval(e.Right)
	if err != nil {
		return sqltypes.Value{}, err
	}

	switch e.Op {
	case "=", "<>", "!=", "<", "<=", ">", ">=":
		if left.IsNull() || right.IsNull() {
			return sqltypes.NullValue(), nil
		}
		return sqltypes.BoolValue(compare(left, right, e.Op)), nil
	case "LIKE":
		if left.IsNull() || right.IsNull() {
			return sqltypes.NullValue(), nil
		}
		return sqltypes.BoolValue(likeMatch(left.Text(), right.Text())), nil
	case "+", "-", "*", "/":
		if left.IsNull() || right.IsNull() {
			return sqltypes.NullValue(), nil
		}
		return arith(left, right, e.Op)
	case "->", "->>":
		if left.IsNull() {
			return sqltypes.NullValue(), nil
		}
		return jsonExtract(e.Op, left, right)
	default:
		return sqltypes.Value{}, merrors.New(merrors.KindInternal, "unknown binary operator %s", e.Op)
	}
}

// evalAnd implements NULL AND FALSE = FALSE, otherwise NULL AND x = NULL.
func (c *rowContext) evalAnd(leftExpr, rightExpr sqlparser.Expr) (sqltypes.Value, error) {
	left, err := c.eval(leftExpr)
	if err != nil {
		return sqltypes.Value{}, err
	}
	if !left.IsNull() && !truthy(left) {
		return sqltypes.BoolValue(false), nil
	}
	right, err := c.eval(rightExpr)
	if err != nil {
		return sqltypes.Value{}, err
	}
	if !right.IsNull() && !truthy(right) {
		return sqltypes.BoolValue(false), nil
	}
	if left.IsNull() || right.IsNull() {
		return sqltypes.NullValue(), nil
	}
	return sqltypes.BoolValue(true), nil
}

// evalOr implements NULL OR TRUE = TRUE, otherwise NULL OR x = NULL.
func (c *rowContext) evalOr(leftExpr, rightExpr sqlparser.Expr) (sqltypes.Value, error) {
	left, err := c.eval(leftExpr)
	if err != nil {
		return sqltypes.Value{}, err
	}
	if !left.IsNull() && truthy(left) {
		return sqltypes.BoolValue(true), nil
	}
	right, err := c.eval(rightExpr)
	if err != nil {
		return sqltypes.Value{}, err
	}
	if !right.IsNull() && truthy(right) {
		return sqltypes.BoolValue(true), nil
	}
	if left.IsNull() || right.IsNull() {
		return sqltypes.NullValue(), nil
	}
	return sqltypes.BoolValue(false), nil
}

func (c *rowContext) evalIsNull(e sqlparser.IsNullExpr) (sqltypes.Value, error) {
	v, err := c.eval(e.X)
	if err != nil {
		return sqltypes.Value{}, err
	}
	isNull := v.IsNull()
	if e.Not {
		return sqltypes.BoolValue(!isNull), nil
	}
	return sqltypes.BoolValue(isNull), nil
}

func (c *rowContext) evalIn(e sqlparser.InExpr) (sqltypes.Value, error) {
	x, err := c.eval(e.X)
	if err != nil {
		return sqltypes.Value{}, err
	}
	if x.IsNull() {
		return sqltypes.NullValue(), nil
	}
	sawNull := false
	matched := false
	for _, item := range e.List {
		v, err := c.eval(item)
		if err != nil {
			return sqltypes.Value{}, err
		}
		if v.IsNull() {
			sawNull = true
			continue
		}
		if compare(x, v, "=") {
			matched = true
			break
		}
	}
	result := matched
	if e.Not {
		result = !matched
	}
	if !matched && sawNull {
		return sqltypes.NullValue(), nil
	}
	return sqltypes.BoolValue(result), nil
}

// compare evaluates a non-NULL comparison, using numeric comparison when
// either side is numeric and text comparison otherwise, per §4.B.
func compare(a, b sqltypes.Value, op string) bool {
	var cmp int
	if isNumeric(a) || isNumeric(b) {
		af, bf, _, _, _ := sqltypes.CoerceForArith(a, b)
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		default:
			cmp = 0
		}
	} else {
		as, bs := a.Text(), b.Text()
		switch {
		case as < bs:
			cmp = -1
		case as > bs:
			cmp = 1
		default:
			cmp = 0
		}
	}
	switch op {
	case "=":
		return cmp == 0
	case "<>", "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func isNumeric(v sqltypes.Value) bool {
	switch v.Type() {
	case sqltypes.Integer, sqltypes.Float, sqltypes.Boolean:
		return true
	default:
		return false
	}
}

func arith(a, b sqltypes.Value, op string) (sqltypes.Value, error) {
	af, bf, bothInt, ai, bi := sqltypes.CoerceForArith(a, b)
	if bothInt && op != "/" {
		switch op {
		case "+":
			return sqltypes.IntValue(ai + bi), nil
		case "-":
			return sqltypes.IntValue(ai - bi), nil
		case "*":
			return sqltypes.IntValue(ai * bi), nil
		}
	}
	switch op {
	case "+":
		return sqltypes.FloatValue(af + bf), nil
	case "-":
		return sqltypes.FloatValue(af - bf), nil
	case "*":
		return sqltypes.FloatValue(af * bf), nil
	case "/":
		if bf == 0 {
			return sqltypes.NullValue(), nil
		}
		return sqltypes.FloatValue(af / bf), nil
	default:
		return sqltypes.Value{}, merrors.New(merrors.KindInternal, "unknown arithmetic operator %s", op)
	}
}

// likeMatch implements SQL LIKE with % (any run) and _ (single char)
// wildcards, case-insensitively (MySQL's default collation behavior for
// non-binary strings).
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(strings.ToLower(s)), []rune(strings.ToLower(pattern)))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}

// jsonExtract implements the single-key JSON path form: ->'key' and ->>'key'
// look up a top-level field in a flat JSON object stored as text; anything
// else was already rejected at parse time. -> returns the field as JSON
// (strings stay quoted), ->> unquotes string fields to raw text, so
// unquote(d->'k') = d->>'k'.
func jsonExtract(op string, doc, key sqltypes.Value) (sqltypes.Value, error) {
	v, ok := extractJSONValue(doc.Text(), key.Text())
	if !ok {
		return sqltypes.NullValue(), nil
	}
	rendered, ok := renderJSONField(v, op == "->>")
	if !ok {
		return sqltypes.NullValue(), nil
	}
	return sqltypes.TextValue(rendered), nil
}
