package sqlparser

import (
	"strconv"
	"strings"

	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqltypes"
)

// Parser turns a token stream into a Statement. It never resolves table or
// column existence — per §4.C that happens at execution time so that
// `DROP TABLE IF EXISTS` can succeed against an absent table.
type Parser struct {
	lx       *Lexer
	tok      Token
	lookahead *Token
	numParams int
}

// Parse parses a single SQL statement, ignoring one optional trailing
// semicolon.
func Parse(sql string) (Statement, error) {
	p := &Parser{lx: NewLexer(sql)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind == Punct && p.tok.Text == ";" {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.tok.Kind != EOF {
		return nil, merrors.ParseErrorNear(p.tok.Text)
	}
	return stmt, nil
}

func (p *Parser) advance() error {
	if p.lookahead != nil {
		p.tok = *p.lookahead
		p.lookahead = nil
		return nil
	}
	t, err := p.lx.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *Parser) peek2() (Token, error) {
	if p.lookahead == nil {
		t, err := p.lx.Next()
		if err != nil {
			return Token{}, err
		}
		p.lookahead = &t
	}
	return *p.lookahead, nil
}

func (p *Parser) isKeyword(kw string) bool {
	return p.tok.Kind == Keyword && p.tok.Text == kw
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return merrors.ParseErrorNear(p.tok.Text)
	}
	return p.advance()
}

func (p *Parser) expectPunct(s string) error {
	if (p.tok.Kind != Punct && p.tok.Kind != Op) || p.tok.Text != s {
		return merrors.ParseErrorNear(p.tok.Text)
	}
	return p.advance()
}

// identName accepts either a bare or backtick-quoted identifier. A keyword
// token is rejected; a reserved word is usable as a name only when quoted.
func (p *Parser) identName() (string, error) {
	if p.tok.Kind == Ident || p.tok.Kind == QuotedIdent {
		name := p.tok.Text
		return name, p.advance()
	}
	return "", merrors.ParseErrorNear(p.tok.Text)
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.isKeyword("SELECT"):
		return p.parseSelect()
	case p.isKeyword("INSERT"):
		return p.parseInsert()
	case p.isKeyword("UPDATE"):
		return p.parseUpdate()
	case p.isKeyword("DELETE"):
		return p.parseDelete()
	case p.isKeyword("CREATE"):
		return p.parseCreate()
	case p.isKeyword("DROP"):
		return p.parseDrop()
	case p.isKeyword("TRUNCATE"):
		return p.parseTruncate()
	case p.isKeyword("ALTER"):
		return p.parseAlter()
	case p.isKeyword("SHOW"):
		return p.parseShow()
	case p.isKeyword("DESCRIBE"):
		return p.parseDescribe()
	case p.isKeyword("VACUUM"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Vacuum{}, nil
	case p.isKeyword("CHECKPOINT"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Checkpoint{}, nil
	case p.isKeyword("BEGIN"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return BeginStmt{}, nil
	case p.isKeyword("START"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("TRANSACTION"); err != nil {
			return nil, err
		}
		return BeginStmt{}, nil
	case p.isKeyword("COMMIT"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return CommitStmt{}, nil
	case p.isKeyword("ROLLBACK"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return RollbackStmt{}, nil
	default:
		return nil, merrors.ParseErrorNear(p.tok.Text)
	}
}

// ---- DDL ----

func (p *Parser) parseColumnType() (sqltypes.Type, int, error) {
	switch {
	case p.isKeyword("INT"), p.isKeyword("INTEGER"):
		return sqltypes.Integer, 0, p.advance()
	case p.isKeyword("FLOAT"), p.isKeyword("DOUBLE"):
		return sqltypes.Float, 0, p.advance()
	case p.isKeyword("BOOLEAN"), p.isKeyword("BOOL"):
		return sqltypes.Boolean, 0, p.advance()
	case p.isKeyword("TEXT"):
		return sqltypes.Text, 0, p.advance()
	case p.isKeyword("JSON"):
		return sqltypes.JSON, 0, p.advance()
	case p.isKeyword("VARCHAR"):
		if err := p.advance(); err != nil {
			return 0, 0, err
		}
		if err := p.expectPunct("("); err != nil {
			return 0, 0, err
		}
		if p.tok.Kind != Number {
			return 0, 0, merrors.ParseErrorNear(p.tok.Text)
		}
		n, _ := strconv.Atoi(p.tok.Text)
		if err := p.advance(); err != nil {
			return 0, 0, err
		}
		if err := p.expectPunct(")"); err != nil {
			return 0, 0, err
		}
		return sqltypes.Varchar, n, nil
	default:
		return 0, 0, merrors.ParseErrorNear(p.tok.Text)
	}
}

func (p *Parser) parseCreate() (Statement, error) {
	if err := p.advance(); err != nil { // CREATE
		return nil, err
	}
	if p.isKeyword("TABLE") {
		return p.parseCreateTable()
	}
	if p.isKeyword("INDEX") {
		return p.parseCreateIndex(false)
	}
	if p.isKeyword("UNIQUE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("INDEX"); err != nil {
			return nil, err
		}
		return p.parseCreateIndexBody(true)
	}
	return nil, merrors.ParseErrorNear(p.tok.Text)
}

func (p *Parser) parseCreateIndex(unique bool) (Statement, error) {
	if err := p.advance(); err != nil { // INDEX
		return nil, err
	}
	return p.parseCreateIndexBody(unique)
}

func (p *Parser) parseCreateIndexBody(unique bool) (Statement, error) {
	name, err := p.identName()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		c, err := p.identName()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		if p.tok.Kind == Punct && p.tok.Text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return CreateIndex{Name: name, Table: table, Columns: cols, Unique: unique}, nil
}

func (p *Parser) parseCreateTable() (Statement, error) {
	if err := p.advance(); err != nil { // TABLE
		return nil, err
	}
	ifNotExists := false
	if p.isKeyword("IF") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []ColumnSpec
	for {
		col, err := p.parseColumnSpec()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.tok.Kind == Punct && p.tok.Text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return CreateTable{IfNotExists: ifNotExists, Table: table, Columns: cols}, nil
}

func (p *Parser) parseColumnSpec() (ColumnSpec, error) {
	name, err := p.identName()
	if err != nil {
		return ColumnSpec{}, err
	}
	typ, length, err := p.parseColumnType()
	if err != nil {
		return ColumnSpec{}, err
	}
	spec := ColumnSpec{Name: name, Type: typ, Length: length, Nullable: true}
	for {
		switch {
		case p.isKeyword("NOT"):
			if err := p.advance(); err != nil {
				return ColumnSpec{}, err
			}
			if err := p.expectKeyword("NULL"); err != nil {
				return ColumnSpec{}, err
			}
			spec.Nullable = false
		case p.isKeyword("NULL"):
			if err := p.advance(); err != nil {
				return ColumnSpec{}, err
			}
			spec.Nullable = true
		case p.isKeyword("PRIMARY"):
			if err := p.advance(); err != nil {
				return ColumnSpec{}, err
			}
			if err := p.expectKeyword("KEY"); err != nil {
				return ColumnSpec{}, err
			}
			spec.PrimaryKey = true
			spec.Nullable = false
		case p.isKeyword("AUTO_INCREMENT"):
			if err := p.advance(); err != nil {
				return ColumnSpec{}, err
			}
			spec.AutoIncrement = true
		case p.isKeyword("DEFAULT"):
			if err := p.advance(); err != nil {
				return ColumnSpec{}, err
			}
			def, err := p.parsePrimary()
			if err != nil {
				return ColumnSpec{}, err
			}
			spec.HasDefault = true
			spec.Default = def
		default:
			return spec, nil
		}
	}
}

func (p *Parser) parseDrop() (Statement, error) {
	if err := p.advance(); err != nil { // DROP
		return nil, err
	}
	if p.isKeyword("TABLE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		ifExists := false
		if p.isKeyword("IF") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectKeyword("EXISTS"); err != nil {
				return nil, err
			}
			ifExists = true
		}
		table, err := p.identName()
		if err != nil {
			return nil, err
		}
		return DropTable{IfExists: ifExists, Table: table}, nil
	}
	if p.isKeyword("INDEX") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.identName()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		table, err := p.identName()
		if err != nil {
			return nil, err
		}
		return DropIndex{Name: name, Table: table}, nil
	}
	return nil, merrors.ParseErrorNear(p.tok.Text)
}

func (p *Parser) parseTruncate() (Statement, error) {
	if err := p.advance(); err != nil { // TRUNCATE
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	return TruncateTable{Table: table}, nil
}

func (p *Parser) parseAlter() (Statement, error) {
	if err := p.advance(); err != nil { // ALTER
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ENGINE"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	engine, err := p.identName()
	if err != nil {
		// ENGINE names are often written bare (GRANITE/SANDSTONE) which
		// lex as identifiers already; nothing else to try.
		return nil, err
	}
	return AlterEngine{Table: table, Engine: strings.ToUpper(engine)}, nil
}

func (p *Parser) parseShow() (Statement, error) {
	if err := p.advance(); err != nil { // SHOW
		return nil, err
	}
	if err := p.expectKeyword("TABLES"); err != nil {
		return nil, err
	}
	return ShowTables{}, nil
}

func (p *Parser) parseDescribe() (Statement, error) {
	if err := p.advance(); err != nil { // DESCRIBE
		return nil, err
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	return Describe{Table: table}, nil
}

// ---- DML ----

func (p *Parser) parseInsert() (Statement, error) {
	if err := p.advance(); err != nil { // INSERT
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	var cols []string
	if p.tok.Kind == Punct && p.tok.Text == "(" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			c, err := p.identName()
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
			if p.tok.Kind == Punct && p.tok.Text == "," {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	var rows [][]Expr
	for {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var row []Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.tok.Kind == Punct && p.tok.Text == "," {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.tok.Kind == Punct && p.tok.Text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return InsertStmt{Table: table, Columns: cols, Rows: rows}, nil
}

func (p *Parser) parseUpdate() (Statement, error) {
	if err := p.advance(); err != nil { // UPDATE
		return nil, err
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var sets []Assignment
	for {
		col, err := p.identName()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sets = append(sets, Assignment{Column: col, Value: val})
		if p.tok.Kind == Punct && p.tok.Text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	var where Expr
	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return UpdateStmt{Table: table, Sets: sets, Where: where}, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	if err := p.advance(); err != nil { // DELETE
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.identName()
	if err != nil {
		return nil, err
	}
	var where Expr
	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return DeleteStmt{Table: table, Where: where}, nil
}

func (p *Parser) parseSelect() (Statement, error) {
	if err := p.advance(); err != nil { // SELECT
		return nil, err
	}
	var projs []Projection
	for {
		proj, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		projs = append(projs, proj)
		if p.tok.Kind == Punct && p.tok.Text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	stmt := SelectStmt{Projections: projs}
	if p.isKeyword("FROM") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		table, err := p.identName()
		if err != nil {
			return nil, err
		}
		stmt.Table = table
		if alias, ok, err := p.maybeAlias(); err != nil {
			return nil, err
		} else if ok {
			stmt.Alias = alias
		}
		for p.isKeyword("INNER") || p.isKeyword("LEFT") || p.isKeyword("RIGHT") || p.isKeyword("JOIN") {
			jc, err := p.parseJoin()
			if err != nil {
				return nil, err
			}
			stmt.Joins = append(stmt.Joins, jc)
		}
	}
	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	if p.isKeyword("GROUP") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if p.tok.Kind == Punct && p.tok.Text == "," {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if p.isKeyword("ORDER") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Expr: e}
			if p.isKeyword("DESC") {
				item.Desc = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			} else if p.isKeyword("ASC") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if p.tok.Kind == Punct && p.tok.Text == "," {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if p.isKeyword("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Kind != Number {
			return nil, merrors.ParseErrorNear(p.tok.Text)
		}
		n, _ := strconv.ParseInt(p.tok.Text, 10, 64)
		if err := p.advance(); err != nil {
			return nil, err
		}
		stmt.Limit = &n
		if p.isKeyword("OFFSET") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.Kind != Number {
				return nil, merrors.ParseErrorNear(p.tok.Text)
			}
			o, _ := strconv.ParseInt(p.tok.Text, 10, 64)
			if err := p.advance(); err != nil {
				return nil, err
			}
			stmt.Offset = &o
		}
	}
	return stmt, nil
}

func (p *Parser) maybeAlias() (string, bool, error) {
	if p.isKeyword("AS") {
		if err := p.advance(); err != nil {
			return "", false, err
		}
		name, err := p.identName()
		if err != nil {
			return "", false, err
		}
		return name, true, nil
	}
	if p.tok.Kind == Ident {
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return "", false, err
		}
		return name, true, nil
	}
	return "", false, nil
}

func (p *Parser) parseJoin() (JoinClause, error) {
	kind := InnerJoin
	switch {
	case p.isKeyword("INNER"):
		if err := p.advance(); err != nil {
			return JoinClause{}, err
		}
	case p.isKeyword("LEFT"):
		kind = LeftJoin
		if err := p.advance(); err != nil {
			return JoinClause{}, err
		}
	case p.isKeyword("RIGHT"):
		kind = RightJoin
		if err := p.advance(); err != nil {
			return JoinClause{}, err
		}
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return JoinClause{}, err
	}
	table, err := p.identName()
	if err != nil {
		return JoinClause{}, err
	}
	alias, _, err := p.maybeAlias()
	if err != nil {
		return JoinClause{}, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return JoinClause{}, err
	}
	on, err := p.parseExpr()
	if err != nil {
		return JoinClause{}, err
	}
	return JoinClause{Kind: kind, Table: table, Alias: alias, On: on}, nil
}

func (p *Parser) parseProjection() (Projection, error) {
	if p.tok.Kind == Punct && p.tok.Text == "*" {
		if err := p.advance(); err != nil {
			return Projection{}, err
		}
		return Projection{Star: true}, nil
	}
	// table.* lookahead: Ident '.' '*'
	if p.tok.Kind == Ident {
		la, err := p.peek2()
		if err == nil && la.Kind == Punct && la.Text == "." {
			savedTable := p.tok.Text
			// consume ident, dot; then check for '*'
			if err := p.advance(); err != nil {
				return Projection{}, err
			}
			if err := p.advance(); err != nil {
				return Projection{}, err
			}
			if p.tok.Kind == Punct && p.tok.Text == "*" {
				if err := p.advance(); err != nil {
					return Projection{}, err
				}
				return Projection{Star: true, Table: savedTable}, nil
			}
			// not a star after all: re-synthesize a ColumnRef-rooted expr
			col, err := p.identName()
			if err != nil {
				return Projection{}, err
			}
			e, err := p.parseExprContinuation(ColumnRef{Table: savedTable, Column: col})
			if err != nil {
				return Projection{}, err
			}
			return p.finishProjection(e)
		}
	}
	e, err := p.parseExpr()
	if err != nil {
		return Projection{}, err
	}
	return p.finishProjection(e)
}

func (p *Parser) finishProjection(e Expr) (Projection, error) {
	proj := Projection{Expr: e}
	if alias, ok, err := p.maybeAlias(); err != nil {
		return Projection{}, err
	} else if ok {
		proj.Alias = alias
	}
	return proj, nil
}

// ---- Expressions (precedence climbing) ----
// OR < AND < NOT < comparison/IS/LIKE/IN < +- < */ < unary < primary

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.isKeyword("NOT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: "NOT", X: x}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	return p.parseExprContinuation(left)
}

// parseExprContinuation applies any comparison/IS/LIKE/IN/JSON-operator
// suffix to an already-parsed left operand; shared by the normal
// comparison path and the table.column lookahead recovery in
// parseProjection.
func (p *Parser) parseExprContinuation(left Expr) (Expr, error) {
	for {
		switch {
		case p.tok.Kind == Punct && (p.tok.Text == "=" || p.tok.Text == "<" || p.tok.Text == ">"):
			op := p.tok.Text
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			left = BinaryExpr{Op: op, Left: left, Right: right}
		case p.tok.Kind == Op && (p.tok.Text == "<=" || p.tok.Text == ">=" || p.tok.Text == "<>" || p.tok.Text == "!="):
			op := p.tok.Text
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			left = BinaryExpr{Op: op, Left: left, Right: right}
		case p.tok.Kind == Op && (p.tok.Text == "->" || p.tok.Text == "->>"):
			op := p.tok.Text
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			left = BinaryExpr{Op: op, Left: left, Right: right}
		case p.isKeyword("LIKE"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			left = BinaryExpr{Op: "LIKE", Left: left, Right: right}
		case p.isKeyword("IS"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			not := false
			if p.isKeyword("NOT") {
				not = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			left = IsNullExpr{X: left, Not: not}
		case p.isKeyword("IN"), p.isKeyword("NOT") && p.nextIsIn():
			not := false
			if p.isKeyword("NOT") {
				not = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if err := p.expectKeyword("IN"); err != nil {
				return nil, err
			}
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			var list []Expr
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				list = append(list, e)
				if p.tok.Kind == Punct && p.tok.Text == "," {
					if err := p.advance(); err != nil {
						return nil, err
					}
					continue
				}
				break
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			left = InExpr{X: left, List: list, Not: not}
		default:
			return left, nil
		}
	}
}

func (p *Parser) nextIsIn() bool {
	la, err := p.peek2()
	return err == nil && la.Kind == Keyword && la.Text == "IN"
}

func (p *Parser) parseAddSub() (Expr, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == Punct && (p.tok.Text == "+" || p.tok.Text == "-") {
		op := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMulDiv() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == Punct && (p.tok.Text == "*" || p.tok.Text == "/") {
		op := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.tok.Kind == Punct && p.tok.Text == "-" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: "-", X: x}, nil
	}
	return p.parsePrimary()
}

var aggFuncs = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.tok.Kind == Number:
		text := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if strings.ContainsAny(text, ".eE") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, merrors.ParseErrorNear(text)
			}
			return LiteralExpr{Value: sqltypes.FloatValue(f)}, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, merrors.ParseErrorNear(text)
		}
		return LiteralExpr{Value: sqltypes.IntValue(n)}, nil
	case p.tok.Kind == String:
		s := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return LiteralExpr{Value: sqltypes.VarcharValue(s)}, nil
	case p.tok.Kind == Param:
		idx := p.numParams
		p.numParams++
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ParamExpr{Index: idx}, nil
	case p.isKeyword("TRUE"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return LiteralExpr{Value: sqltypes.BoolValue(true)}, nil
	case p.isKeyword("FALSE"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return LiteralExpr{Value: sqltypes.BoolValue(false)}, nil
	case p.isKeyword("NULL"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return LiteralExpr{Value: sqltypes.NullValue()}, nil
	case p.tok.Kind == Punct && p.tok.Text == "(":
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	case p.isKeyword("LAST_INSERT_ID"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return FuncCall{Name: "LAST_INSERT_ID"}, nil
	case p.tok.Kind == Keyword && aggFuncs[p.tok.Text]:
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if name == "COUNT" && p.tok.Kind == Punct && p.tok.Text == "*" {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return FuncCall{Name: name, Star: true}, nil
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return FuncCall{Name: name, Args: []Expr{arg}}, nil
	case p.tok.Kind == Ident:
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Kind == Punct && p.tok.Text == "." {
			if err := p.advance(); err != nil {
				return nil, err
			}
			col, err := p.identName()
			if err != nil {
				return nil, err
			}
			return ColumnRef{Table: name, Column: col}, nil
		}
		return ColumnRef{Column: name}, nil
	case p.tok.Kind == QuotedIdent:
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ColumnRef{Column: name}, nil
	default:
		return nil, merrors.ParseErrorNear(p.tok.Text)
	}
}

// NumParams reports how many distinct '?' markers the most recently parsed
// statement contained (tracked during parsing; used by the session layer to
// size COM_STMT_EXECUTE's parameter block).
func (p *Parser) NumParams() int { return p.numParams }

// ParseWithParamCount parses sql and also returns the positional parameter
// count, for COM_STMT_PREPARE.
func ParseWithParamCount(sql string) (Statement, int, error) {
	p := &Parser{lx: NewLexer(sql)}
	if err := p.advance(); err != nil {
		return nil, 0, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, 0, err
	}
	if p.tok.Kind == Punct && p.tok.Text == ";" {
		if err := p.advance(); err != nil {
			return nil, 0, err
		}
	}
	if p.tok.Kind != EOF {
		return nil, 0, merrors.ParseErrorNear(p.tok.Text)
	}
	return stmt, p.numParams, nil
}
