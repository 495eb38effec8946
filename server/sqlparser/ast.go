package sqlparser

import "github.com/minisql/minisql/server/sqltypes"

// Statement is the root of every parsed SQL statement.
type Statement interface{ isStatement() }

type CreateTable struct {
	IfNotExists bool
	Table       string
	Columns     []ColumnSpec
}

type ColumnSpec struct {
	Name          string
	Type          sqltypes.Type
	Length        int
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	HasDefault    bool
	Default       Expr
}

type DropTable struct {
	IfExists bool
	Table    string
}

type TruncateTable struct {
	Table string
}

type CreateIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

type DropIndex struct {
	Name  string
	Table string
}

type AlterEngine struct {
	Table  string
	Engine string // "GRANITE" | "SANDSTONE"
}

type ShowTables struct{}

type Describe struct {
	Table string
}

type Vacuum struct{}

type Checkpoint struct{}

type BeginStmt struct{}
type CommitStmt struct{}
type RollbackStmt struct{}

type InsertStmt struct {
	Table   string
	Columns []string // empty means "all columns in schema order"
	Rows    [][]Expr
}

type UpdateStmt struct {
	Table string
	Sets  []Assignment
	Where Expr
}

type Assignment struct {
	Column string
	Value  Expr
}

type DeleteStmt struct {
	Table string
	Where Expr
}

type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
)

type JoinClause struct {
	Kind  JoinKind
	Table string
	Alias string
	On    Expr
}

type OrderItem struct {
	Expr Expr
	Desc bool
}

type SelectStmt struct {
	Projections []Projection
	Table       string
	Alias       string
	Joins       []JoinClause
	Where       Expr
	GroupBy     []Expr
	OrderBy     []OrderItem
	Limit       *int64
	Offset      *int64
}

type Projection struct {
	Expr  Expr
	Alias string
	Star  bool   // SELECT *
	Table string // table-qualified star: table.*, "" otherwise
}

func (CreateTable) isStatement()    {}
func (DropTable) isStatement()      {}
func (TruncateTable) isStatement()  {}
func (CreateIndex) isStatement()    {}
func (DropIndex) isStatement()      {}
func (AlterEngine) isStatement()    {}
func (ShowTables) isStatement()     {}
func (Describe) isStatement()       {}
func (Vacuum) isStatement()         {}
func (Checkpoint) isStatement()     {}
func (BeginStmt) isStatement()      {}
func (CommitStmt) isStatement()     {}
func (RollbackStmt) isStatement()   {}
func (InsertStmt) isStatement()     {}
func (UpdateStmt) isStatement()     {}
func (DeleteStmt) isStatement()     {}
func (SelectStmt) isStatement()     {}

// Expr is any expression node in the WHERE/projection/ON grammar.
type Expr interface{ isExpr() }

type LiteralExpr struct{ Value sqltypes.Value }

type ParamExpr struct{ Index int } // 0-based position among '?' markers

type ColumnRef struct {
	Table  string // "" if unqualified
	Column string
}

type UnaryExpr struct {
	Op string // "NOT", "-"
	X  Expr
}

type BinaryExpr struct {
	Op    string // "=", "<>", "<", "<=", ">", ">=", "AND", "OR", "+", "-", "*", "/", "LIKE", "->", "->>"
	Left  Expr
	Right Expr
}

type IsNullExpr struct {
	X     Expr
	Not   bool
}

type InExpr struct {
	X       Expr
	List    []Expr
	Not     bool
}

type FuncCall struct {
	Name string // "COUNT", "SUM", "AVG", "MIN", "MAX", "LAST_INSERT_ID"
	Args []Expr
	Star bool // COUNT(*)
}

func (LiteralExpr) isExpr() {}
func (ParamExpr) isExpr()   {}
func (ColumnRef) isExpr()   {}
func (UnaryExpr) isExpr()   {}
func (BinaryExpr) isExpr()  {}
func (IsNullExpr) isExpr()  {}
func (InExpr) isExpr()      {}
func (FuncCall) isExpr()    {}
