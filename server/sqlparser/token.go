package sqlparser

// TokenKind classifies one lexical token.
type TokenKind int

const (
	EOF TokenKind = iota
	Ident
	QuotedIdent // `backtick`
	Number
	String      // 'single quoted'
	Param       // ?
	Punct       // single-char punctuation: ( ) , . * ; etc.
	Op          // multi-char operators: <> <= >= != -> ->>
	Keyword
)

type Token struct {
	Kind TokenKind
	Text string // original spelling for Ident/Number/String; canonical upper-case for Keyword
	Pos  int
}

var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "INSERT": true, "INTO": true,
	"VALUES": true, "UPDATE": true, "SET": true, "DELETE": true, "CREATE": true,
	"TABLE": true, "DROP": true, "TRUNCATE": true, "INDEX": true, "ALTER": true,
	"ENGINE": true, "SHOW": true, "TABLES": true, "DESCRIBE": true, "VACUUM": true,
	"CHECKPOINT": true, "IF": true, "NOT": true, "EXISTS": true, "AND": true,
	"OR": true, "IS": true, "NULL": true, "LIKE": true, "IN": true, "JOIN": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "ON": true, "GROUP": true, "BY": true,
	"ORDER": true, "ASC": true, "DESC": true, "LIMIT": true, "OFFSET": true,
	"BEGIN": true, "START": true, "TRANSACTION": true, "COMMIT": true, "ROLLBACK": true,
	"AS": true, "PRIMARY": true, "KEY": true, "AUTO_INCREMENT": true, "DEFAULT": true,
	"INT": true, "INTEGER": true, "FLOAT": true, "DOUBLE": true, "VARCHAR": true,
	"TEXT": true, "BOOLEAN": true, "BOOL": true, "JSON": true, "TRUE": true, "FALSE": true,
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"LAST_INSERT_ID": true, "UNIQUE": true,
}

// isKeyword reports whether upper is a reserved word. Identifiers that
// merely contain a reserved-word spelling as a substring (e.g. "platform",
// "inform") are never affected — the lexer only calls this on a whole
// identifier-shaped token.
func isKeyword(upper string) bool {
	return keywords[upper]
}
