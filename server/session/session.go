// Package session holds per-connection state: the current database,
// autocommit/transaction handle, prepared-statement registry, and
// last_insert_id — all connection-local per spec.md §5 (no cross-connection
// sharing of any of it).
package session

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/minisql/minisql/server/engine"
	"github.com/minisql/minisql/server/sqlparser"
)

// PreparedStmt is one entry in a connection's STMT_PREPARE registry.
type PreparedStmt struct {
	ID        uint32
	SQL       string
	Statement sqlparser.Statement
	NumParams int
	// ColumnCount is known at prepare time for most statements; 0 and
	// "unresolved" for statements whose result shape is only known after
	// the first execute (spec.md §4.H).
	ColumnCount int
	Resolved    bool
}

// Session is one connection's state. Nothing here is shared across
// connections; the net package allocates one Session per accepted socket.
type Session struct {
	ID       uint32
	User     string
	Database string
	Conn     net.Conn

	mu           sync.Mutex
	inTxn        bool
	txn          engine.Txn
	lastInsertID uint64
	stmts        map[uint32]*PreparedStmt
	nextStmtID   uint32
}

// New constructs a Session for an accepted connection. id should be unique
// for the server's lifetime (used as the handshake connection id too).
func New(id uint32, conn net.Conn, user string) *Session {
	return &Session{
		ID:       id,
		User:     user,
		Database: "minisql",
		Conn:     conn,
		stmts:    make(map[uint32]*PreparedStmt),
	}
}

// InTxn reports whether an explicit transaction (BEGIN) is open.
func (s *Session) InTxn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTxn
}

// BeginTxn opens an explicit transaction against eng, replacing any implicit
// per-statement one. Returns the new txn handle for the executor to use.
func (s *Session) BeginTxn(eng engine.Engine) (engine.Txn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, err := eng.Begin()
	if err != nil {
		return nil, err
	}
	s.inTxn = true
	s.txn = txn
	return txn, nil
}

// CurrentTxn returns the session's open explicit transaction, or nil if
// none — the executor (runMutation) begins an implicit one-statement txn
// in that case.
func (s *Session) CurrentTxn() engine.Txn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn
}

// EndTxn clears the session's explicit-transaction state after COMMIT or
// ROLLBACK.
func (s *Session) EndTxn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTxn = false
	s.txn = nil
}

// LastInsertID returns the value most recently set by SetLastInsertID.
func (s *Session) LastInsertID() uint64 {
	return atomic.LoadUint64(&s.lastInsertID)
}

// SetLastInsertID records the generated key from the most recent successful
// INSERT into an auto-increment table, per spec.md §4.G.
func (s *Session) SetLastInsertID(v uint64) {
	atomic.StoreUint64(&s.lastInsertID, v)
}

// PrepareStatement registers a parsed statement and returns its assigned
// statement id.
func (s *Session) PrepareStatement(sql string, stmt sqlparser.Statement, numParams, columnCount int, resolved bool) *PreparedStmt {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStmtID++
	ps := &PreparedStmt{
		ID:          s.nextStmtID,
		SQL:         sql,
		Statement:   stmt,
		NumParams:   numParams,
		ColumnCount: columnCount,
		Resolved:    resolved,
	}
	s.stmts[ps.ID] = ps
	return ps
}

// Statement looks up a previously prepared statement.
func (s *Session) Statement(id uint32) (*PreparedStmt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.stmts[id]
	return ps, ok
}

// CloseStatement removes a statement from the registry (COM_STMT_CLOSE).
func (s *Session) CloseStatement(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stmts, id)
}

// Close releases the session's resources, aborting any open transaction —
// the behavior a mid-statement socket close must trigger per spec.md §5.
func (s *Session) Close() error {
	s.mu.Lock()
	txn := s.txn
	s.txn = nil
	s.inTxn = false
	s.mu.Unlock()
	if txn != nil {
		_ = txn.Abort()
	}
	return s.Conn.Close()
}
