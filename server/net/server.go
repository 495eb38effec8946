// Package net implements the TCP accept loop and per-connection protocol
// state machine described in spec.md §4.H: one goroutine per connection,
// handshake through command dispatch, until the socket closes.
package net

import (
	"net"
	"sync/atomic"

	"github.com/minisql/minisql/logger"
	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/executor"
)

// Server accepts TCP connections and spawns one handler goroutine per
// connection, sharing the catalog/executor/auth configuration across all
// of them.
type Server struct {
	listener net.Listener
	exec     *executor.Executor
	catalog  *catalog.Catalog
	user     string
	password string
	nextConn uint32
}

// New binds addr (host:port) and returns a Server ready to Serve.
func New(addr string, exec *executor.Executor, cat *catalog.Catalog, user, password string) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: l, exec: exec, catalog: cat, user: user, password: password}, nil
}

// Addr returns the listener's bound address (useful when addr was ":0").
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed, handling each on
// its own goroutine. It returns once Close stops the listener.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			logger.Errorf("accept: %v", err)
			continue
		}
		connID := atomic.AddUint32(&s.nextConn, 1)
		go s.handle(conn, connID)
	}
}

// Close stops accepting new connections. In-flight connections run to
// completion on their own.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn, connID uint32) {
	h := &connHandler{
		conn:     conn,
		connID:   connID,
		exec:     s.exec,
		catalog:  s.catalog,
		user:     s.user,
		password: s.password,
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("connection %d panicked: %v", connID, r)
		}
	}()
	if err := h.run(); err != nil {
		logger.Infof("connection %d closed: %v", connID, err)
	}
	_ = conn.Close()
}

func isClosedErr(err error) bool {
	var netErr *net.OpError
	if ok := asOpError(err, &netErr); ok {
		return netErr.Err.Error() == "use of closed network connection"
	}
	return false
}

func asOpError(err error, target **net.OpError) bool {
	if oe, ok := err.(*net.OpError); ok {
		*target = oe
		return true
	}
	return false
}
