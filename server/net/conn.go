package net

import (
	"io"
	"net"

	"github.com/minisql/minisql/logger"
	"github.com/minisql/minisql/server/auth"
	"github.com/minisql/minisql/server/catalog"
	"github.com/minisql/minisql/server/common"
	"github.com/minisql/minisql/server/executor"
	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/protocol"
	"github.com/minisql/minisql/server/session"
	"github.com/minisql/minisql/server/sqlparser"
	"github.com/minisql/minisql/server/sqltypes"
)

// connHandler drives one connection's state machine: AwaitHandshake ->
// AwaitAuthResponse -> Authenticated -> (Command)*, per spec.md §4.H.
type connHandler struct {
	conn     net.Conn
	connID   uint32
	exec     *executor.Executor
	catalog  *catalog.Catalog
	user     string
	password string

	r    *protocol.Reader
	w    *protocol.Writer
	sess *session.Session
}

func (h *connHandler) run() error {
	h.r = protocol.NewReader(h.conn)
	h.w = protocol.NewWriter(h.conn)

	if err := h.handshake(); err != nil {
		return err
	}

	h.sess = session.New(h.connID, h.conn, h.user)
	defer h.sess.Close() // aborts any open transaction on disconnect, per spec.md §5

	for {
		h.r.ResetSeq()
		h.w.ResetSeq()
		payload, err := h.r.ReadPacket()
		if err != nil {
			return err
		}
		h.w.SetSeq(h.r.Seq())
		if len(payload) == 0 {
			continue
		}
		quit, err := h.dispatch(payload)
		if quit {
			return err
		}
		if err != nil {
			logger.Debugf("connection %d: command error: %v", h.connID, err)
		}
	}
}

// handshake performs the server-greeting / auth-response exchange. Returns
// nil only when the client authenticated. A transport failure is returned
// as is; a malformed auth response or a failed authentication is first
// reported to the client via ERR, then returned (the decode error, or
// io.EOF for bad credentials) so the caller closes the connection.
func (h *connHandler) handshake() error {
	hs, err := protocol.NewHandshake(h.connID)
	if err != nil {
		return err
	}
	if err := h.w.WritePacket(hs.Encode()); err != nil {
		return err
	}

	payload, err := h.r.ReadPacket()
	if err != nil {
		return err
	}
	resp, err := protocol.DecodeHandshakeResponse(payload)
	if err != nil {
		_ = h.writeErr(err)
		return err
	}

	if !auth.Authenticate(h.password, hs.AuthSeed, resp.AuthResponse) {
		_ = h.writeErr(merrors.AccessDenied(resp.Username, h.conn.RemoteAddr().String()))
		return io.EOF
	}
	h.user = resp.Username

	return h.w.WritePacket(protocol.EncodeOK(0, 0, protocol.StatusAutocommit, 0, ""))
}

// dispatch handles one command packet. quit reports whether the connection
// should close after this call (COM_QUIT, or an unrecoverable transport
// error writing the reply).
func (h *connHandler) dispatch(payload []byte) (quit bool, err error) {
	cmd := payload[0]
	body := payload[1:]

	switch cmd {
	case common.COM_QUIT:
		return true, nil
	case common.COM_PING:
		return false, h.writeOK(&executor.OkSummary{})
	case common.COM_INIT_DB:
		h.sess.Database = string(body)
		return false, h.writeOK(&executor.OkSummary{})
	case common.COM_QUERY:
		return false, h.handleQuery(string(body))
	case common.COM_STMT_PREPARE:
		return false, h.handlePrepare(string(body))
	case common.COM_STMT_EXECUTE:
		return false, h.handleExecute(payload)
	case common.COM_STMT_CLOSE:
		id, err := protocol.DecodeStmtIDPayload(payload)
		if err == nil {
			h.sess.CloseStatement(id)
		}
		return false, nil // COM_STMT_CLOSE has no response
	case common.COM_STMT_RESET:
		id, err := protocol.DecodeStmtIDPayload(payload)
		if err != nil {
			return false, h.writeErr(err)
		}
		if _, ok := h.sess.Statement(id); !ok {
			return false, h.writeErr(merrors.New(merrors.KindInternal, "unknown statement id %d", id))
		}
		return false, h.writeOK(&executor.OkSummary{})
	default:
		return false, h.writeErr(merrors.New(merrors.KindNotSupported, "command %s not supported", common.CommandString(cmd)))
	}
}

func (h *connHandler) handleQuery(sql string) error {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return h.writeErr(err)
	}
	rs, ok, err := h.exec.Execute(h.sess, stmt, nil)
	if err != nil {
		return h.writeErr(err)
	}
	if rs != nil {
		return h.writeTextResultSet(rs)
	}
	return h.writeOK(ok)
}

func (h *connHandler) handlePrepare(sql string) error {
	stmt, numParams, err := sqlparser.ParseWithParamCount(sql)
	if err != nil {
		return h.writeErr(err)
	}

	columns, resolved := h.previewColumns(stmt)
	ps := h.sess.PrepareStatement(sql, stmt, numParams, len(columns), resolved)

	if err := h.w.WritePacket(protocol.StmtPrepareOK{
		StatementID: ps.ID,
		NumColumns:  uint16(len(columns)),
		NumParams:   uint16(numParams),
	}.Encode()); err != nil {
		return err
	}
	for i := 0; i < numParams; i++ {
		pkt := protocol.ColumnPacketFor("", sqltypes.ColumnDef{Name: "?", Type: sqltypes.Varchar, Nullable: true})
		if err := h.w.WritePacket(pkt.Encode()); err != nil {
			return err
		}
	}
	if numParams > 0 {
		if err := h.w.WritePacket(protocol.EncodeEOF(0, protocol.StatusAutocommit)); err != nil {
			return err
		}
	}
	for _, c := range columns {
		pkt := protocol.ColumnPacketFor("", c.Def)
		if err := h.w.WritePacket(pkt.Encode()); err != nil {
			return err
		}
	}
	if len(columns) > 0 {
		if err := h.w.WritePacket(protocol.EncodeEOF(0, protocol.StatusAutocommit)); err != nil {
			return err
		}
	}
	return nil
}

// previewColumns resolves a SELECT's result-set shape without running it,
// so COM_STMT_PREPARE's column-definition block can be sent up front per
// spec.md §4.H. resolved is false (and columns nil) for any statement whose
// shape can't be known until execute time, including non-SELECT statements.
func (h *connHandler) previewColumns(stmt sqlparser.Statement) (columns []executor.Column, resolved bool) {
	sel, ok := stmt.(sqlparser.SelectStmt)
	if !ok {
		return nil, false
	}
	cols, err := h.exec.PreviewSelectColumns(sel)
	if err != nil {
		return nil, false
	}
	return cols, true
}

func (h *connHandler) handleExecute(payload []byte) error {
	hdr, rest, err := protocol.DecodeStmtExecuteHeader(payload)
	if err != nil {
		return h.writeErr(err)
	}
	ps, ok := h.sess.Statement(hdr.StatementID)
	if !ok {
		return h.writeErr(merrors.New(merrors.KindInternal, "unknown statement id %d", hdr.StatementID))
	}

	var params []sqltypes.Value
	if ps.NumParams > 0 {
		params, err = protocol.DecodeBinaryParams(rest, ps.NumParams)
		if err != nil {
			return h.writeErr(err)
		}
	}

	rs, ok2, err := h.exec.Execute(h.sess, ps.Statement, params)
	if err != nil {
		return h.writeErr(err)
	}
	if rs != nil {
		return h.writeBinaryResultSet(rs)
	}
	return h.writeOK(ok2)
}

func (h *connHandler) statusFlags() uint16 {
	if h.sess.InTxn() {
		return protocol.StatusInTransaction
	}
	return protocol.StatusAutocommit
}

func (h *connHandler) writeOK(ok *executor.OkSummary) error {
	if ok == nil {
		ok = &executor.OkSummary{}
	}
	return h.w.WritePacket(protocol.EncodeOK(ok.AffectedRows, ok.LastInsertID, h.statusFlags(), 0, ok.Info))
}

func (h *connHandler) writeErr(err error) error {
	code, sqlState, msg := merrors.CodeOf(err)
	return h.w.WritePacket(protocol.EncodeErr(code, sqlState, msg))
}

func (h *connHandler) writeTextResultSet(rs *executor.ResultSet) error {
	if err := h.w.WritePacket(protocol.EncodeColumnCount(len(rs.Columns))); err != nil {
		return err
	}
	for _, c := range rs.Columns {
		pkt := protocol.ColumnPacketFor("", c.Def)
		pkt.Name = c.Name
		pkt.OrgName = c.Name
		if err := h.w.WritePacket(pkt.Encode()); err != nil {
			return err
		}
	}
	if err := h.w.WritePacket(protocol.EncodeEOF(0, h.statusFlags())); err != nil {
		return err
	}
	for _, row := range rs.Rows {
		if err := h.w.WritePacket(protocol.EncodeTextRow(row)); err != nil {
			return err
		}
	}
	return h.w.WritePacket(protocol.EncodeEOF(0, h.statusFlags()))
}

func (h *connHandler) writeBinaryResultSet(rs *executor.ResultSet) error {
	if err := h.w.WritePacket(protocol.EncodeColumnCount(len(rs.Columns))); err != nil {
		return err
	}
	schema := make(sqltypes.Schema, len(rs.Columns))
	for i, c := range rs.Columns {
		pkt := protocol.ColumnPacketFor("", c.Def)
		pkt.Name = c.Name
		pkt.OrgName = c.Name
		if err := h.w.WritePacket(pkt.Encode()); err != nil {
			return err
		}
		schema[i] = c.Def
	}
	if err := h.w.WritePacket(protocol.EncodeEOF(0, h.statusFlags())); err != nil {
		return err
	}
	for _, row := range rs.Rows {
		if err := h.w.WritePacket(protocol.EncodeBinaryRow(schema, row)); err != nil {
			return err
		}
	}
	return h.w.WritePacket(protocol.EncodeEOF(0, h.statusFlags()))
}
