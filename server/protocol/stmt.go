package protocol

import "github.com/minisql/minisql/server/merrors"

// StmtPrepareOK is the header packet answering COM_STMT_PREPARE: statement
// id, column count, parameter count, and a reserved filler/warning count.
type StmtPrepareOK struct {
	StatementID  uint32
	NumColumns   uint16
	NumParams    uint16
	WarningCount uint16
}

func (s StmtPrepareOK) Encode() []byte {
	buf := make([]byte, 0, 12)
	buf = append(buf, 0x00)
	buf = append(buf, byte(s.StatementID), byte(s.StatementID>>8), byte(s.StatementID>>16), byte(s.StatementID>>24))
	buf = append(buf, byte(s.NumColumns), byte(s.NumColumns>>8))
	buf = append(buf, byte(s.NumParams), byte(s.NumParams>>8))
	buf = append(buf, 0) // filler
	buf = append(buf, byte(s.WarningCount), byte(s.WarningCount>>8))
	return buf
}

// StmtExecuteHeader is the fixed-length prefix of a COM_STMT_EXECUTE
// payload, preceding the optional null-bitmap/param-type/param-value block
// decoded separately by DecodeBinaryParams.
type StmtExecuteHeader struct {
	StatementID uint32
	Flags       byte
	IterationCount uint32
}

// DecodeStmtExecuteHeader parses the command byte + fixed header of a
// COM_STMT_EXECUTE payload and returns the remaining bytes (the
// null-bitmap/types/values block, present only when NumParams > 0).
func DecodeStmtExecuteHeader(payload []byte) (StmtExecuteHeader, []byte, error) {
	c := newCursor(payload)
	cmd, err := c.byte()
	if err != nil {
		return StmtExecuteHeader{}, nil, err
	}
	if cmd != 0x17 {
		return StmtExecuteHeader{}, nil, merrors.New(merrors.KindProtocolMalformed, "not a COM_STMT_EXECUTE payload")
	}
	stmtID, err := c.u32()
	if err != nil {
		return StmtExecuteHeader{}, nil, err
	}
	flags, err := c.byte()
	if err != nil {
		return StmtExecuteHeader{}, nil, err
	}
	iter, err := c.u32()
	if err != nil {
		return StmtExecuteHeader{}, nil, err
	}
	return StmtExecuteHeader{StatementID: stmtID, Flags: flags, IterationCount: iter}, c.remaining(), nil
}

// DecodeStmtIDPayload parses the 4-byte statement-id body shared by
// COM_STMT_CLOSE and COM_STMT_RESET (after the leading command byte).
func DecodeStmtIDPayload(payload []byte) (uint32, error) {
	c := newCursor(payload)
	if _, err := c.byte(); err != nil {
		return 0, err
	}
	return c.u32()
}
