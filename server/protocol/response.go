package protocol

import "github.com/minisql/minisql/util"

// StatusAutocommit and StatusInTransaction are the only status flags MiniSQL
// reports: the connection layer sends StatusAutocommit when no txn is open
// and StatusInTransaction alone while one is.
const (
	StatusAutocommit   uint16 = 0x0002
	StatusInTransaction uint16 = 0x0001
)

// EncodeOK builds an OK packet body (without the packet header).
func EncodeOK(affectedRows, lastInsertID uint64, statusFlags, warnings uint16, info string) []byte {
	buf := make([]byte, 0, 32+len(info))
	buf = append(buf, 0x00)
	buf = appendLenencInt(buf, affectedRows)
	buf = appendLenencInt(buf, lastInsertID)
	buf = append(buf, byte(statusFlags), byte(statusFlags>>8))
	buf = append(buf, byte(warnings), byte(warnings>>8))
	if info != "" {
		buf = append(buf, []byte(info)...)
	}
	return buf
}

// EncodeErr builds an ERR packet body.
func EncodeErr(code uint16, sqlState, message string) []byte {
	buf := make([]byte, 0, 16+len(message))
	buf = append(buf, 0xff)
	buf = append(buf, byte(code), byte(code>>8))
	buf = append(buf, '#')
	if len(sqlState) != 5 {
		sqlState = "HY000"
	}
	buf = append(buf, []byte(sqlState)...)
	buf = append(buf, []byte(message)...)
	return buf
}

// EncodeEOF builds an EOF packet body. MiniSQL never sets
// CLIENT_DEPRECATE_EOF, so result sets always terminate with a real EOF
// packet rather than a final OK.
func EncodeEOF(warnings, statusFlags uint16) []byte {
	buf := make([]byte, 0, 5)
	buf = append(buf, 0xfe)
	buf = append(buf, byte(warnings), byte(warnings>>8))
	buf = append(buf, byte(statusFlags), byte(statusFlags>>8))
	return buf
}

// EncodeColumnCount builds the result-set header packet (just the column
// count, as a lenenc int).
func EncodeColumnCount(n int) []byte {
	return util.WriteLength(nil, int64(n))
}
