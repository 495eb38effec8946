package protocol

import "github.com/minisql/minisql/server/sqltypes"

// EncodeTextRow renders one text-protocol row packet: each column is a
// lenenc-string of its canonical text form, or 0xfb for NULL.
func EncodeTextRow(row sqltypes.Row) []byte {
	buf := make([]byte, 0, 32*len(row))
	for _, v := range row {
		if v.IsNull() {
			buf = append(buf, 0xfb)
			continue
		}
		buf = appendLenencString(buf, v.Text())
	}
	return buf
}
