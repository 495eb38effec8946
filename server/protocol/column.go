package protocol

import "github.com/minisql/minisql/server/sqltypes"

// ColumnPacket encodes one column-definition packet per §6: catalog, schema,
// table, org_table, name, org_name, the fixed 0x0c block (charset, length,
// type, flags, decimals), and a two-byte filler.
type ColumnPacket struct {
	Schema      string
	Table       string
	OrgTable    string
	Name        string
	OrgName     string
	CharSet     uint16
	Length      uint32
	Type        byte
	Flags       uint16
	Decimals    byte
}

// ColumnPacketFor builds a ColumnPacket for a projected output column,
// qualifying it with the source table so clients can map it back.
func ColumnPacketFor(table string, col sqltypes.ColumnDef) ColumnPacket {
	typeCode, _ := col.Type.MySQLType()
	charset := uint16(0x3f) // binary, for numerics
	if col.Type == sqltypes.Varchar || col.Type == sqltypes.Text || col.Type == sqltypes.JSON {
		charset = 0x21 // utf8_general_ci
	}
	length := uint32(col.Length)
	if length == 0 {
		length = 255
	}
	return ColumnPacket{
		Table:    table,
		OrgTable: table,
		Name:     col.Name,
		OrgName:  col.Name,
		CharSet:  charset,
		Length:   length,
		Type:     typeCode,
		Flags:    col.Flags(),
		Decimals: col.Decimals(),
	}
}

// Encode renders the column-definition packet body.
func (c ColumnPacket) Encode() []byte {
	buf := make([]byte, 0, 64+len(c.Name)*2)
	buf = appendLenencString(buf, "def")
	buf = appendLenencString(buf, c.Schema)
	buf = appendLenencString(buf, c.Table)
	buf = appendLenencString(buf, c.OrgTable)
	buf = appendLenencString(buf, c.Name)
	buf = appendLenencString(buf, c.OrgName)
	buf = append(buf, 0x0c)
	buf = append(buf, byte(c.CharSet), byte(c.CharSet>>8))
	buf = append(buf, byte(c.Length), byte(c.Length>>8), byte(c.Length>>16), byte(c.Length>>24))
	buf = append(buf, c.Type)
	buf = append(buf, byte(c.Flags), byte(c.Flags>>8))
	buf = append(buf, c.Decimals)
	buf = append(buf, 0, 0) // filler
	return buf
}
