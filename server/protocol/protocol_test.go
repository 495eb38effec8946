package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minisql/minisql/server/sqltypes"
)

func TestPacketFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WritePacket([]byte("hello")))

	r := NewReader(&buf)
	payload, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), payload)
}

func TestPacketFramingSplitsMaxPayload(t *testing.T) {
	big := bytes.Repeat([]byte{'x'}, MaxPayload)
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WritePacket(big))

	// a full-width packet must be followed by a zero-length terminator packet.
	require.Equal(t, 4+MaxPayload+4, buf.Len())

	r := NewReader(&buf)
	payload, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, big, payload)
}

func TestReadPacketRejectsOutOfOrderSequence(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 0, 0, 5, 'a'}) // length 1, seq 5, but reader expects seq 0
	r := NewReader(&buf)
	_, err := r.ReadPacket()
	require.Error(t, err)
}

func TestResetSeqAndSetSeq(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WritePacket([]byte("a")))
	require.Equal(t, byte(1), w.Seq())
	w.ResetSeq()
	require.Equal(t, byte(0), w.Seq())
	w.SetSeq(7)
	require.Equal(t, byte(7), w.Seq())
}

func TestLenencIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 250, 252, 300, 1 << 16, 1 << 32}
	for _, v := range cases {
		buf := appendLenencInt(nil, v)
		c := newCursor(buf)
		got, isNull, err := c.lenencInt()
		require.NoError(t, err)
		require.False(t, isNull)
		require.Equal(t, v, got)
	}
}

func TestLenencIntTruncated(t *testing.T) {
	c := newCursor([]byte{0xfc, 0x01}) // declares a 2-byte int but only has 1
	_, _, err := c.lenencInt()
	require.Error(t, err)
}

func TestLenencStringRoundTrip(t *testing.T) {
	buf := appendLenencString(nil, "widgets")
	c := newCursor(buf)
	s, isNull, err := c.lenencString()
	require.NoError(t, err)
	require.False(t, isNull)
	require.Equal(t, "widgets", s)
}

func TestNullTerminatedRoundTrip(t *testing.T) {
	buf := appendNullTerminated(nil, "root")
	buf = append(buf, 0xAB) // trailing byte after the terminator
	c := newCursor(buf)
	s, err := c.nullTerminated()
	require.NoError(t, err)
	require.Equal(t, "root", s)
	require.False(t, c.eof())
}

func TestHandshakeEncodeDecode(t *testing.T) {
	hs, err := NewHandshake(42)
	require.NoError(t, err)
	require.Len(t, hs.AuthSeed, 20)
	for _, b := range hs.AuthSeed {
		require.NotZero(t, b) // NUL bytes in the seed would truncate a NUL-terminated read
	}
	encoded := hs.Encode()
	require.Equal(t, byte(ProtocolVersion), encoded[0])
}

func TestDecodeHandshakeResponseSecureConnection(t *testing.T) {
	var buf []byte
	flags := ServerCapabilities()
	buf = append(buf, byte(flags), byte(flags>>8), byte(flags>>16), byte(flags>>24))
	buf = append(buf, 0, 0, 0, 0) // max packet size
	buf = append(buf, 0x21)       // charset
	buf = append(buf, make([]byte, 23)...)
	buf = appendNullTerminated(buf, "root")
	buf = append(buf, 4, 'a', 'b', 'c', 'd') // auth response length + bytes
	buf = appendNullTerminated(buf, "minisql")

	resp, err := DecodeHandshakeResponse(buf)
	require.NoError(t, err)
	require.Equal(t, "root", resp.Username)
	require.Equal(t, []byte("abcd"), resp.AuthResponse)
	require.Equal(t, "minisql", resp.Database)
}

func TestEncodeOK(t *testing.T) {
	buf := EncodeOK(3, 7, StatusAutocommit, 0, "")
	require.Equal(t, byte(0x00), buf[0])
}

func TestEncodeErr(t *testing.T) {
	buf := EncodeErr(1146, "42S02", "Table 'a.b' doesn't exist")
	require.Equal(t, byte(0xff), buf[0])
	require.Equal(t, "#42S02", string(buf[3:9]))
}

func TestEncodeErrFallsBackToHY000(t *testing.T) {
	buf := EncodeErr(1105, "bad", "oops")
	require.Equal(t, "#HY000", string(buf[3:9]))
}

func TestEncodeEOF(t *testing.T) {
	buf := EncodeEOF(0, StatusAutocommit)
	require.Equal(t, byte(0xfe), buf[0])
	require.Len(t, buf, 5)
}

func TestColumnPacketForVarchar(t *testing.T) {
	pkt := ColumnPacketFor("widgets", sqltypes.ColumnDef{Name: "name", Type: sqltypes.Varchar})
	require.Equal(t, uint16(0x21), pkt.CharSet)
	require.Equal(t, uint32(255), pkt.Length)
	encoded := pkt.Encode()
	require.NotEmpty(t, encoded)
}

func TestColumnPacketForInteger(t *testing.T) {
	pkt := ColumnPacketFor("widgets", sqltypes.ColumnDef{Name: "id", Type: sqltypes.Integer, Length: 11})
	require.Equal(t, uint16(0x3f), pkt.CharSet)
	require.Equal(t, uint32(11), pkt.Length)
}

func TestEncodeTextRowWithNull(t *testing.T) {
	row := sqltypes.Row{sqltypes.IntValue(1), sqltypes.NullValue(), sqltypes.VarcharValue("x")}
	buf := EncodeTextRow(row)
	require.Equal(t, byte(0xfb), buf[2]) // byte 0-1 are "1"'s lenenc-len prefix + digit
}

func TestEncodeBinaryRowHeader(t *testing.T) {
	schema := sqltypes.Schema{{Type: sqltypes.Integer}, {Type: sqltypes.Varchar}, {Type: sqltypes.Float}}
	row := sqltypes.Row{sqltypes.IntValue(7), sqltypes.VarcharValue("hi"), sqltypes.FloatValue(2.5)}
	buf := EncodeBinaryRow(schema, row)
	require.Equal(t, byte(0x00), buf[0])
	require.NotEmpty(t, buf)
}

func TestDecodeBinaryParams(t *testing.T) {
	// one param, not null, type LONGLONG(8), signed.
	payload := []byte{0x00, 0x01, 0x08, 0x00}
	payload = append(payload, 5, 0, 0, 0, 0, 0, 0, 0) // little-endian int64(5)

	values, err := DecodeBinaryParams(payload, 1)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.Equal(t, int64(5), values[0].Int())
}

func TestDecodeBinaryParamsNull(t *testing.T) {
	payload := []byte{0x01, 0x00} // bit 0 set -> param 0 is null; newParamsBound 0, so no type block and no value bytes follow
	// bitmap bit for param index 0 is bit 0 of byte 0.
	values, err := DecodeBinaryParams(payload, 1)
	require.NoError(t, err)
	require.True(t, values[0].IsNull())
}

func TestStmtPrepareOKEncode(t *testing.T) {
	buf := StmtPrepareOK{StatementID: 9, NumColumns: 2, NumParams: 1}.Encode()
	require.Equal(t, byte(0x00), buf[0])
	require.Len(t, buf, 12)
}

func TestDecodeStmtExecuteHeader(t *testing.T) {
	payload := []byte{0x17, 3, 0, 0, 0, 0, 1, 0, 0, 0}
	hdr, rest, err := DecodeStmtExecuteHeader(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(3), hdr.StatementID)
	require.Equal(t, uint32(1), hdr.IterationCount)
	require.Empty(t, rest)
}

func TestDecodeStmtExecuteHeaderRejectsWrongCommand(t *testing.T) {
	_, _, err := DecodeStmtExecuteHeader([]byte{0x16, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestDecodeStmtIDPayload(t *testing.T) {
	payload := []byte{0x19, 9, 0, 0, 0}
	id, err := DecodeStmtIDPayload(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(9), id)
}
