// Package granite implements MiniSQL's durable, transactional, row-oriented
// storage engine: a write-ahead log with group commit, copy-on-write row
// shadows for Read Committed isolation, and crash recovery by per-txn
// replay.
package granite

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/server/sqltypes"
)

// RecordType enumerates the WAL record kinds from §4.E.1.
type RecordType byte

const (
	RecBegin RecordType = iota + 1
	RecCommit
	RecAbort
	RecInsert
	RecUpdate
	RecDelete
	RecCheckpoint
	RecSchema
)

// Record is one decoded WAL entry. Body layout depends on Type:
//   - Insert: table, row_id, row (gob-free: length-prefixed sqltypes.Row via appendRow)
//   - Update: table, row_id, before, after
//   - Delete: table, row_id, before
//   - Checkpoint: list of active txn ids
//   - Schema: a free-form op string (DDL description, for diagnostics only;
//     schema itself lives in the catalog manifest, not the WAL)
type Record struct {
	Type  RecordType
	LSN   uint64
	TxnID uint64
	Body  []byte
}

// encodeRecord renders [len u32][type u8][lsn u64][txn_id u64][body][crc32 u32],
// bit-exact per §4.E.1; the CRC covers len..body.
func encodeRecord(r Record) []byte {
	inner := make([]byte, 0, 17+len(r.Body))
	inner = append(inner, byte(r.Type))
	inner = appendU64(inner, r.LSN)
	inner = appendU64(inner, r.TxnID)
	inner = append(inner, r.Body...)

	length := uint32(len(inner))
	buf := make([]byte, 0, 8+len(inner))
	buf = appendU32(buf, length)
	buf = append(buf, inner...)
	crc := crc32.ChecksumIEEE(buf)
	buf = appendU32(buf, crc)
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// walReader sequentially decodes records from a WAL file, stopping (without
// error) at a clean EOF, or at the first CRC mismatch / short read, whose
// byte offset it records in truncatedAt. It only reads: the bad tail is
// not removed from the file.
type walReader struct {
	f           *os.File
	truncatedAt int64 // byte offset where a bad record was found, -1 if none
}

func newWALReader(f *os.File) *walReader {
	return &walReader{f: f, truncatedAt: -1}
}

// ReadAll decodes every well-formed record from the current file position
// to EOF or first corruption.
func (r *walReader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		pos, err := r.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return records, err
		}
		lenBuf := make([]byte, 4)
		n, err := io.ReadFull(r.f, lenBuf)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			return records, nil
		}
		if err != nil {
			r.truncatedAt = pos
			return records, nil
		}
		length := binary.LittleEndian.Uint32(lenBuf)
		inner := make([]byte, length)
		if _, err := io.ReadFull(r.f, inner); err != nil {
			r.truncatedAt = pos
			return records, nil
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(r.f, crcBuf); err != nil {
			r.truncatedAt = pos
			return records, nil
		}
		wantCRC := binary.LittleEndian.Uint32(crcBuf)
		gotCRC := crc32.ChecksumIEEE(append(append([]byte{}, lenBuf...), inner...))
		if wantCRC != gotCRC {
			r.truncatedAt = pos
			return records, nil
		}
		if len(inner) < 17 {
			r.truncatedAt = pos
			return records, nil
		}
		rec := Record{
			Type:  RecordType(inner[0]),
			LSN:   binary.LittleEndian.Uint64(inner[1:9]),
			TxnID: binary.LittleEndian.Uint64(inner[9:17]),
			Body:  inner[17:],
		}
		records = append(records, rec)
	}
}

// --- body encodings for Insert/Update/Delete/Checkpoint ---

func encodeRowBody(table string, id uint64, row sqltypes.Row) []byte {
	buf := appendLenString(nil, table)
	buf = appendU64(buf, id)
	buf = appendRow(buf, row)
	return buf
}

func decodeRowBody(body []byte) (table string, id uint64, row sqltypes.Row, err error) {
	c := newBodyCursor(body)
	table, err = c.str()
	if err != nil {
		return
	}
	id, err = c.u64()
	if err != nil {
		return
	}
	row, err = c.row()
	return
}

func encodeUpdateBody(table string, id uint64, before, after sqltypes.Row) []byte {
	buf := appendLenString(nil, table)
	buf = appendU64(buf, id)
	buf = appendRow(buf, before)
	buf = appendRow(buf, after)
	return buf
}

func decodeUpdateBody(body []byte) (table string, id uint64, before, after sqltypes.Row, err error) {
	c := newBodyCursor(body)
	table, err = c.str()
	if err != nil {
		return
	}
	id, err = c.u64()
	if err != nil {
		return
	}
	before, err = c.row()
	if err != nil {
		return
	}
	after, err = c.row()
	return
}

func encodeCheckpointBody(activeTxns []uint64) []byte {
	buf := appendU32(nil, uint32(len(activeTxns)))
	for _, id := range activeTxns {
		buf = appendU64(buf, id)
	}
	return buf
}

func appendLenString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

// appendRow serializes a row as a value count followed by tagged values:
// a type tag (0 for NULL), then fixed-width little-endian bytes for
// Integer, Float and Boolean, or a length-prefixed string for Varchar,
// Text and JSON.
func appendRow(buf []byte, row sqltypes.Row) []byte {
	buf = appendU32(buf, uint32(len(row)))
	for _, v := range row {
		buf = appendValue(buf, v)
	}
	return buf
}

func appendValue(buf []byte, v sqltypes.Value) []byte {
	if v.IsNull() {
		return append(buf, 0)
	}
	tag := byte(v.Type()) + 1
	buf = append(buf, tag)
	switch v.Type() {
	case sqltypes.Integer:
		buf = appendU64(buf, uint64(v.Int()))
	case sqltypes.Float:
		buf = appendU64(buf, float64bits(v.Float()))
	case sqltypes.Boolean:
		b := byte(0)
		if v.Bool() {
			b = 1
		}
		buf = append(buf, b)
	default: // Varchar, Text, JSON
		buf = appendLenString(buf, v.Str())
	}
	return buf
}

type bodyCursor struct {
	buf []byte
	pos int
}

func newBodyCursor(b []byte) *bodyCursor { return &bodyCursor{buf: b} }

func (c *bodyCursor) need(n int) error {
	if c.pos+n > len(c.buf) {
		return merrors.New(merrors.KindWalCorrupt, "truncated WAL record body")
	}
	return nil
}

func (c *bodyCursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *bodyCursor) u64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *bodyCursor) byte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *bodyCursor) str() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+int(n)])
	c.pos += int(n)
	return s, nil
}

func (c *bodyCursor) row() (sqltypes.Row, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	row := make(sqltypes.Row, n)
	for i := range row {
		v, err := c.value()
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func (c *bodyCursor) value() (sqltypes.Value, error) {
	tag, err := c.byte()
	if err != nil {
		return sqltypes.Value{}, err
	}
	if tag == 0 {
		return sqltypes.NullValue(), nil
	}
	typ := sqltypes.Type(tag - 1)
	switch typ {
	case sqltypes.Integer:
		v, err := c.u64()
		return sqltypes.IntValue(int64(v)), err
	case sqltypes.Float:
		v, err := c.u64()
		return sqltypes.FloatValue(float64frombits(v)), err
	case sqltypes.Boolean:
		b, err := c.byte()
		return sqltypes.BoolValue(b == 1), err
	case sqltypes.Varchar:
		s, err := c.str()
		return sqltypes.VarcharValue(s), err
	case sqltypes.Text:
		s, err := c.str()
		return sqltypes.TextValue(s), err
	case sqltypes.JSON:
		s, err := c.str()
		return sqltypes.JSONValue(s), err
	default:
		return sqltypes.Value{}, merrors.New(merrors.KindWalCorrupt, "unknown value tag %d", tag)
	}
}
