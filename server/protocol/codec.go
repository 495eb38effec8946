// Package protocol implements the MySQL client/server wire protocol: packet
// framing, length-encoded primitives, the handshake/auth exchange, and the
// text and binary result-set encodings.
package protocol

import (
	"io"

	"github.com/minisql/minisql/server/merrors"
	"github.com/minisql/minisql/util"
)

// MaxPayload is the largest payload a single packet may carry; longer
// payloads split into consecutive max-size packets followed by a final
// (possibly empty) short packet.
const MaxPayload = 1<<24 - 1

// Reader decodes packets off a stream, tracking the sequence id of a single
// command interaction.
type Reader struct {
	r   io.Reader
	seq byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ResetSeq resets the sequence counter to zero at the start of a new client
// command, per §4.A.
func (r *Reader) ResetSeq() { r.seq = 0 }

// Seq returns the sequence id expected of the next packet read.
func (r *Reader) Seq() byte { return r.seq }

// SetSeq forces the next expected sequence id (used when a reply must
// continue an interaction the reader didn't itself start, e.g. after a
// locally-synthesized packet was sent).
func (r *Reader) SetSeq(seq byte) { r.seq = seq }

// ReadPacket reads one full logical packet (reassembling split packets) and
// returns its payload.
func (r *Reader) ReadPacket() ([]byte, error) {
	var payload []byte
	for {
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(r.r, hdr); err != nil {
			return nil, merrors.Wrap(merrors.KindProtocolMalformed, err, "short packet header")
		}
		length := uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16
		seq := hdr[3]
		if seq != r.seq {
			return nil, merrors.New(merrors.KindProtocolMalformed, "out-of-order sequence id: got %d want %d", seq, r.seq)
		}
		r.seq++
		body := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r.r, body); err != nil {
				return nil, merrors.Wrap(merrors.KindProtocolMalformed, err, "truncated packet payload")
			}
		}
		payload = append(payload, body...)
		if length < MaxPayload {
			return payload, nil
		}
	}
}

// Writer frames payloads into one or more packets and tracks the sequence
// id for the current command interaction.
type Writer struct {
	w   io.Writer
	seq byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) ResetSeq()     { w.seq = 0 }
func (w *Writer) Seq() byte     { return w.seq }
func (w *Writer) SetSeq(s byte) { w.seq = s }

// WritePacket frames payload into as many wire packets as needed.
func (w *Writer) WritePacket(payload []byte) error {
	for {
		chunk := payload
		if len(chunk) > MaxPayload {
			chunk = payload[:MaxPayload]
		}
		hdr := []byte{byte(len(chunk)), byte(len(chunk) >> 8), byte(len(chunk) >> 16), w.seq}
		w.seq++
		if _, err := w.w.Write(hdr); err != nil {
			return err
		}
		if len(chunk) > 0 {
			if _, err := w.w.Write(chunk); err != nil {
				return err
			}
		}
		if len(payload) < MaxPayload {
			return nil
		}
		payload = payload[MaxPayload:]
	}
}

// cursor is a small bounds-checked reading helper layered over util's
// buffer-decoding functions, which assume a well-formed buffer; cursor adds
// the bounds checks the wire-protocol invariants require (§4.A: a malformed
// lenenc int or truncated payload must fail the connection with 08S01).
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) need(n int) error {
	if c.pos+n > len(c.buf) {
		return merrors.New(merrors.KindProtocolMalformed, "truncated packet: need %d bytes at offset %d, have %d", n, c.pos, len(c.buf))
	}
	return nil
}

func (c *cursor) byte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	p, v := util.ReadUB2(c.buf, c.pos)
	c.pos = p
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	p, v := util.ReadUB4(c.buf, c.pos)
	c.pos = p
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	p, v := util.ReadUB8(c.buf, c.pos)
	c.pos = p
	return v, nil
}

// lenencInt reads a MySQL length-encoded integer, validating that the
// declared width prefix has enough trailing bytes.
func (c *cursor) lenencInt() (uint64, bool /*isNull*/, error) {
	b, err := c.byte()
	if err != nil {
		return 0, false, err
	}
	switch {
	case b < 0xfb:
		return uint64(b), false, nil
	case b == 0xfb:
		return 0, true, nil
	case b == 0xfc:
		v, err := c.u16()
		return uint64(v), false, err
	case b == 0xfd:
		if err := c.need(3); err != nil {
			return 0, false, err
		}
		p, v := util.ReadUB3(c.buf, c.pos)
		c.pos = p
		return uint64(v), false, nil
	case b == 0xfe:
		v, err := c.u64()
		return v, false, err
	default:
		return 0, false, merrors.New(merrors.KindProtocolMalformed, "reserved lenenc-int prefix 0x%02x", b)
	}
}

func (c *cursor) lenencString() (string, bool, error) {
	n, isNull, err := c.lenencInt()
	if err != nil || isNull {
		return "", isNull, err
	}
	b, err := c.bytes(int(n))
	if err != nil {
		return "", false, err
	}
	return string(b), false, nil
}

func (c *cursor) nullTerminated() (string, error) {
	start := c.pos
	for c.pos < len(c.buf) && c.buf[c.pos] != 0 {
		c.pos++
	}
	if c.pos >= len(c.buf) {
		return "", merrors.New(merrors.KindProtocolMalformed, "missing NUL terminator")
	}
	s := string(c.buf[start:c.pos])
	c.pos++
	return s, nil
}

func (c *cursor) remaining() []byte {
	return c.buf[c.pos:]
}

func (c *cursor) eof() bool { return c.pos >= len(c.buf) }

// appendLenencInt appends the lenenc-int encoding of v.
func appendLenencInt(buf []byte, v uint64) []byte {
	return util.WriteLength(buf, int64(v))
}

// appendLenencString appends the lenenc-string encoding of s.
func appendLenencString(buf []byte, s string) []byte {
	return util.WriteWithLength(buf, []byte(s))
}

// appendNullTerminated appends s followed by a NUL byte.
func appendNullTerminated(buf []byte, s string) []byte {
	return util.WriteWithNull(buf, []byte(s))
}
