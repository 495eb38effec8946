package protocol

import (
	"crypto/rand"

	"github.com/minisql/minisql/server/common"
	"github.com/minisql/minisql/server/merrors"
)

const (
	ServerVersion   = "8.0.0-minisql"
	ProtocolVersion = 10
	AuthPluginName  = "mysql_native_password"
)

// ServerCapabilities is the capability bitmask MiniSQL advertises: the
// basics plus protocol 4.1, secure auth, and transactions. Deliberately
// omits CLIENT_DEPRECATE_EOF, so every result set still ends with a real
// EOF packet rather than a final OK.
func ServerCapabilities() uint32 {
	return common.CLIENT_LONG_PASSWORD |
		common.CLIENT_FOUND_ROWS |
		common.CLIENT_LONG_FLAG |
		common.CLIENT_CONNECT_WITH_DB |
		common.CLIENT_PROTOCOL_41 |
		common.CLIENT_TRANSACTIONS |
		common.CLIENT_SECURE_CONNECTION |
		common.CLIENT_PLUGIN_AUTH |
		common.CLIENT_MULTI_RESULTS
}

// Handshake is the server's initial greeting (protocol version 10).
type Handshake struct {
	ConnectionID uint32
	AuthSeed     []byte // 20 bytes, split 8+12 on the wire
	CharSet      byte
	StatusFlags  uint16
}

// NewHandshake builds a handshake with a fresh random 20-byte auth seed.
func NewHandshake(connID uint32) (*Handshake, error) {
	seed := make([]byte, 20)
	if _, err := rand.Read(seed); err != nil {
		return nil, merrors.Wrap(merrors.KindInternal, err, "generating auth seed")
	}
	for i, b := range seed {
		if b == 0 {
			seed[i] = 1
		}
	}
	return &Handshake{ConnectionID: connID, AuthSeed: seed, CharSet: 0x21, StatusFlags: 0x0002}, nil
}

// Encode renders the handshake v10 packet payload.
func (h *Handshake) Encode() []byte {
	caps := ServerCapabilities()
	buf := make([]byte, 0, 64+len(ServerVersion))
	buf = append(buf, ProtocolVersion)
	buf = appendNullTerminated(buf, ServerVersion)
	buf = append(buf, byte(h.ConnectionID), byte(h.ConnectionID>>8), byte(h.ConnectionID>>16), byte(h.ConnectionID>>24))
	buf = append(buf, h.AuthSeed[:8]...)
	buf = append(buf, 0) // filler
	buf = append(buf, byte(caps), byte(caps>>8))
	buf = append(buf, h.CharSet)
	buf = append(buf, byte(h.StatusFlags), byte(h.StatusFlags>>8))
	buf = append(buf, byte(caps>>16), byte(caps>>24))
	buf = append(buf, byte(len(h.AuthSeed)+1))
	buf = append(buf, make([]byte, 10)...) // reserved
	buf = append(buf, h.AuthSeed[8:]...)
	buf = append(buf, 0) // terminator of 2nd scramble part
	buf = appendNullTerminated(buf, AuthPluginName)
	return buf
}

// HandshakeResponse is the client's reply to the initial handshake
// (protocol 4.1 form).
type HandshakeResponse struct {
	ClientFlags uint32
	CharSet     byte
	Username    string
	AuthResponse []byte
	Database    string
	AuthPlugin  string
}

// DecodeHandshakeResponse parses a protocol-41 handshake response payload.
func DecodeHandshakeResponse(payload []byte) (*HandshakeResponse, error) {
	c := newCursor(payload)
	flags, err := c.u32()
	if err != nil {
		return nil, err
	}
	if _, err := c.u32(); err != nil { // max packet size
		return nil, err
	}
	charset, err := c.byte()
	if err != nil {
		return nil, err
	}
	if _, err := c.bytes(23); err != nil { // reserved
		return nil, err
	}
	user, err := c.nullTerminated()
	if err != nil {
		return nil, err
	}

	var authResp []byte
	if flags&common.CLIENT_SECURE_CONNECTION != 0 {
		n, err := c.byte()
		if err != nil {
			return nil, err
		}
		authResp, err = c.bytes(int(n))
		if err != nil {
			return nil, err
		}
	} else {
		s, err := c.nullTerminated()
		if err != nil {
			return nil, err
		}
		authResp = []byte(s)
	}

	resp := &HandshakeResponse{
		ClientFlags:  flags,
		CharSet:      charset,
		Username:     user,
		AuthResponse: authResp,
	}

	if flags&common.CLIENT_CONNECT_WITH_DB != 0 && !c.eof() {
		db, err := c.nullTerminated()
		if err != nil {
			return nil, err
		}
		resp.Database = db
	}
	if flags&common.CLIENT_PLUGIN_AUTH != 0 && !c.eof() {
		plugin, err := c.nullTerminated()
		if err != nil {
			return nil, err
		}
		resp.AuthPlugin = plugin
	}
	return resp, nil
}
