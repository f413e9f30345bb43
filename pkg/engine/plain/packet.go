package plain

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/pkg/errors"
)

const (
	version    = 1
	headerSize = 16
)

type packetType uint8

const (
	typeData packetType = iota
	typeFin
	typeState
	typeSyn
)

func (t packetType) String() string {
	switch t {
	case typeData:
		return "data"
	case typeFin:
		return "fin"
	case typeState:
		return "state"
	case typeSyn:
		return "syn"
	}

	return "invalid"
}

func (t packetType) overhead() engine.OverheadKind {
	switch t {
	case typeSyn:
		return engine.OverheadConnect
	case typeState:
		return engine.OverheadAck
	case typeFin:
		return engine.OverheadClose
	}

	return engine.OverheadHeader
}

// header layout, big endian:
//
//	0      1      2             4             8             12            16
//	| ver  | type | conn id     | seq         | ack         | wnd         |
type header struct {
	typ packetType
	id  uint16
	seq uint32
	ack uint32
	wnd uint32
}

func (h header) marshal(payload []byte) []byte {
	p := make([]byte, headerSize+len(payload))
	p[0] = version
	p[1] = byte(h.typ)
	binary.BigEndian.PutUint16(p[2:], h.id)
	binary.BigEndian.PutUint32(p[4:], h.seq)
	binary.BigEndian.PutUint32(p[8:], h.ack)
	binary.BigEndian.PutUint32(p[12:], h.wnd)
	copy(p[headerSize:], payload)
	return p
}

func parse(p []byte) (h header, payload []byte, err error) {
	if len(p) < headerSize {
		return h, nil, errors.Errorf("short packet (%d bytes)", len(p))
	}

	if p[0] != version {
		return h, nil, errors.Errorf("unsupported version %d", p[0])
	}

	if h.typ = packetType(p[1]); h.typ > typeSyn {
		return h, nil, errors.Errorf("invalid packet type %d", p[1])
	}

	h.id = binary.BigEndian.Uint16(p[2:])
	h.seq = binary.BigEndian.Uint32(p[4:])
	h.ack = binary.BigEndian.Uint32(p[8:])
	h.wnd = binary.BigEndian.Uint32(p[12:])

	if h.typ != typeData && len(p) > headerSize {
		return h, nil, errors.Errorf("unexpected payload on %s packet", h.typ)
	}

	return h, p[headerSize:], nil
}

// seqLess reports whether a precedes b, tolerating wraparound.
func seqLess(a, b uint32) bool { return int32(a-b) < 0 }

func sessionKey(peer net.Addr, id uint16) string {
	return fmt.Sprintf("%s|%05d", peer.String(), id)
}
