// Package wire implements the TCG Storage Core three-level packet stack:
// ComPacket, Packet, and SubPacket framing around a token stream. It is
// deliberately decoupled from any live session or transport so the debug
// context can instrument packet construction/parsing without either side
// depending on the other.
package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
)

// ComPacketHeader is the outermost 20-byte header.
type ComPacketHeader struct {
	Reserved        uint32
	ComID           uint16
	ComIDExt        uint16
	OutstandingData uint32
	MinTransfer     uint32
	Length          uint32
}

// PacketHeader is the 24-byte per-session header.
type PacketHeader struct {
	TSN             uint32
	HSN             uint32
	SeqNumber       uint32
	Reserved        uint16
	AckType         uint16
	Acknowledgement uint32
	Length          uint32
}

// SubPacketHeader is the 12-byte innermost header.
type SubPacketHeader struct {
	Reserved [6]byte
	Kind     uint16
	Length   uint32
}

const (
	comPacketHeaderSize = 20
	packetHeaderSize    = 24
	subPacketHeaderSize = 12

	// OuterAlignment is the transport-level padding boundary every built
	// ComPacket is right-padded to.
	OuterAlignment = 512
	// TokenAlignment is the 4-byte boundary SubPacket payloads are padded
	// to, per "The pad field ensures that the boundaries between
	// subpackets... are aligned to 4-byte boundaries."
	TokenAlignment = 4
)

var (
	// ErrTooLargePacket is returned when the assembled Packet would exceed
	// the TPer's negotiated MaxPacketSize.
	ErrTooLargePacket = sscerr.New(sscerr.KindInvalidPacket, "packet assembly constructed a too large Packet")
	// ErrTooLargeComPacket is returned when the assembled ComPacket would
	// exceed the TPer's negotiated MaxComPacketSize.
	ErrTooLargeComPacket = sscerr.New(sscerr.KindInvalidComPacket, "packet assembly constructed a too large ComPacket")
)

func padLen(n, boundary int) int {
	r := n % boundary
	if r == 0 {
		return 0
	}
	return boundary - r
}

// BuildParams carries everything Build needs to frame a token buffer. It is
// a plain struct rather than a Session reference so callers (including
// tests and the debug context) can construct packets without a live
// session.
type BuildParams struct {
	ComID    uint32
	TSN      uint32
	HSN      uint32
	SeqNumber uint32

	MaxPacketSize    uint
	MaxComPacketSize uint
}

// Build frames a token buffer as ComPacket(Packet(SubPacket(tokens))),
// padding the SubPacket payload to a 4-byte boundary and the final
// ComPacket to a 512-byte boundary.
func Build(p BuildParams, tokens []byte) ([]byte, error) {
	subpkt := bytes.Buffer{}
	sph := SubPacketHeader{Kind: 0, Length: uint32(len(tokens))}
	if err := binary.Write(&subpkt, binary.BigEndian, &sph); err != nil {
		return nil, sscerr.Wrap(sscerr.KindInvalidPacket, "encode subpacket header", err)
	}
	subpkt.Write(tokens)
	subpkt.Write(make([]byte, padLen(len(tokens), TokenAlignment)))

	if p.MaxPacketSize > 0 && uint(packetHeaderSize+subpkt.Len()) > p.MaxPacketSize {
		return nil, ErrTooLargePacket
	}

	pkt := bytes.Buffer{}
	pkh := PacketHeader{
		TSN:       p.TSN,
		HSN:       p.HSN,
		SeqNumber: p.SeqNumber,
		AckType:   0,
		Length:    uint32(subpkt.Len()),
	}
	if err := binary.Write(&pkt, binary.BigEndian, &pkh); err != nil {
		return nil, sscerr.Wrap(sscerr.KindInvalidPacket, "encode packet header", err)
	}
	pkt.Write(subpkt.Bytes())

	compkt := bytes.Buffer{}
	cph := ComPacketHeader{
		ComID:           uint16(p.ComID & 0xffff),
		ComIDExt:        uint16((p.ComID & 0xffff0000) >> 16),
		OutstandingData: 0,
		MinTransfer:     0,
		Length:          uint32(pkt.Len()),
	}
	if err := binary.Write(&compkt, binary.BigEndian, &cph); err != nil {
		return nil, sscerr.Wrap(sscerr.KindInvalidComPacket, "encode compacket header", err)
	}
	compkt.Write(pkt.Bytes())

	if p.MaxComPacketSize > 0 && uint(compkt.Len()) > p.MaxComPacketSize {
		return nil, ErrTooLargeComPacket
	}
	compkt.Write(make([]byte, padLen(compkt.Len(), OuterAlignment)))
	return compkt.Bytes(), nil
}

// Parsed is the result of parsing one ComPacket off the wire.
type Parsed struct {
	ComPacket ComPacketHeader
	Packet    PacketHeader
	SubPacket SubPacketHeader
	Tokens    []byte
}

// HasMoreData reports whether the TPer signaled outstanding data on this
// response, meaning the caller should issue another IF-RECV.
func (p *Parsed) HasMoreData() bool {
	return p.ComPacket.OutstandingData != 0
}

// Parse unpacks one ComPacket from raw transport bytes. A zero-length
// ComPacket payload (the TPer has nothing ready yet) is not an error: it
// returns a Parsed with an empty Tokens slice, and the caller is expected to
// poll again.
func Parse(buf []byte) (*Parsed, error) {
	if len(buf) < comPacketHeaderSize {
		return nil, sscerr.New(sscerr.KindInvalidComPacket, "buffer too small for ComPacket header")
	}
	var cph ComPacketHeader
	r := bytes.NewReader(buf)
	if err := binary.Read(r, binary.BigEndian, &cph); err != nil {
		return nil, sscerr.Wrap(sscerr.KindInvalidComPacket, "decode compacket header", err)
	}
	if cph.Length == 0 {
		return &Parsed{ComPacket: cph}, nil
	}

	rest := buf[comPacketHeaderSize:]
	avail := uint32(len(rest))
	pktLen := cph.Length
	if pktLen > avail {
		pktLen = avail
	}
	if pktLen < packetHeaderSize {
		return nil, sscerr.New(sscerr.KindInvalidPacket, "truncated Packet header")
	}

	var pkh PacketHeader
	pr := bytes.NewReader(rest[:pktLen])
	if err := binary.Read(pr, binary.BigEndian, &pkh); err != nil {
		return nil, sscerr.Wrap(sscerr.KindInvalidPacket, "decode packet header", err)
	}

	subBuf := rest[packetHeaderSize:pktLen]
	if uint32(len(subBuf)) < subPacketHeaderSize {
		return &Parsed{ComPacket: cph, Packet: pkh}, nil
	}

	var sph SubPacketHeader
	sr := bytes.NewReader(subBuf[:subPacketHeaderSize])
	if err := binary.Read(sr, binary.BigEndian, &sph); err != nil {
		return nil, sscerr.Wrap(sscerr.KindInvalidPacket, "decode subpacket header", err)
	}

	tokBuf := subBuf[subPacketHeaderSize:]
	tokLen := sph.Length
	if uint32(len(tokBuf)) < tokLen {
		// Truncated relative to the declared length; extract what's
		// there and let the codec layer fail on the malformed stream if
		// it matters. Parse neither fails nor logs here; SubPacket.Length
		// keeps the declared length, so a caller can compare it with
		// len(Tokens).
		tokLen = uint32(len(tokBuf))
	}

	return &Parsed{
		ComPacket: cph,
		Packet:    pkh,
		SubPacket: sph,
		Tokens:    tokBuf[:tokLen],
	}, nil
}
