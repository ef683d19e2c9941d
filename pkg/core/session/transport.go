package session

import (
	"github.com/sedctl/tcgcore/pkg/core/debugctx"
	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/core/wire"
	"github.com/sedctl/tcgcore/pkg/drive"
)

// Transport sends and receives one ComPacket's worth of token stream over a
// drive. It is split out from Session so the debug context can instrument
// packet construction/parsing independently of session state.
type Transport struct {
	d     drive.DriveIntf
	dbg   *debugctx.Context
	scope string

	maxPacketSize    uint
	maxComPacketSize uint
}

// NewTransport builds a Transport over d. dbg may be nil, in which case
// debugctx.Default() is used.
func NewTransport(d drive.DriveIntf, dbg *debugctx.Context, scope string) *Transport {
	if dbg == nil {
		dbg = debugctx.Default()
	}
	return &Transport{d: d, dbg: dbg, scope: scope, maxPacketSize: 0, maxComPacketSize: 0}
}

// SetLimits updates the negotiated packet-size ceilings Build enforces.
func (t *Transport) SetLimits(maxPacketSize, maxComPacketSize uint) {
	t.maxPacketSize = maxPacketSize
	t.maxComPacketSize = maxComPacketSize
}

// Send frames tokens into a ComPacket addressed to comID/tsn/hsn/seq and
// writes it to the drive.
func (t *Transport) Send(comID uint32, tsn, hsn, seq uint32, tokens []byte) error {
	t.dbg.Record(t.scope, debugctx.BeforePacketBuild, "building compacket")
	buf, err := wire.Build(wire.BuildParams{
		ComID:            comID,
		TSN:              tsn,
		HSN:              hsn,
		SeqNumber:        seq,
		MaxPacketSize:    t.maxPacketSize,
		MaxComPacketSize: t.maxComPacketSize,
	}, tokens)
	if err != nil {
		return err
	}

	if kind, hit := t.dbg.CheckFault(debugctx.BeforeIfSend, &buf, t.scope); hit {
		return sscerr.New(kind, "fault injected before IF-SEND")
	}
	if buf == nil {
		return nil
	}
	t.dbg.Bump("ifsend_count", t.scope, 1)
	if err := t.d.IFSend(drive.SecurityProtocolTCGTPer, uint16(comID&0xffff), buf); err != nil {
		return sscerr.Wrap(sscerr.KindTransportSendFailed, "session IF-SEND", err)
	}
	t.dbg.Record(t.scope, debugctx.AfterIfSend, "compacket sent")
	return nil
}

// Receive issues one IF-RECV of size bytes and parses the result.
func (t *Transport) Receive(comID uint32, size int) (*wire.Parsed, error) {
	if size <= 0 {
		size = int(t.maxComPacketSize)
	}
	if size <= 0 {
		size = 1024 * 1024
	}
	raw := make([]byte, size)

	if kind, hit := t.dbg.CheckFault(debugctx.BeforeIfRecv, nil, t.scope); hit {
		return nil, sscerr.New(kind, "fault injected before IF-RECV")
	}
	t.dbg.Bump("ifrecv_count", t.scope, 1)
	if err := t.d.IFRecv(drive.SecurityProtocolTCGTPer, uint16(comID&0xffff), &raw); err != nil {
		return nil, sscerr.Wrap(sscerr.KindTransportRecvFailed, "session IF-RECV", err)
	}
	t.dbg.Record(t.scope, debugctx.AfterIfRecv, "compacket received")

	if kind, hit := t.dbg.CheckFault(debugctx.AfterIfRecv, &raw, t.scope); hit {
		return nil, sscerr.New(kind, "fault injected after IF-RECV")
	}
	if raw == nil {
		return &wire.Parsed{}, nil
	}

	p, err := wire.Parse(raw)
	if err != nil {
		return nil, err
	}
	t.dbg.Record(t.scope, debugctx.AfterPacketParse, "compacket parsed")
	return p, nil
}
