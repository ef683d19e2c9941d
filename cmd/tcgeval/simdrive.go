package main

import (
	"encoding/binary"

	"github.com/sedctl/tcgcore/pkg/core/discovery"
	"github.com/sedctl/tcgcore/pkg/core/feature"
	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/stream"
	"github.com/sedctl/tcgcore/pkg/core/uid"
	"github.com/sedctl/tcgcore/pkg/core/wire"
	"github.com/sedctl/tcgcore/pkg/drive"
)

// simulatedTPer answers just enough of the wire protocol for the example
// commands in this package to run: Level 0 Discovery, GetComID,
// StackReset/VerifyComID, Properties, StartSession, and a generic Get/Set
// method call that always reports success. It does not model real row
// state, so Get always returns an empty result and every Set is accepted
// unconditionally — this is an example transport, not a drive simulator.
type simulatedTPer struct {
	comID   uint32
	ssc     string
	pending []byte
}

func newSimulatedDrive(ssc string) drive.DriveIntf {
	t := &simulatedTPer{comID: 0x1000, ssc: ssc}
	fd := drive.NewFakeDrive(drive.Identity{Model: "tcgeval-simulated", SerialNumber: "SIMSERIAL0000001"})
	fd.Handler = t.handler
	return fd
}

func namedUint(name string, v uint) []byte {
	b := stream.Token(stream.StartName)
	b = append(b, stream.Bytes([]byte(name))...)
	b = append(b, stream.UInt(v)...)
	b = append(b, stream.Token(stream.EndName)...)
	return b
}

func methodResult(iid uid.InvokingID, mid uid.MethodID, params []byte) []byte {
	b := stream.Token(stream.Call)
	b = append(b, stream.Bytes(iid[:])...)
	b = append(b, stream.Bytes(mid[:])...)
	b = append(b, stream.Token(stream.StartList)...)
	b = append(b, params...)
	b = append(b, stream.Token(stream.EndList)...)
	b = append(b, stream.Token(stream.EndOfData)...)
	b = append(b, stream.Token(stream.StartList)...)
	b = append(b, stream.UInt(uint(method.StatusSuccess))...)
	b = append(b, stream.UInt(0)...)
	b = append(b, stream.UInt(0)...)
	b = append(b, stream.Token(stream.EndList)...)
	return b
}

func buildComIDResponse(payload []byte) []byte {
	buf := make([]byte, 512)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(payload)))
	copy(buf[12:], payload)
	return buf
}

func toUID(b []byte) (u uid.UID) {
	copy(u[:], b)
	return
}

func (t *simulatedTPer) discoveryResponse() []byte {
	buf := make([]byte, 2048)
	off := 48

	const tperBodySize = 4
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(feature.CodeTPer))
	buf[off+2] = 0x10
	buf[off+3] = tperBodySize
	buf[off+4] = 0x01
	off += 4 + tperBodySize

	if t.ssc == "enterprise" {
		// Enterprise's body is CommonSSC(4) + RangeCrossingBehavior(1) = 5
		// bytes, read via a single binary.Read of the whole struct.
		const bodySize = 5
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(feature.CodeEnterprise))
		buf[off+2] = 0x10
		buf[off+3] = bodySize
		binary.BigEndian.PutUint16(buf[off+4:off+6], uint16(t.comID))
		binary.BigEndian.PutUint16(buf[off+6:off+8], 1)
		off += 4 + bodySize
	} else {
		const bodySize = 11
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(feature.CodeOpalV2))
		buf[off+2] = 0x10
		buf[off+3] = bodySize
		binary.BigEndian.PutUint16(buf[off+4:off+6], uint16(t.comID))
		binary.BigEndian.PutUint16(buf[off+6:off+8], 1)
		off += 4 + bodySize
	}

	binary.BigEndian.PutUint32(buf[0:4], uint32(off-4))
	return buf[:off]
}

func (t *simulatedTPer) handler(proto drive.SecurityProtocol, sps uint16, data []byte) ([]byte, error) {
	if data == nil {
		if proto == drive.SecurityProtocolTCGManagement && sps == uint16(discovery.ComIDDiscoveryL0) {
			return t.discoveryResponse(), nil
		}
		if sps == 0 {
			buf := make([]byte, 512)
			binary.BigEndian.PutUint16(buf[0:2], uint16(t.comID&0xffff))
			binary.BigEndian.PutUint16(buf[2:4], uint16(t.comID>>16))
			return buf, nil
		}
		if t.pending != nil {
			resp := t.pending
			t.pending = nil
			return resp, nil
		}
		return make([]byte, 20), nil
	}

	if len(data) == 512 {
		cph, err := wire.Parse(data)
		if err == nil && cph.ComPacket.Length == 0 {
			reqCode := data[4:8]
			switch {
			case reqCode[3] == 0x02:
				t.pending = buildComIDResponse([]byte{0, 0, 0, 0})
			case reqCode[3] == 0x01:
				t.pending = buildComIDResponse([]byte{0, 0, 0, 2})
			}
			return nil, nil
		}
	}

	p, err := wire.Parse(data)
	if err != nil {
		return nil, err
	}
	toks, err := stream.Decode(p.Tokens)
	if err != nil {
		return nil, nil
	}
	if len(toks) == 1 && stream.EqualToken(toks[0], stream.EndOfSession) {
		wp, _ := wire.Build(wire.BuildParams{ComID: t.comID, TSN: 1, HSN: p.Packet.HSN, SeqNumber: 1}, stream.Token(stream.EndOfSession))
		t.pending = wp
		return nil, nil
	}
	if len(toks) < 3 {
		return nil, nil
	}
	mid, _ := toks[2].([]byte)

	var respTokens []byte
	switch {
	case len(mid) == 8 && uid.MethodID(toUID(mid)) == uid.MethodIDSMProperties:
		tpList := namedUint("MaxComPacketSize", 2048)
		hpList := namedUint("MaxComPacketSize", 2048)
		params := append([]byte{}, stream.Token(stream.StartList)...)
		params = append(params, tpList...)
		params = append(params, stream.Token(stream.EndList)...)
		params = append(params, stream.Token(stream.StartName)...)
		params = append(params, stream.UInt(0)...)
		params = append(params, stream.Token(stream.StartList)...)
		params = append(params, hpList...)
		params = append(params, stream.Token(stream.EndList)...)
		params = append(params, stream.Token(stream.EndName)...)
		respTokens = methodResult(uid.InvokeIDSMU, uid.MethodIDSMProperties, params)
	case len(mid) == 8 && uid.MethodID(toUID(mid)) == uid.MethodIDSMStartSession:
		reqParams, _ := toks[3].(stream.List)
		hsn, _ := reqParams[0].(uint)
		params := append([]byte{}, stream.UInt(hsn)...)
		params = append(params, stream.UInt(1)...)
		respTokens = methodResult(uid.InvokeIDSMU, uid.MethodIDSMSyncSession, params)
	default:
		respTokens = methodResult(uid.InvokeIDThisSP, uid.MethodIDGet, nil)
	}

	wp, err := wire.Build(wire.BuildParams{ComID: t.comID, TSN: 1, HSN: p.Packet.HSN, SeqNumber: 1}, respTokens)
	if err != nil {
		return nil, err
	}
	t.pending = wp
	return nil, nil
}
