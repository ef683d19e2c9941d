package session

import (
	"encoding/binary"
	"testing"

	"github.com/sedctl/tcgcore/pkg/core/discovery"
	"github.com/sedctl/tcgcore/pkg/core/feature"
	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/stream"
	"github.com/sedctl/tcgcore/pkg/core/uid"
	"github.com/sedctl/tcgcore/pkg/core/wire"
	"github.com/sedctl/tcgcore/pkg/drive"
)

// fakeTPer is a minimal in-process TPer that understands just enough of the
// wire format to answer GetComID, StackReset, the Properties handshake, one
// StartSession and a single application method call, then CloseSession.
type fakeTPer struct {
	comID   uint32
	pending []byte
	lastReq *wire.Parsed
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

func emptyComPacket() []byte {
	buf := make([]byte, 20)
	return buf
}

func buildComIDResponse(payload []byte) []byte {
	buf := make([]byte, 512)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(payload)))
	copy(buf[12:], payload)
	return buf
}

func (f *fakeTPer) handler(proto drive.SecurityProtocol, sps uint16, data []byte) ([]byte, error) {
	if data == nil {
		// IF-RECV
		if sps == 0 {
			buf := make([]byte, 512)
			binary.BigEndian.PutUint16(buf[0:2], uint16(f.comID&0xffff))
			binary.BigEndian.PutUint16(buf[2:4], uint16(f.comID>>16))
			return buf, nil
		}
		if f.pending != nil {
			resp := f.pending
			f.pending = nil
			return resp, nil
		}
		return emptyComPacket(), nil
	}

	// IF-SEND
	if len(data) == 512 {
		cph, err := wire.Parse(data)
		if err == nil && cph.ComPacket.Length == 0 {
			// comid management request
			reqCode := data[4:8]
			switch {
			case reqCode[3] == 0x02: // StackReset
				f.pending = buildComIDResponse([]byte{0, 0, 0, 0})
			case reqCode[3] == 0x01: // VerifyComIDValid
				f.pending = buildComIDResponse([]byte{0, 0, 0, 2})
			}
			return nil, nil
		}
	}

	p, err := wire.Parse(data)
	if err != nil {
		return nil, err
	}
	f.lastReq = p
	toks, err := stream.Decode(p.Tokens)
	if err != nil {
		return nil, nil
	}
	if len(toks) == 1 && stream.EqualToken(toks[0], stream.EndOfSession) {
		wp, err := wire.Build(wire.BuildParams{ComID: f.comID, TSN: 1, HSN: p.Packet.HSN, SeqNumber: 1}, stream.Token(stream.EndOfSession))
		if err != nil {
			return nil, err
		}
		f.pending = wp
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
		// toks[3] is the argument list of the StartSession call itself
		reqParams, _ := toks[3].(stream.List)
		hsn, _ := reqParams[0].(uint)
		params := append([]byte{}, stream.UInt(hsn)...)
		params = append(params, stream.UInt(1)...) // TSN
		respTokens = methodResult(uid.InvokeIDSMU, uid.MethodIDSMSyncSession, params)
	default:
		// Generic application method: echo back an empty result list.
		respTokens = methodResult(uid.InvokeIDThisSP, uid.MethodIDGet, nil)
	}

	wp, err := wire.Build(wire.BuildParams{
		ComID:            f.comID,
		TSN:              1,
		HSN:              p.Packet.HSN,
		SeqNumber:        1,
		MaxPacketSize:    0,
		MaxComPacketSize: 0,
	}, respTokens)
	if err != nil {
		return nil, err
	}
	f.pending = wp
	return nil, nil
}

func toUID(b []byte) (u uid.UID) {
	copy(u[:], b)
	return
}

func newFakeSession(t *testing.T) (*ControlSession, *fakeTPer) {
	t.Helper()
	tper := &fakeTPer{comID: 0x1000}
	fd := drive.NewFakeDrive(drive.Identity{Model: "fake"})
	fd.Handler = tper.handler

	d0 := &discovery.Level0Discovery{
		TPer: &feature.TPer{SyncSupported: true},
	}
	cs, err := NewControlSession(fd, d0, WithMaxComPacketSize(2048))
	if err != nil {
		t.Fatalf("NewControlSession() error = %v", err)
	}
	return cs, tper
}

func TestNewControlSessionNegotiatesProperties(t *testing.T) {
	cs, _ := newFakeSession(t)
	if cs.HostProperties.MaxComPacketSize != 2048 {
		t.Errorf("HostProperties.MaxComPacketSize = %d; want 2048", cs.HostProperties.MaxComPacketSize)
	}
}

func TestNewSessionAndExecuteMethodAndClose(t *testing.T) {
	cs, _ := newFakeSession(t)

	sess, err := cs.NewSession(uid.AdminSP)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if sess.TSN != 1 {
		t.Errorf("sess.TSN = %d; want 1", sess.TSN)
	}

	mc := method.NewMethodCall(uid.InvokeIDThisSP, uid.MethodIDGet, sess.MethodFlags)
	resp, err := sess.ExecuteMethod(mc)
	if err != nil {
		t.Fatalf("ExecuteMethod() error = %v", err)
	}
	if len(resp) != 4 {
		t.Fatalf("ExecuteMethod() response length = %d; want 4", len(resp))
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sess.Close(); err != ErrSessionAlreadyClosed {
		t.Errorf("second Close() error = %v; want ErrSessionAlreadyClosed", err)
	}
}

func TestSplitStartSessionMatchesNewSession(t *testing.T) {
	cs, _ := newFakeSession(t)

	sess, err := cs.SendStartSession(uid.AdminSP)
	if err != nil {
		t.Fatalf("SendStartSession() error = %v", err)
	}
	if sess.TSN != 0 {
		t.Fatalf("sess.TSN before RecvStartSession = %d; want 0", sess.TSN)
	}
	if err := cs.RecvStartSession(sess); err != nil {
		t.Fatalf("RecvStartSession() error = %v", err)
	}
	if sess.TSN != 1 {
		t.Errorf("sess.TSN = %d; want 1", sess.TSN)
	}

	mc := method.NewMethodCall(uid.InvokeIDThisSP, uid.MethodIDGet, sess.MethodFlags)
	if _, err := sess.ExecuteMethod(mc); err != nil {
		t.Fatalf("ExecuteMethod() error = %v", err)
	}
}

func TestRecvStartSessionWithoutSendFails(t *testing.T) {
	cs, _ := newFakeSession(t)
	sess := &Session{ControlSession: cs, ComID: cs.ComID, HSN: 5, ReceiveRetries: 0}
	if err := cs.RecvStartSession(sess); err == nil {
		t.Fatal("RecvStartSession() with nothing pending on the wire; want error")
	}
}

func TestPropertiesWithCapsRenegotiatesWithoutMutatingControlSession(t *testing.T) {
	cs, _ := newFakeSession(t)
	origMaxComPacket := cs.HostProperties.MaxComPacketSize

	hp, tp, err := cs.PropertiesWithCaps(HostProperties{MaxComPacketSize: 4096})
	if err != nil {
		t.Fatalf("PropertiesWithCaps() error = %v", err)
	}
	if hp.MaxComPacketSize != 2048 || tp.MaxComPacketSize != 2048 {
		t.Errorf("PropertiesWithCaps() = (%+v, %+v); want MaxComPacketSize 2048 from fake TPer", hp, tp)
	}
	if cs.HostProperties.MaxComPacketSize != origMaxComPacket {
		t.Errorf("cs.HostProperties.MaxComPacketSize changed to %d; want unchanged %d", cs.HostProperties.MaxComPacketSize, origMaxComPacket)
	}
}

func TestSetSessionTimeoutAndMaxComPacket(t *testing.T) {
	cs, _ := newFakeSession(t)
	sess, err := cs.NewSession(uid.AdminSP)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	sess.SetSessionTimeout(3, 0)
	if sess.ReceiveRetries != 3 {
		t.Errorf("sess.ReceiveRetries = %d; want 3", sess.ReceiveRetries)
	}

	sess.SetSessionMaxComPacket(256, 1024)
	if sess.t.maxPacketSize != 256 || sess.t.maxComPacketSize != 1024 {
		t.Errorf("transport limits = (%d, %d); want (256, 1024)", sess.t.maxPacketSize, sess.t.maxComPacketSize)
	}
}

func TestNewControlSessionRejectsUnsupportedTPer(t *testing.T) {
	fd := drive.NewFakeDrive(drive.Identity{})
	d0 := &discovery.Level0Discovery{TPer: &feature.TPer{SyncSupported: false}}
	if _, err := NewControlSession(fd, d0); err != ErrTPerSyncNotSupported {
		t.Fatalf("NewControlSession() error = %v; want ErrTPerSyncNotSupported", err)
	}
}
