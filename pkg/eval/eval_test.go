package eval

import (
	"encoding/binary"
	"testing"

	"github.com/sedctl/tcgcore/pkg/core/discovery"
	"github.com/sedctl/tcgcore/pkg/core/feature"
	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/core/stream"
	"github.com/sedctl/tcgcore/pkg/core/uid"
	"github.com/sedctl/tcgcore/pkg/core/wire"
	"github.com/sedctl/tcgcore/pkg/drive"
)

// fakeTPer answers just enough of the wire protocol to exercise Open,
// StartSession and one Get/Set round trip: Level 0 Discovery, GetComID,
// StackReset/VerifyComID, Properties and StartSession, then echoes any
// other method call back as an empty result list.
type fakeTPer struct {
	comID   uint32
	pending []byte
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

// rawMethodResult builds a response without the Call/InvokingID/MethodID
// envelope methodResult adds: StartList <params> EndList EndOfData
// <status list>, matching the actual TCG method-result wire shape (as
// opposed to methodResult's unsolicited-notification-style wrapper), for
// exercising decode paths that expect exactly one level of outer List.
func rawMethodResult(params []byte) []byte {
	b := stream.Token(stream.StartList)
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

func (f *fakeTPer) handler(proto drive.SecurityProtocol, sps uint16, data []byte) ([]byte, error) {
	if data == nil {
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
		return make([]byte, 20), nil
	}

	if len(data) == 512 {
		cph, err := wire.Parse(data)
		if err == nil && cph.ComPacket.Length == 0 {
			reqCode := data[4:8]
			switch {
			case reqCode[3] == 0x02:
				f.pending = buildComIDResponse([]byte{0, 0, 0, 0})
			case reqCode[3] == 0x01:
				f.pending = buildComIDResponse([]byte{0, 0, 0, 2})
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
		wp, _ := wire.Build(wire.BuildParams{ComID: f.comID, TSN: 1, HSN: p.Packet.HSN, SeqNumber: 1}, stream.Token(stream.EndOfSession))
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
		reqParams, _ := toks[3].(stream.List)
		hsn, _ := reqParams[0].(uint)
		params := append([]byte{}, stream.UInt(hsn)...)
		params = append(params, stream.UInt(1)...)
		respTokens = methodResult(uid.InvokeIDSMU, uid.MethodIDSMSyncSession, params)
	case len(mid) == 8 && uid.MethodID(toUID(mid)) == uid.MethodIDGetACL:
		aceRow := uid.RowUID{0, 0, 0, 8, 0, 0, 0, 1}
		respTokens = rawMethodResult(stream.Bytes(aceRow[:]))
	case len(mid) == 8 && uid.MethodID(toUID(mid)) == uid.MethodIDGetClock:
		respTokens = rawMethodResult(stream.UInt(123456))
	case len(mid) == 8 && (uid.MethodID(toUID(mid)) == uid.MethodIDAuthenticate || uid.MethodID(toUID(mid)) == uid.MethodIDEnterpriseAuthenticate):
		respTokens = rawMethodResult(stream.UInt(1))
	default:
		respTokens = methodResult(uid.InvokeIDThisSP, uid.MethodIDGet, nil)
	}

	wp, err := wire.Build(wire.BuildParams{ComID: f.comID, TSN: 1, HSN: p.Packet.HSN, SeqNumber: 1}, respTokens)
	if err != nil {
		return nil, err
	}
	f.pending = wp
	return nil, nil
}

func newFakeEvaluator(t *testing.T) (*Evaluator, *fakeTPer) {
	t.Helper()
	tper := &fakeTPer{comID: 0x1000}
	fd := drive.NewFakeDrive(drive.Identity{Model: "fake"})
	fd.Handler = tper.handler

	d0 := &discovery.Level0Discovery{
		TPer:   &feature.TPer{SyncSupported: true},
		OpalV2: &feature.OpalV2{CommonSSC: feature.CommonSSC{BaseComID: 0x1000, NumComID: 1}},
	}
	// Monkey-patch Open's own discovery call by issuing GetComID/Parse
	// ourselves: Open always re-runs discovery against the drive, so the
	// fake drive's Level 0 Discovery IF-RECV has to answer something
	// Parse accepts. Build that response here.
	raw := buildLevel0Discovery(d0)
	fd.Handler = func(proto drive.SecurityProtocol, sps uint16, data []byte) ([]byte, error) {
		if data == nil && proto == drive.SecurityProtocolTCGManagement && sps == uint16(discovery.ComIDDiscoveryL0) {
			return raw, nil
		}
		return tper.handler(proto, sps, data)
	}

	e, res := Open(fd)
	if res.Err != nil {
		t.Fatalf("Open() error = %v", res.Err)
	}
	return e, tper
}

// newFakeEnterpriseEvaluator is newFakeEvaluator's Enterprise-SSC
// counterpart: the fake drive advertises the Enterprise feature instead of
// Opal V2, so ControlSession elects ProtocolLevelEnterprise and the
// Enterprise-only operations (band master passwords, LockOnReset, and
// friends) can be exercised.
func newFakeEnterpriseEvaluator(t *testing.T) (*Evaluator, *fakeTPer) {
	t.Helper()
	tper := &fakeTPer{comID: 0x1000}
	fd := drive.NewFakeDrive(drive.Identity{Model: "fake"})

	d0 := &discovery.Level0Discovery{
		TPer:       &feature.TPer{SyncSupported: true},
		Enterprise: &feature.Enterprise{CommonSSC: feature.CommonSSC{BaseComID: 0x1000, NumComID: 1}},
	}
	raw := buildLevel0Discovery(d0)
	fd.Handler = func(proto drive.SecurityProtocol, sps uint16, data []byte) ([]byte, error) {
		if data == nil && proto == drive.SecurityProtocolTCGManagement && sps == uint16(discovery.ComIDDiscoveryL0) {
			return raw, nil
		}
		return tper.handler(proto, sps, data)
	}

	e, res := Open(fd)
	if res.Err != nil {
		t.Fatalf("Open() error = %v", res.Err)
	}
	return e, tper
}

// buildLevel0Discovery renders d0 back into the wire format discovery.Parse
// expects, covering only the fields this test's fake TPer populates.
func buildLevel0Discovery(d0 *discovery.Level0Discovery) []byte {
	buf := make([]byte, 2048)
	// header: Size(4) Major(2) Minor(2) Reserved(8) Vendor(32) = 48 bytes
	off := 48
	if d0.TPer != nil {
		const bodySize = 4
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(feature.CodeTPer))
		buf[off+2] = 0x10
		buf[off+3] = bodySize
		var v byte
		if d0.TPer.SyncSupported {
			v |= 0x01
		}
		buf[off+4] = v
		off += 4 + bodySize
	}
	if d0.OpalV2 != nil {
		// OpalV2's body is CommonSSC(4) + RangeCrossingBehavior(1) +
		// NumLockingSPAdminSupported(2) + NumLockingSPUserSupported(2) +
		// InitialCPINSIDIndicator(1) + BehaviorCPINSIDuponTPerRevert(1) = 11
		// bytes, read via a single binary.Read of the whole struct.
		const bodySize = 11
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(feature.CodeOpalV2))
		buf[off+2] = 0x10
		buf[off+3] = bodySize
		binary.BigEndian.PutUint16(buf[off+4:off+6], d0.OpalV2.BaseComID)
		binary.BigEndian.PutUint16(buf[off+6:off+8], d0.OpalV2.NumComID)
		off += 4 + bodySize
	}
	if d0.Enterprise != nil {
		// Enterprise's body is CommonSSC(4) + RangeCrossingBehavior(1) = 5
		// bytes, read via a single binary.Read of the whole struct.
		const bodySize = 5
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(feature.CodeEnterprise))
		buf[off+2] = 0x10
		buf[off+3] = bodySize
		binary.BigEndian.PutUint16(buf[off+4:off+6], d0.Enterprise.BaseComID)
		binary.BigEndian.PutUint16(buf[off+6:off+8], d0.Enterprise.NumComID)
		off += 4 + bodySize
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(off-4))
	return buf[:off]
}

func TestOpenElectsOpalV2AndNegotiatesProperties(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	if e.summary.SSC != discovery.SSCOpalV2 {
		t.Fatalf("elected SSC = %v; want OpalV2", e.summary.SSC)
	}
	res := e.Properties()
	if !res.OK() {
		t.Fatalf("Properties() error = %v", res.Err)
	}
}

func TestStartSessionAndGetFullRowAndClose(t *testing.T) {
	e, _ := newFakeEvaluator(t)

	if res := e.StartSession(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	res := e.GetFullRow(uid.Admin_C_PIN_MSIDRow)
	if res.Err == nil {
		t.Fatalf("GetFullRow() with an empty fake response should report ErrEmptyResult, got value %v", res.Value)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestOperationsWithoutSessionFail(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()

	res := e.Random(8)
	if res.OK() {
		t.Fatalf("Random() without a session should fail")
	}
	if res.ErrKind() != sscerr.KindSessionNotStarted {
		t.Errorf("Random() without a session ErrKind() = %v; want KindSessionNotStarted", res.ErrKind())
	}
}

func TestHashPasswordVariants(t *testing.T) {
	e := &Evaluator{}
	res := e.HashPassword("hunter2", "SERIAL0000000001", "sedutil-dta")
	if !res.OK() || len(res.Value.([]byte)) != 32 {
		t.Fatalf("HashPassword(sedutil-dta) = %+v", res)
	}
	res = e.HashPassword("hunter2", "SERIAL0000000001", "bogus")
	if res.OK() {
		t.Fatalf("HashPassword(bogus) should fail")
	}
}

func TestGetACLUnwrapsOuterList(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()
	if res := e.StartSession(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	res := e.GetACL(uid.InvokingID(uid.AdminSP), uid.MethodIDGet)
	if !res.OK() {
		t.Fatalf("GetACL() error = %v", res.Err)
	}
	aces, ok := res.Value.([]uid.RowUID)
	if !ok || len(aces) != 1 {
		t.Fatalf("GetACL() Value = %#v; want one ACE row UID", res.Value)
	}
	want := uid.RowUID{0, 0, 0, 8, 0, 0, 0, 1}
	if aces[0] != want {
		t.Errorf("GetACL() aces[0] = %v; want %v", aces[0], want)
	}
}

func TestGetClockUnwrapsOuterList(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()
	if res := e.StartSession(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	res := e.GetClock()
	if !res.OK() {
		t.Fatalf("GetClock() error = %v", res.Err)
	}
	if res.Value.(uint64) != 123456 {
		t.Errorf("GetClock() = %v; want 123456", res.Value)
	}
}

func TestRowLifecycleAndAclOperationsRoundTrip(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()
	if res := e.StartSession(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	if res := e.CreateRow(uid.Table_Authority); !res.OK() {
		t.Errorf("CreateRow() error = %v", res.Err)
	}
	if res := e.DeleteRow(uid.RowUID(uid.LockingAuthorityAdmin1)); !res.OK() {
		t.Errorf("DeleteRow() error = %v", res.Err)
	}
	if res := e.Assign(uid.Table_Authority, uid.RowUID(uid.LockingAuthorityAdmin1), uid.AuthorityAnybody); !res.OK() {
		t.Errorf("Assign() error = %v", res.Err)
	}
	if res := e.Remove(uid.Table_Authority, uid.RowUID(uid.LockingAuthorityAdmin1), uid.AuthorityAnybody); !res.OK() {
		t.Errorf("Remove() error = %v", res.Err)
	}
	if res := e.AssignUserToRange(1, 1); !res.OK() {
		t.Errorf("AssignUserToRange() error = %v", res.Err)
	}
	if res := e.SetAuthorityEnabled(uid.LockingAuthorityAdmin1, true); !res.OK() {
		t.Errorf("SetAuthorityEnabled() error = %v", res.Err)
	}
	if res := e.PSIDRevert(); !res.OK() {
		t.Errorf("PSIDRevert() error = %v", res.Err)
	}
	if res := e.Erase(uid.InvokingID(uid.LockingAuthorityAdmin1)); !res.OK() {
		t.Errorf("Erase() error = %v", res.Err)
	}
}

func TestSplitStartSessionRoundTrip(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()

	if res := e.StartSessionSend(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSessionSend() error = %v", res.Err)
	}
	if res := e.StartSessionRecv(); !res.OK() {
		t.Fatalf("StartSessionRecv() error = %v", res.Err)
	}

	res := e.SessionState()
	if !res.OK() {
		t.Fatalf("SessionState() error = %v", res.Err)
	}
	snap, ok := res.Value.(SessionSnapshot)
	if !ok || snap.TSN != 1 {
		t.Fatalf("SessionState() = %#v; want TSN 1", res.Value)
	}
}

func TestStartSessionRecvWithoutSendFails(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()

	res := e.StartSessionRecv()
	if res.OK() {
		t.Fatal("StartSessionRecv() with no StartSessionSend pending should fail")
	}
}

func TestSessionIntrospectionSetters(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()
	if res := e.StartSession(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	if res := e.SetSessionTimeout(2, 0); !res.OK() {
		t.Errorf("SetSessionTimeout() error = %v", res.Err)
	}
	if res := e.SetSessionMaxComPacket(256, 1024); !res.OK() {
		t.Errorf("SetSessionMaxComPacket() error = %v", res.Err)
	}
}

func TestRawComPacketSendAndRecv(t *testing.T) {
	e, tper := newFakeEvaluator(t)
	defer e.Close()
	if res := e.StartSession(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	if res := e.SendRawComPacket(stream.Token(stream.EndOfData)); !res.OK() {
		t.Fatalf("SendRawComPacket() error = %v", res.Err)
	}

	want := rawMethodResult(stream.UInt(7))
	wp, err := wire.Build(wire.BuildParams{ComID: tper.comID, TSN: 1, HSN: 1, SeqNumber: 1}, want)
	if err != nil {
		t.Fatalf("wire.Build() error = %v", err)
	}
	tper.pending = wp

	res := e.RecvRawComPacket(512)
	if !res.OK() {
		t.Fatalf("RecvRawComPacket() error = %v", res.Err)
	}
	tokens, ok := res.Value.([]byte)
	if !ok || len(tokens) == 0 {
		t.Fatalf("RecvRawComPacket() Value = %#v; want non-empty token bytes", res.Value)
	}
}

func TestAuthenticatePassword(t *testing.T) {
	e, _ := newFakeEvaluator(t)
	defer e.Close()
	if res := e.StartSession(uid.AdminSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	res := e.AuthenticatePassword(uid.LockingAuthorityAdmin1, "hunter2", "SERIAL0000000001", "sedutil-dta")
	if !res.OK() {
		t.Fatalf("AuthenticatePassword() error = %v", res.Err)
	}
}

func TestEnterpriseBandOperations(t *testing.T) {
	e, _ := newFakeEnterpriseEvaluator(t)
	defer e.Close()
	if res := e.StartSession(uid.EnterpriseLockingSP, false); !res.OK() {
		t.Fatalf("StartSession() error = %v", res.Err)
	}

	if res := e.SetBandLockOnReset(0, true); !res.OK() {
		t.Errorf("SetBandLockOnReset() error = %v", res.Err)
	}
	if res := e.SetBandMasterPassword(0, []byte("newpin")); !res.OK() {
		t.Errorf("SetBandMasterPassword() error = %v", res.Err)
	}
	if res := e.EraseAllBands(2); !res.OK() {
		t.Errorf("EraseAllBands() error = %v", res.Err)
	}
}
