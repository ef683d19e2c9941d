package eval

import (
	"time"

	"github.com/sedctl/tcgcore/pkg/core/debugctx"
	"github.com/sedctl/tcgcore/pkg/core/discovery"
	"github.com/sedctl/tcgcore/pkg/core/hash"
	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/session"
	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/core/table"
	"github.com/sedctl/tcgcore/pkg/core/uid"
	"github.com/sedctl/tcgcore/pkg/core/wire"
	"github.com/sedctl/tcgcore/pkg/drive"
)

// Evaluator is the sole consumer of pkg/core/*: it owns a drive, the Level 0
// Discovery result elected off it, the implicit control session, and at
// most one Security Provider session at a time. Every operation on it
// returns a *RawResult rather than panicking or requiring the caller to
// juggle sentinel error types.
type Evaluator struct {
	d   drive.DriveIntf
	dbg *debugctx.Context

	d0      *discovery.Level0Discovery
	summary *discovery.Summary

	cs *session.ControlSession
	s  *session.Session

	pendingStart *session.Session
}

// Option configures an Evaluator at construction time.
type Option func(*Evaluator)

// WithDebugContext attaches a non-default debug context, e.g. one with
// fault rules armed for negative testing.
func WithDebugContext(dbg *debugctx.Context) Option {
	return func(e *Evaluator) { e.dbg = dbg }
}

// Open performs Level 0 Discovery against d, elects an SSC, and negotiates
// the implicit control session, returning an Evaluator ready for StartSession.
func Open(d drive.DriveIntf, opts ...Option) (*Evaluator, *RawResult) {
	e := &Evaluator{d: d, dbg: debugctx.Default()}
	for _, opt := range opts {
		opt(e)
	}

	d0, err := discovery.Discovery0(d)
	if err != nil {
		return nil, fail("Discovery", err)
	}
	e.d0 = d0
	e.summary = discovery.Elect(d0)
	if e.summary.SSC == discovery.SSCUnknown {
		return nil, fail("Discovery", sscerr.New(sscerr.KindDiscoveryUnsupportedSsc, "no supported SSC feature descriptor found"))
	}

	csOpts := []session.ControlSessionOpt{session.WithDebugContext(e.dbg, "")}
	if e.summary.BaseComID != 0 {
		csOpts = append(csOpts, session.WithComID(uint32(e.summary.BaseComID)))
	}
	cs, err := session.NewControlSession(d, d0, csOpts...)
	if err != nil {
		return nil, fail("Discovery", err)
	}
	e.cs = cs
	return e, ok("Discovery", e.summary, nil)
}

// Discovery returns the elected SSC summary computed at Open time.
func (e *Evaluator) Discovery() *RawResult {
	return ok("Discovery", e.summary, nil)
}

// DiscoveryRaw re-issues the Level 0 Discovery IF-RECV and returns the
// unparsed response bytes, for callers that want the wire payload rather
// than the parsed descriptor tree.
func (e *Evaluator) DiscoveryRaw() *RawResult {
	raw, err := discovery.Raw(e.d)
	if err != nil {
		return fail("DiscoveryRaw", err)
	}
	return ok("DiscoveryRaw", raw, nil)
}

// DiscoveryFull returns the complete parsed Level 0 Discovery descriptor
// tree (every feature descriptor this driver understands), not just the
// elected summary.
func (e *Evaluator) DiscoveryFull() *RawResult {
	return ok("DiscoveryFull", e.d0, nil)
}

// Properties returns the Host/TPer properties negotiated when the control
// session was opened.
func (e *Evaluator) Properties() *RawResult {
	return ok("Properties", struct {
		Host session.HostProperties
		TPer session.TPerProperties
	}{e.cs.HostProperties, e.cs.TPerProperties}, nil)
}

// StartSession opens a Session against spid, replacing any session this
// Evaluator currently holds open. Passing readOnly starts a read-only
// session.
func (e *Evaluator) StartSession(spid uid.SPID, readOnly bool) *RawResult {
	var opts []session.SessionOpt
	if readOnly {
		opts = append(opts, session.WithReadOnly())
	}
	s, err := e.cs.NewSession(spid, opts...)
	if err != nil {
		return fail("StartSession", err)
	}
	e.s = s
	return ok("StartSession", spid, nil)
}

// StartSessionSend builds and sends a StartSession request for spid without
// waiting for the reply, the first half of a split StartSession exchange a
// caller can use to inspect or fault-inject the raw wire traffic between
// send and receive. Call StartSessionRecv to complete it.
func (e *Evaluator) StartSessionSend(spid uid.SPID, readOnly bool) *RawResult {
	var opts []session.SessionOpt
	if readOnly {
		opts = append(opts, session.WithReadOnly())
	}
	s, err := e.cs.SendStartSession(spid, opts...)
	if err != nil {
		return fail("StartSessionSend", err)
	}
	e.pendingStart = s
	return ok("StartSessionSend", spid, nil)
}

// StartSessionRecv completes a StartSession exchange begun with
// StartSessionSend, installing the resulting Session as the Evaluator's
// active session on success.
func (e *Evaluator) StartSessionRecv() *RawResult {
	if e.pendingStart == nil {
		return fail("StartSessionRecv", sscerr.New(sscerr.KindSessionNotStarted, "no StartSessionSend is pending"))
	}
	s := e.pendingStart
	e.pendingStart = nil
	if err := e.cs.RecvStartSession(s); err != nil {
		return fail("StartSessionRecv", err)
	}
	e.s = s
	return ok("StartSessionRecv", s.HSN, nil)
}

// PropertiesWithCaps re-negotiates Properties using custom HostProperties
// caps instead of the defaults picked at Open time, without altering the
// control session's own negotiated properties.
func (e *Evaluator) PropertiesWithCaps(hp session.HostProperties) *RawResult {
	negHP, negTP, err := e.cs.PropertiesWithCaps(hp)
	if err != nil {
		return fail("PropertiesWithCaps", err)
	}
	return ok("PropertiesWithCaps", struct {
		Host session.HostProperties
		TPer session.TPerProperties
	}{negHP, negTP}, nil)
}

// SetSessionTimeout overrides the active session's receive poll retry count
// and interval.
func (e *Evaluator) SetSessionTimeout(retries int, interval time.Duration) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetSessionTimeout", err)
	}
	e.s.SetSessionTimeout(retries, interval)
	return ok("SetSessionTimeout", retries, nil)
}

// SetSessionMaxComPacket overrides the active session's negotiated
// Packet/ComPacket size limits.
func (e *Evaluator) SetSessionMaxComPacket(maxPacketSize, maxComPacketSize uint) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetSessionMaxComPacket", err)
	}
	e.s.SetSessionMaxComPacket(maxPacketSize, maxComPacketSize)
	return ok("SetSessionMaxComPacket", maxComPacketSize, nil)
}

// SessionSnapshot is a point-in-time view of the active session's wire-level
// state, for introspection and diagnostics.
type SessionSnapshot struct {
	ComID         uint32
	HSN, TSN      int
	ProtocolLevel session.ProtocolLevel
	ReadOnly      bool
}

// SessionState returns a snapshot of the active session's ComID/HSN/TSN,
// protocol level, and read-only flag.
func (e *Evaluator) SessionState() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SessionState", err)
	}
	snap := SessionSnapshot{
		ComID:         e.s.ComID,
		HSN:           e.s.HSN,
		TSN:           e.s.TSN,
		ProtocolLevel: e.s.ProtocolLevel,
		ReadOnly:      e.s.ReadOnly,
	}
	return ok("SessionState", snap, nil)
}

// SendRawComPacket frames tokens as a ComPacket using the active session's
// ComID/HSN/TSN and sends it directly, bypassing the method-call encoder
// entirely. Intended for integration tests and vendor-specific workarounds
// that need to drive the wire protocol by hand.
func (e *Evaluator) SendRawComPacket(tokens []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SendRawComPacket", err)
	}
	buf, err := wire.Build(wire.BuildParams{
		ComID:            e.s.ComID,
		TSN:              uint32(e.s.TSN),
		HSN:              uint32(e.s.HSN),
		MaxPacketSize:    e.cs.HostProperties.MaxPacketSize,
		MaxComPacketSize: e.cs.HostProperties.MaxComPacketSize,
	}, tokens)
	if err != nil {
		return fail("SendRawComPacket", err)
	}
	if err := e.d.IFSend(drive.SecurityProtocolTCGTPer, uint16(e.s.ComID&0xffff), buf); err != nil {
		return fail("SendRawComPacket", sscerr.Wrap(sscerr.KindTransportSendFailed, "raw ComPacket send", err))
	}
	return ok("SendRawComPacket", len(buf), nil)
}

// RecvRawComPacket issues an IF-RECV of size bytes on the active session's
// ComID and parses it as a raw ComPacket, returning the enclosed token
// bytes without running them through the method-response decoder.
func (e *Evaluator) RecvRawComPacket(size int) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("RecvRawComPacket", err)
	}
	buf := make([]byte, size)
	if err := e.d.IFRecv(drive.SecurityProtocolTCGTPer, uint16(e.s.ComID&0xffff), &buf); err != nil {
		return fail("RecvRawComPacket", sscerr.Wrap(sscerr.KindTransportRecvFailed, "raw ComPacket recv", err))
	}
	parsed, err := wire.Parse(buf)
	if err != nil {
		return fail("RecvRawComPacket", err)
	}
	return ok("RecvRawComPacket", parsed.Tokens, nil)
}

// CloseSession closes the currently open Session, if any. It is a no-op if
// no session is open.
func (e *Evaluator) CloseSession() *RawResult {
	if e.s == nil {
		return ok("CloseSession", nil, nil)
	}
	err := e.s.Close()
	s := e.s
	e.s = nil
	if err != nil {
		return fail("CloseSession", err)
	}
	return ok("CloseSession", s, nil)
}

// Close closes the active Session (if any) and releases the drive handle.
// The control session itself has no teardown on the wire (Core Spec: the
// implicit session is never explicitly closed), so this only closes what
// was actually opened.
func (e *Evaluator) Close() error {
	if e.s != nil {
		e.s.Close()
		e.s = nil
	}
	return e.d.Close()
}

// Authenticate submits proof as the Challenge for authority against the
// currently open session.
func (e *Evaluator) Authenticate(authority uid.AuthorityObjectUID, proof []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("Authenticate", err)
	}
	err := table.ThisSP_Authenticate(e.s, authority, proof)
	if err != nil {
		return fail("Authenticate", err)
	}
	return ok("Authenticate", authority, nil)
}

// AuthenticatePassword hashes password (with serial as salt input, using the
// given HashPassword variant) and submits it as the Challenge for authority,
// the string-credential counterpart to Authenticate for callers that hold a
// plaintext password rather than a pre-hashed credential.
func (e *Evaluator) AuthenticatePassword(authority uid.AuthorityObjectUID, password, serial, variant string) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("AuthenticatePassword", err)
	}
	hr := e.HashPassword(password, serial, variant)
	if hr.Err != nil {
		return fail("AuthenticatePassword", hr.Err)
	}
	proof, isBytes := hr.Value.([]byte)
	if !isBytes {
		return fail("AuthenticatePassword", sscerr.New(sscerr.KindInvalidArgument, "password hash did not produce credential bytes"))
	}
	if err := table.ThisSP_Authenticate(e.s, authority, proof); err != nil {
		return fail("AuthenticatePassword", err)
	}
	return ok("AuthenticatePassword", authority, nil)
}

// Random draws count random bytes from the TPer via ThisSP_Random.
func (e *Evaluator) Random(count uint) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("Random", err)
	}
	b, err := table.ThisSP_Random(e.s, count)
	if err != nil {
		return fail("Random", err)
	}
	return ok("Random", b, nil)
}

// GenKey issues the Base Template GenKey method against row, used to
// re-key a locking range's K_AES key after an erase.
func (e *Evaluator) GenKey(row uid.RowUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GenKey", err)
	}
	mc := method.NewMethodCall(uid.InvokingID(row), uid.MethodIDGenKey, e.s.MethodFlags)
	resp, err := e.s.ExecuteMethod(mc)
	if err != nil {
		return fail("GenKey", err)
	}
	return ok("GenKey", row, resp)
}

// ExecuteRawMethod sends a caller-built method.MethodCall as-is and returns
// the decoded result list, for operations this Evaluator has no named
// wrapper for.
func (e *Evaluator) ExecuteRawMethod(mc *method.MethodCall) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("ExecuteRawMethod", err)
	}
	resp, err := e.s.ExecuteMethod(mc)
	if err != nil {
		return fail("ExecuteRawMethod", err)
	}
	return ok("ExecuteRawMethod", nil, resp)
}

// IFSend issues a raw IF-SEND to the drive, bypassing the session layer
// entirely.
func (e *Evaluator) IFSend(proto drive.SecurityProtocol, comID uint16, data []byte) *RawResult {
	if err := e.d.IFSend(proto, comID, data); err != nil {
		return fail("IFSend", sscerr.Wrap(sscerr.KindTransportSendFailed, "raw IF-SEND", err))
	}
	return ok("IFSend", nil, nil)
}

// IFRecv issues a raw IF-RECV of size bytes, bypassing the session layer.
func (e *Evaluator) IFRecv(proto drive.SecurityProtocol, comID uint16, size int) *RawResult {
	buf := make([]byte, size)
	if err := e.d.IFRecv(proto, comID, &buf); err != nil {
		return fail("IFRecv", sscerr.Wrap(sscerr.KindTransportRecvFailed, "raw IF-RECV", err))
	}
	return ok("IFRecv", buf, nil)
}

// GetComID requests a fresh extended ComID from the TPer.
func (e *Evaluator) GetComID() *RawResult {
	c, err := session.GetComID(e.d)
	if err != nil {
		return fail("GetComID", err)
	}
	return ok("GetComID", c, nil)
}

// IsComIDValid reports whether comID is currently valid and usable.
func (e *Evaluator) IsComIDValid(comID uint32) *RawResult {
	valid, err := session.IsComIDValid(e.d, session.ComID(comID))
	if err != nil {
		return fail("IsComIDValid", err)
	}
	return ok("IsComIDValid", valid, nil)
}

// StackReset resets the synchronous protocol stack state for comID.
func (e *Evaluator) StackReset(comID uint32) *RawResult {
	if err := session.StackReset(e.d, session.ComID(comID)); err != nil {
		return fail("StackReset", err)
	}
	return ok("StackReset", nil, nil)
}

// HashPassword derives the credential bytes sedutil-DTA (and its SHA-512
// successor) would write to a C_PIN row's PIN column for password/serial,
// selecting the KDF iteration count and digest by variant ("sedutil-dta" or
// "sedutil-512"; an empty variant selects "sedutil-dta" and anything else
// is rejected).
func (e *Evaluator) HashPassword(password, serial, variant string) *RawResult {
	switch variant {
	case "sedutil-dta", "":
		return ok("HashPassword", hash.HashSedutilDTA(password, serial), nil)
	case "sedutil-512":
		return ok("HashPassword", hash.HashSedutil512(password, serial), nil)
	default:
		return fail("HashPassword", sscerr.Newf(sscerr.KindInvalidArgument, "unknown password hash variant %q", variant))
	}
}

// Trace returns the debug context's recorded trace events for this
// Evaluator's scope, for session introspection.
func (e *Evaluator) Trace() *RawResult {
	return ok("Trace", e.dbg.Trace(""), nil)
}

func (e *Evaluator) requireSession() error {
	if e.s == nil {
		return sscerr.New(sscerr.KindSessionNotStarted, "no session is open; call StartSession first")
	}
	return nil
}
