package debugctx

import (
	"testing"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
)

func TestParseFaultScriptAndArm(t *testing.T) {
	data := []byte(`
name: drop-first-send
rules:
  - id: r1
    site: BeforeIfSend
    action: DropPacket
    remainingHits: 1
  - id: r2
    site: AfterIfRecv
    action: ReturnError
    remainingHits: 1
    errorKind: TransportRecvFailed
`)
	fs, err := ParseFaultScript(data)
	if err != nil {
		t.Fatalf("ParseFaultScript() error = %v", err)
	}
	if fs.Name != "drop-first-send" || len(fs.Rules) != 2 {
		t.Fatalf("ParseFaultScript() = %+v; want name and 2 rules", fs)
	}

	c := New()
	ids, err := c.ArmFaultScript(fs, "sess-1")
	if err != nil {
		t.Fatalf("ArmFaultScript() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ArmFaultScript() returned %d ids; want 2", len(ids))
	}

	payload := []byte{0x01, 0x02}
	c.CheckFault(BeforeIfSend, &payload, "sess-1")
	if payload != nil {
		t.Fatalf("payload = %v; want nil after scripted DropPacket", payload)
	}

	kind, hit := c.CheckFault(AfterIfRecv, nil, "sess-1")
	if !hit || kind != sscerr.KindTransportRecvFailed {
		t.Fatalf("CheckFault() = %v, %v; want KindTransportRecvFailed, true", kind, hit)
	}
}

func TestParseFaultScriptInvalidYAML(t *testing.T) {
	if _, err := ParseFaultScript([]byte("not: [valid")); err == nil {
		t.Fatalf("ParseFaultScript() error = nil; want error for malformed YAML")
	}
}

func TestArmFaultScriptUnknownSiteArmsNothing(t *testing.T) {
	fs := &FaultScript{
		Name: "bad",
		Rules: []FaultScriptRule{
			{ID: "ok", Site: "BeforeIfSend", Action: "DropPacket", RemainingHits: 1},
			{ID: "bad", Site: "NoSuchSite", Action: "DropPacket", RemainingHits: 1},
		},
	}
	c := New()
	if _, err := c.ArmFaultScript(fs, globalScope); err == nil {
		t.Fatalf("ArmFaultScript() error = nil; want error for unknown site")
	}
	payload := []byte{0x01}
	c.CheckFault(BeforeIfSend, &payload, globalScope)
	if payload == nil {
		t.Fatalf("payload = nil; want rule 'ok' left unarmed after a sibling rule failed to parse")
	}
}

func TestArmFaultScriptUnknownActionAndErrorKind(t *testing.T) {
	c := New()
	badAction := &FaultScript{Rules: []FaultScriptRule{{ID: "a", Site: "BeforeIfSend", Action: "Nope", RemainingHits: 1}}}
	if _, err := c.ArmFaultScript(badAction, globalScope); err == nil {
		t.Fatalf("ArmFaultScript() error = nil; want error for unknown action")
	}
	badKind := &FaultScript{Rules: []FaultScriptRule{{ID: "b", Site: "BeforeIfSend", Action: "ReturnError", RemainingHits: 1, ErrorKind: "Nope"}}}
	if _, err := c.ArmFaultScript(badKind, globalScope); err == nil {
		t.Fatalf("ArmFaultScript() error = nil; want error for unknown error kind")
	}
}

func TestArmFaultScriptReplacementHex(t *testing.T) {
	fs := &FaultScript{Rules: []FaultScriptRule{
		{ID: "r", Site: "AfterIfRecv", Action: "ReplacePayload", RemainingHits: 1, Replacement: "aabb"},
	}}
	c := New()
	if _, err := c.ArmFaultScript(fs, globalScope); err != nil {
		t.Fatalf("ArmFaultScript() error = %v", err)
	}
	payload := []byte{0x00, 0x00}
	c.CheckFault(AfterIfRecv, &payload, globalScope)
	if len(payload) != 2 || payload[0] != 0xaa || payload[1] != 0xbb {
		t.Fatalf("payload = % x; want aa bb", payload)
	}
}

func TestArmFaultScriptBadReplacementHex(t *testing.T) {
	fs := &FaultScript{Rules: []FaultScriptRule{
		{ID: "r", Site: "AfterIfRecv", Action: "ReplacePayload", RemainingHits: 1, Replacement: "zz"},
	}}
	c := New()
	if _, err := c.ArmFaultScript(fs, globalScope); err == nil {
		t.Fatalf("ArmFaultScript() error = nil; want error for malformed hex")
	}
}

func TestSscerrParseKindRoundTrip(t *testing.T) {
	k, ok := sscerr.ParseKind("AuthFailed")
	if !ok || k != sscerr.KindAuthFailed {
		t.Fatalf("ParseKind(%q) = %v, %v; want KindAuthFailed, true", "AuthFailed", k, ok)
	}
	if _, ok := sscerr.ParseKind("NotAKind"); ok {
		t.Fatalf("ParseKind() ok = true; want false for unknown name")
	}
}
