package debugctx

import (
	"testing"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
)

func TestConfigLookupOrderSessionThenGlobal(t *testing.T) {
	c := New()
	c.Set("retries", globalScope, 3)
	if v, ok := c.Get("retries", "sess-1"); !ok || v != 3 {
		t.Fatalf("Get() = %v, %v; want 3, true (fallback to global)", v, ok)
	}
	c.Set("retries", "sess-1", 7)
	if v, ok := c.Get("retries", "sess-1"); !ok || v != 7 {
		t.Fatalf("Get() = %v, %v; want 7, true (session overrides global)", v, ok)
	}
	if v, ok := c.Get("retries", "sess-2"); !ok || v != 3 {
		t.Fatalf("Get() for unrelated scope = %v, %v; want 3, true", v, ok)
	}
}

func TestArmFaultReturnErrorFiresOnce(t *testing.T) {
	c := New()
	c.ArmFault(FaultRule{
		Site:          BeforeIfSend,
		Action:        ReturnError,
		RemainingHits: 1,
		ErrorKind:     sscerr.KindTransportSendFailed,
	}, "sess-1")

	kind, hit := c.CheckFault(BeforeIfSend, nil, "sess-1")
	if !hit || kind != sscerr.KindTransportSendFailed {
		t.Fatalf("CheckFault() = %v, %v; want KindTransportSendFailed, true", kind, hit)
	}

	_, hit = c.CheckFault(BeforeIfSend, nil, "sess-1")
	if hit {
		t.Fatalf("CheckFault() fired again after RemainingHits exhausted")
	}
}

func TestCheckFaultCorruptPayload(t *testing.T) {
	c := New()
	c.ArmFault(FaultRule{
		Site:          AfterIfRecv,
		Action:        CorruptPayload,
		RemainingHits: 1,
		Offset:        0,
		Mask:          0xFF,
	}, globalScope)

	payload := []byte{0x00, 0x01}
	_, hit := c.CheckFault(AfterIfRecv, &payload, "any-session")
	if hit {
		t.Fatalf("CheckFault() reported an error for a non-ReturnError action")
	}
	if payload[0] != 0xFF {
		t.Fatalf("payload = % x; want first byte flipped to 0xff", payload)
	}
}

func TestCheckFaultDropPacket(t *testing.T) {
	c := New()
	c.ArmFault(FaultRule{Site: BeforeIfSend, Action: DropPacket, RemainingHits: 1}, globalScope)
	payload := []byte{0x01, 0x02, 0x03}
	c.CheckFault(BeforeIfSend, &payload, globalScope)
	if payload != nil {
		t.Fatalf("payload = %v; want nil after DropPacket", payload)
	}
}

func TestWorkaroundActiveFallsBackToGlobal(t *testing.T) {
	c := New()
	if c.WorkaroundActive(WorkaroundRetryOnSpBusy, "sess-1") {
		t.Fatalf("WorkaroundActive() = true before any flag set")
	}
	c.SetWorkaround(WorkaroundRetryOnSpBusy, globalScope, true)
	if !c.WorkaroundActive(WorkaroundRetryOnSpBusy, "sess-1") {
		t.Fatalf("WorkaroundActive() = false; want true via global fallback")
	}
}

func TestCounterBumpAndRead(t *testing.T) {
	c := New()
	c.Bump("packets_sent", "sess-1", 1)
	c.Bump("packets_sent", "sess-1", 2)
	if got := c.Counter("packets_sent", "sess-1"); got != 3 {
		t.Errorf("Counter() = %d; want 3", got)
	}
	if got := c.Counter("packets_sent", "sess-2"); got != 0 {
		t.Errorf("Counter() for untouched scope = %d; want 0", got)
	}
}

func TestTraceRecordObserveAndClear(t *testing.T) {
	c := New()
	var observed []TraceEvent
	c.Observe(func(ev TraceEvent) { observed = append(observed, ev) })

	c.Record("sess-1", BeforeStartSession, "starting")
	c.Record("sess-1", AfterStartSession, "started")

	if len(observed) != 2 {
		t.Fatalf("observed %d events; want 2", len(observed))
	}
	if got := c.Trace("sess-1"); len(got) != 2 {
		t.Fatalf("Trace() = %d events; want 2", len(got))
	}
	c.ClearTrace("sess-1")
	if got := c.Trace("sess-1"); len(got) != 0 {
		t.Fatalf("Trace() after ClearTrace = %d events; want 0", len(got))
	}
}

func TestOpenScopeDropsPartitionOnClose(t *testing.T) {
	c := New()
	closeScope := c.OpenScope("sess-1")
	c.Set("k", "sess-1", "v")
	c.Bump("n", "sess-1", 1)

	closeScope()

	if _, ok := c.Get("k", "sess-1"); ok {
		t.Errorf("config survived OpenScope close")
	}
	if got := c.Counter("n", "sess-1"); got != 0 {
		t.Errorf("Counter() after close = %d; want 0 (scope dropped)", got)
	}
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatalf("Default() returned distinct instances across calls")
	}
}
