// Package debugctx implements the process-wide debug singleton: config
// overrides, fault injection, workaround flags, counters and a trace log,
// all partitioned by session scope. Every method takes the read or write
// lock for its whole duration, including the body of a fired fault action,
// so a blocking DelayMs action serializes other callers by design.
package debugctx

import (
	"math/rand"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
)

// Site identifies one of the instrumentation firing points threaded through
// the codec, packet stack, method engine and session layers.
type Site int

const (
	BeforeIfSend Site = iota
	AfterIfSend
	BeforeIfRecv
	AfterIfRecv
	BeforePacketBuild
	AfterPacketParse
	BeforeTokenEncode
	AfterTokenDecode
	BeforeStartSession
	AfterStartSession
	BeforeSendMethod
	AfterRecvMethod
	BeforeCloseSession
	BeforeMethodBuild
	AfterMethodParse
	BeforeDiscovery
	AfterDiscovery
	BeforeOpalOp
	BeforeEnterpriseOp
	BeforePyriteOp
)

var siteNames = map[Site]string{
	BeforeIfSend:        "BeforeIfSend",
	AfterIfSend:         "AfterIfSend",
	BeforeIfRecv:        "BeforeIfRecv",
	AfterIfRecv:         "AfterIfRecv",
	BeforePacketBuild:   "BeforePacketBuild",
	AfterPacketParse:    "AfterPacketParse",
	BeforeTokenEncode:   "BeforeTokenEncode",
	AfterTokenDecode:    "AfterTokenDecode",
	BeforeStartSession:  "BeforeStartSession",
	AfterStartSession:   "AfterStartSession",
	BeforeSendMethod:    "BeforeSendMethod",
	AfterRecvMethod:     "AfterRecvMethod",
	BeforeCloseSession:  "BeforeCloseSession",
	BeforeMethodBuild:   "BeforeMethodBuild",
	AfterMethodParse:    "AfterMethodParse",
	BeforeDiscovery:     "BeforeDiscovery",
	AfterDiscovery:      "AfterDiscovery",
	BeforeOpalOp:        "BeforeOpalOp",
	BeforeEnterpriseOp:  "BeforeEnterpriseOp",
	BeforePyriteOp:      "BeforePyriteOp",
}

func (s Site) String() string {
	if n, ok := siteNames[s]; ok {
		return n
	}
	return "<Unknown>"
}

// FaultAction is the behavior a FaultRule executes when it fires.
type FaultAction int

const (
	ReturnError FaultAction = iota
	CorruptPayload
	DelayMs
	DropPacket
	ReplacePayload
	InvokeCallback
)

// FaultRule describes one armed fault. A negative RemainingHits means
// unlimited; a rule whose RemainingHits is zero after it has fired is spent.
type FaultRule struct {
	ID            string
	Site          Site
	Action        FaultAction
	RemainingHits int
	TotalHits     int

	// ReturnError
	ErrorKind sscerr.Kind
	// CorruptPayload: Offset < 0 selects a uniformly random offset inside
	// the payload each time the rule fires.
	Offset int
	Mask   byte
	// DelayMs
	DelayMillis int
	// ReplacePayload
	Replacement []byte
	// InvokeCallback
	Callback func(payload *[]byte) error
}

func (r *FaultRule) spent() bool {
	return r.RemainingHits == 0 && r.TotalHits > 0
}

// TraceEvent is one entry in a scope's append-only trace log.
type TraceEvent struct {
	ID     string
	Scope  string
	Site   Site
	Detail string
}

const globalScope = ""

type scopeState struct {
	config      map[string]interface{}
	faults      []*FaultRule
	workarounds map[string]bool
	counters    map[string]uint64
	trace       []TraceEvent
}

func newScopeState() *scopeState {
	return &scopeState{
		config:      map[string]interface{}{},
		workarounds: map[string]bool{},
		counters:    map[string]uint64{},
	}
}

// Context is the debug singleton. Use Default() to reach the process-wide
// instance; tests may construct their own with New() for isolation.
type Context struct {
	mu       sync.RWMutex
	scopes   map[string]*scopeState
	observer []func(TraceEvent)
	metrics  *prometheus.CounterVec
}

// New returns a fresh, empty debug context.
func New() *Context {
	return &Context{
		scopes: map[string]*scopeState{globalScope: newScopeState()},
		metrics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcgcore",
			Subsystem: "debugctx",
			Name:      "counter_total",
			Help:      "Named debug counters bumped by library instrumentation.",
		}, []string{"scope", "name"}),
	}
}

var (
	defaultMu  sync.Mutex
	defaultCtx *Context
)

// Default returns the process-wide debug context, creating it on first use.
func Default() *Context {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCtx == nil {
		defaultCtx = New()
	}
	return defaultCtx
}

// Registry exposes the context's counters for scraping by a metrics
// endpoint, mirroring the cmd/tcgdiskstat-style Prometheus wiring.
func (c *Context) Registry() *prometheus.CounterVec {
	return c.metrics
}

func (c *Context) scope(name string, create bool) *scopeState {
	if s, ok := c.scopes[name]; ok {
		return s
	}
	if !create {
		return nil
	}
	s := newScopeState()
	c.scopes[name] = s
	return s
}

// OpenScope records a new session-scoped partition and returns a Closer
// that drops its config, faults, workarounds, counters and trace when
// called; intended to be deferred immediately after a session starts.
func (c *Context) OpenScope(scope string) func() {
	c.mu.Lock()
	c.scope(scope, true)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.scopes, scope)
		c.mu.Unlock()
	}
}

// Set overrides a config key for scope ("" for global).
func (c *Context) Set(key, scope string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope(scope, true).config[key] = value
}

// Get resolves a config key: session scope, then global, then not found.
func (c *Context) Get(key, scope string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if scope != globalScope {
		if s := c.scope(scope, false); s != nil {
			if v, ok := s.config[key]; ok {
				return v, true
			}
		}
	}
	if v, ok := c.scope(globalScope, true).config[key]; ok {
		return v, true
	}
	return nil, false
}

// ArmFault registers rule under scope, minting an ID via xid if none was
// supplied, and returns the final ID.
func (c *Context) ArmFault(rule FaultRule, scope string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rule.ID == "" {
		rule.ID = xid.New().String()
	}
	r := rule
	s := c.scope(scope, true)
	s.faults = append(s.faults, &r)
	return r.ID
}

// CheckFault evaluates every non-spent rule matching site, first in scope
// then globally, executing each rule's action against payload in turn. It
// returns the first ReturnError kind fired, if any.
func (c *Context) CheckFault(site Site, payload *[]byte, scope string) (sscerr.Kind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scopeNames := []string{scope, globalScope}
	if scope == globalScope {
		scopeNames = []string{globalScope}
	}

	var errKind sscerr.Kind
	var didErr bool
	for _, scopeName := range scopeNames {
		s := c.scope(scopeName, false)
		if s == nil {
			continue
		}
		kept := s.faults[:0]
		for _, r := range s.faults {
			if r.spent() || r.Site != site {
				kept = append(kept, r)
				continue
			}
			c.fire(r, payload, scopeName)
			if r.Action == ReturnError && !didErr {
				errKind = r.ErrorKind
				didErr = true
			}
			if !r.spent() {
				kept = append(kept, r)
			}
		}
		s.faults = kept
	}
	return errKind, didErr
}

func (c *Context) fire(r *FaultRule, payload *[]byte, scope string) {
	if r.RemainingHits > 0 {
		r.RemainingHits--
	}
	r.TotalHits++

	switch r.Action {
	case CorruptPayload:
		if payload != nil && len(*payload) > 0 {
			off := r.Offset
			if off < 0 {
				off = rand.Intn(len(*payload))
			}
			if off >= 0 && off < len(*payload) {
				(*payload)[off] ^= r.Mask
			}
		}
	case DelayMs:
		time.Sleep(time.Duration(r.DelayMillis) * time.Millisecond)
	case DropPacket:
		if payload != nil {
			*payload = nil
		}
	case ReplacePayload:
		if payload != nil {
			*payload = append([]byte(nil), r.Replacement...)
		}
	case InvokeCallback:
		if r.Callback != nil && payload != nil {
			if err := r.Callback(payload); err != nil {
				logrus.WithError(err).WithField("fault", r.ID).Warn("debugctx: fault callback returned an error")
			}
		}
	}

	c.recordLocked(TraceEvent{
		ID:     xid.New().String(),
		Scope:  scope,
		Site:   r.Site,
		Detail: spew.Sprintf("fault %s action=%d hits=%d", r.ID, r.Action, r.TotalHits),
	})
}

// WorkaroundActive reports whether the named boolean flag is set for scope,
// falling back to global.
func (c *Context) WorkaroundActive(name, scope string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if scope != globalScope {
		if s := c.scope(scope, false); s != nil {
			if v, ok := s.workarounds[name]; ok {
				return v
			}
		}
	}
	return c.scope(globalScope, true).workarounds[name]
}

// SetWorkaround toggles a workaround flag for scope.
func (c *Context) SetWorkaround(name, scope string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope(scope, true).workarounds[name] = active
}

// Known workaround flag names, per the library's compatibility notes.
const (
	WorkaroundRetryOnSpBusy         = "retry-on-sp-busy"
	WorkaroundExtendTimeout         = "extend-timeout"
	WorkaroundIgnoreEndOfSession    = "ignore-end-of-session"
	WorkaroundRelaxTokenValidation  = "relax-token-validation"
	WorkaroundForceComIDReset       = "force-comid-reset"
	WorkaroundBypassLockingCheck    = "bypass-locking-check"
	WorkaroundOverrideMaxComPacket  = "override-max-compacket"
	WorkaroundPadSmallPayloads      = "pad-small-payloads"
	WorkaroundSkipSyncSessionCheck  = "skip-sync-session-check"
	WorkaroundForceProtocolID       = "force-protocol-id"
	WorkaroundTolerantProperties    = "tolerant-properties"
)

// Bump increments the named counter for scope by delta.
func (c *Context) Bump(name, scope string, delta uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope(scope, true).counters[name] += delta
	c.metrics.WithLabelValues(scope, name).Add(float64(delta))
}

// Counter reads the current value of a named counter for scope.
func (c *Context) Counter(name, scope string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s := c.scope(scope, false); s != nil {
		return s.counters[name]
	}
	return 0
}

// Record appends an event to scope's trace log and invokes observers.
func (c *Context) Record(scope string, site Site, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(TraceEvent{ID: xid.New().String(), Scope: scope, Site: site, Detail: detail})
}

func (c *Context) recordLocked(ev TraceEvent) {
	s := c.scope(ev.Scope, true)
	s.trace = append(s.trace, ev)
	for _, obs := range c.observer {
		obs(ev)
	}
}

// Trace returns a snapshot of scope's trace log.
func (c *Context) Trace(scope string) []TraceEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.scope(scope, false)
	if s == nil {
		return nil
	}
	out := make([]TraceEvent, len(s.trace))
	copy(out, s.trace)
	return out
}

// ClearTrace empties scope's trace log.
func (c *Context) ClearTrace(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.scope(scope, false); s != nil {
		s.trace = nil
	}
}

// Observe registers a callback invoked synchronously for every recorded
// trace event, across all scopes.
func (c *Context) Observe(fn func(TraceEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = append(c.observer, fn)
}
