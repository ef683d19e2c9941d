package debugctx

import (
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
)

var actionNames = map[FaultAction]string{
	ReturnError:    "ReturnError",
	CorruptPayload: "CorruptPayload",
	DelayMs:        "DelayMs",
	DropPacket:     "DropPacket",
	ReplacePayload: "ReplacePayload",
	InvokeCallback: "InvokeCallback",
}

func parseAction(name string) (FaultAction, bool) {
	for a, n := range actionNames {
		if n == name {
			return a, true
		}
	}
	return 0, false
}

func parseSite(name string) (Site, bool) {
	for s, n := range siteNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// FaultScriptRule is the YAML-serializable shape of a FaultRule: every
// field that can be expressed as plain data, none that can't (a fault
// script has no way to name a Go callback, so InvokeCallback rules must
// still be armed with ArmFault directly).
type FaultScriptRule struct {
	ID            string `yaml:"id"`
	Site          string `yaml:"site"`
	Action        string `yaml:"action"`
	RemainingHits int    `yaml:"remainingHits"`
	ErrorKind     string `yaml:"errorKind,omitempty"`
	Offset        int    `yaml:"offset,omitempty"`
	Mask          uint8  `yaml:"mask,omitempty"`
	DelayMillis   int    `yaml:"delayMillis,omitempty"`
	Replacement   string `yaml:"replacement,omitempty"` // hex-encoded
}

// FaultScript is a named set of fault rules loaded from YAML, for scripting
// a negative-test scenario (e.g. "drop every third IF-SEND after
// StartSession") without recompiling the caller.
type FaultScript struct {
	Name  string            `yaml:"name"`
	Rules []FaultScriptRule `yaml:"rules"`
}

// ParseFaultScript decodes a YAML fault script.
func ParseFaultScript(data []byte) (*FaultScript, error) {
	var fs FaultScript
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, sscerr.Wrap(sscerr.KindInvalidArgument, "parse fault script", err)
	}
	return &fs, nil
}

func (r FaultScriptRule) toFaultRule() (FaultRule, error) {
	site, ok := parseSite(r.Site)
	if !ok {
		return FaultRule{}, sscerr.Newf(sscerr.KindInvalidArgument, "fault script: unknown site %q", r.Site)
	}
	action, ok := parseAction(r.Action)
	if !ok {
		return FaultRule{}, sscerr.Newf(sscerr.KindInvalidArgument, "fault script: unknown action %q", r.Action)
	}
	fr := FaultRule{
		ID:            r.ID,
		Site:          site,
		Action:        action,
		RemainingHits: r.RemainingHits,
		Offset:        r.Offset,
		Mask:          r.Mask,
		DelayMillis:   r.DelayMillis,
	}
	if r.ErrorKind != "" {
		kind, ok := sscerr.ParseKind(r.ErrorKind)
		if !ok {
			return FaultRule{}, sscerr.Newf(sscerr.KindInvalidArgument, "fault script: unknown error kind %q", r.ErrorKind)
		}
		fr.ErrorKind = kind
	}
	if r.Replacement != "" {
		rep, err := hex.DecodeString(r.Replacement)
		if err != nil {
			return FaultRule{}, sscerr.Wrap(sscerr.KindInvalidArgument, fmt.Sprintf("fault script: replacement for rule %q", r.ID), err)
		}
		fr.Replacement = rep
	}
	return fr, nil
}

// ArmFaultScript arms every rule in fs against scope, returning the
// resulting rule IDs in order. It stops and returns an error on the first
// rule that fails to translate (an unknown site/action/kind name, or
// unparseable hex), arming none of the rules in that case.
func (c *Context) ArmFaultScript(fs *FaultScript, scope string) ([]string, error) {
	rules := make([]FaultRule, 0, len(fs.Rules))
	for _, r := range fs.Rules {
		fr, err := r.toFaultRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, fr)
	}
	ids := make([]string, 0, len(rules))
	for _, fr := range rules {
		ids = append(ids, c.ArmFault(fr, scope))
	}
	return ids, nil
}
