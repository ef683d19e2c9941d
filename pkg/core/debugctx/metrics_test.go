package debugctx

import (
	"strings"
	"testing"
)

func TestDumpMetricsIncludesBumpedCounters(t *testing.T) {
	c := New()
	c.Bump("faults_fired", globalScope, 1)
	c.Bump("faults_fired", globalScope, 1)

	out, err := c.DumpMetrics()
	if err != nil {
		t.Fatalf("DumpMetrics() error = %v", err)
	}
	if !strings.Contains(out, "faults_fired") {
		t.Fatalf("DumpMetrics() = %q; want it to mention counter faults_fired", out)
	}
}
