package debugctx

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
)

// DumpMetrics renders the context's counters in Prometheus text exposition
// format, the way cmd/tcgdiskstat's metric output does for its own gauges.
func (c *Context) DumpMetrics() (string, error) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c.Registry()); err != nil {
		return "", sscerr.Wrap(sscerr.KindInternalError, "register debug counters", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		return "", sscerr.Wrap(sscerr.KindInternalError, "gather debug counters", err)
	}
	var sb strings.Builder
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&sb, mf); err != nil {
			return "", sscerr.Wrap(sscerr.KindInternalError, "encode debug counters", err)
		}
	}
	return sb.String(), nil
}
