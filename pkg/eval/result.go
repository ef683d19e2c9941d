// Package eval implements the flat evaluation API: a single consumer-facing
// surface over pkg/core/*, returning a RawResult for every operation instead
// of a facade object per Security Provider. It plays the role the teacher's
// cmd/* wrappers and pkg/locking play, minus the persistent domain object.
package eval

import (
	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/core/stream"
)

// RawResult is returned by every Evaluator operation. Value carries the
// operation's decoded return value (its concrete type is documented on each
// method); Raw carries the method response's token list exactly as
// method.ParseResponse produced it, for callers that want to inspect the
// wire-level shape instead of (or in addition to) Value. Err is always an
// *sscerr.Error when non-nil, so ErrKind can classify it without a type
// assertion.
type RawResult struct {
	Op    string
	Value interface{}
	Raw   stream.List
	Err   error
}

// ErrKind returns the sscerr.Kind of r.Err, or sscerr.KindUnknown if r.Err
// is nil or not an *sscerr.Error.
func (r *RawResult) ErrKind() sscerr.Kind {
	return sscerr.KindOf(r.Err)
}

// OK reports whether the operation completed without error.
func (r *RawResult) OK() bool {
	return r.Err == nil
}

func ok(op string, value interface{}, raw stream.List) *RawResult {
	return &RawResult{Op: op, Value: value, Raw: raw}
}

func fail(op string, err error) *RawResult {
	return &RawResult{Op: op, Err: err}
}
