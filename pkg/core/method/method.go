// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package method implements TCG Storage Core Method calling: building a
// call's token stream, and parsing back the result list a TPer returns for
// it.
package method

import (
	"bytes"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/core/stream"
	"github.com/sedctl/tcgcore/pkg/core/uid"
)

type MethodFlag int

const (
	MethodFlagOptionalAsName MethodFlag = 1
)

var (
	ErrMalformedMethodResponse    = sscerr.New(sscerr.KindMalformedResponse, "method response was malformed")
	ErrEmptyMethodResponse        = sscerr.New(sscerr.KindMalformedResponse, "method response was empty")
	ErrMethodListUnbalanced       = sscerr.New(sscerr.KindInvalidToken, "method argument list is unbalanced")
	ErrTPerClosedSession          = sscerr.New(sscerr.KindSessionClosed, "TPer forcefully closed our session")
	ErrReceivedUnexpectedResponse = sscerr.New(sscerr.KindMalformedResponse, "method response was unexpected")
	ErrMethodTimeout              = sscerr.New(sscerr.KindTransportTimeout, "method call timed out waiting for a response")
)

// Status is the status code a TPer returns in the trailing status list of
// every method response. See Core Spec Table 243, "Method Status Codes".
type Status uint

const (
	StatusSuccess                  Status = 0x00
	StatusNotAuthorized             Status = 0x01
	StatusObsolete                  Status = 0x02
	StatusSpBusy                    Status = 0x03
	StatusSpFailed                  Status = 0x04
	StatusSpDisabled                Status = 0x05
	StatusSpFrozen                  Status = 0x06
	StatusNoSessionsAvailable       Status = 0x07
	StatusUniquenessConflict        Status = 0x08
	StatusInsufficientSpace         Status = 0x09
	StatusInsufficientRows          Status = 0x0A
	StatusInvalidCommand            Status = 0x0B
	StatusInvalidParameter          Status = 0x0C
	StatusInvalidReference          Status = 0x0D
	StatusInvalidSecmsgProperties   Status = 0x0E
	StatusTPerMalfunction           Status = 0x0F
	StatusTransactionFailure        Status = 0x10
	StatusResponseOverflow          Status = 0x11
	StatusAuthorityLockedOut        Status = 0x12
	StatusFail                      Status = 0x3F
)

var statusMessage = map[Status]string{
	StatusSuccess:                "SUCCESS",
	StatusNotAuthorized:          "NOT_AUTHORIZED",
	StatusObsolete:               "OBSOLETE",
	StatusSpBusy:                 "SP_BUSY",
	StatusSpFailed:               "SP_FAILED",
	StatusSpDisabled:             "SP_DISABLED",
	StatusSpFrozen:               "SP_FROZEN",
	StatusNoSessionsAvailable:    "NO_SESSIONS_AVAILABLE",
	StatusUniquenessConflict:     "UNIQUENESS_CONFLICT",
	StatusInsufficientSpace:      "INSUFFICIENT_SPACE",
	StatusInsufficientRows:       "INSUFFICIENT_ROWS",
	StatusInvalidCommand:        "INVALID_COMMAND",
	StatusInvalidParameter:      "INVALID_PARAMETER",
	StatusInvalidReference:      "INVALID_REFERENCE",
	StatusInvalidSecmsgProperties: "INVALID_SECMSG_PROPERTIES",
	StatusTPerMalfunction:       "TPER_MALFUNCTION",
	StatusTransactionFailure:    "TRANSACTION_FAILURE",
	StatusResponseOverflow:      "RESPONSE_OVERFLOW",
	StatusAuthorityLockedOut:    "AUTHORITY_LOCKED_OUT",
	StatusFail:                  "FAIL",
}

// statusKind maps a method status code to the sscerr.Kind a caller should
// see. Codes with no specific Kind fall back to KindMethodFailed.
var statusKind = map[Status]sscerr.Kind{
	StatusNotAuthorized:       sscerr.KindMethodNotAuthorized,
	StatusSpBusy:              sscerr.KindMethodSpBusy,
	StatusSpFailed:            sscerr.KindMethodSpFailed,
	StatusSpDisabled:          sscerr.KindMethodSpDisabled,
	StatusSpFrozen:            sscerr.KindMethodSpFrozen,
	StatusInvalidParameter:    sscerr.KindMethodInvalidParam,
	StatusInvalidCommand:      sscerr.KindMethodInvalidParam,
	StatusInvalidReference:    sscerr.KindMethodInvalidParam,
	StatusTPerMalfunction:     sscerr.KindMethodTPerMalfunction,
	StatusAuthorityLockedOut:  sscerr.KindAuthLockedOut,
	StatusNoSessionsAvailable: sscerr.KindNoSessionAvailable,
}

// String renders a method status the way the spec names it, e.g. "SP_BUSY".
func (s Status) String() string {
	if n, ok := statusMessage[s]; ok {
		return n
	}
	return "UNKNOWN_STATUS"
}

// Err converts a non-success status into an *sscerr.Error, or nil for
// StatusSuccess.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	k, ok := statusKind[s]
	if !ok {
		k = sscerr.KindMethodFailed
	}
	return sscerr.Newf(k, "method returned status %s (0x%02x)", s, uint(s))
}

// Pre-built errors for the statuses callers most often branch on directly.
var (
	ErrMethodStatusNotAuthorized       = StatusNotAuthorized.Err()
	ErrMethodStatusSPBusy              = StatusSpBusy.Err()
	ErrMethodStatusNoSessionsAvailable = StatusNoSessionsAvailable.Err()
	ErrMethodStatusInvalidParameter    = StatusInvalidParameter.Err()
	ErrMethodStatusAuthorityLockedOut  = StatusAuthorityLockedOut.Err()
)

type Call interface {
	MarshalBinary() ([]byte, error)
	IsEOS() bool
}

type MethodCall struct {
	buf bytes.Buffer
	// Used to verify detect programming errors
	depth int
	flags MethodFlag
}

// Prepare a new method call
func NewMethodCall(iid uid.InvokingID, mid uid.MethodID, flags MethodFlag) *MethodCall {
	m := &MethodCall{bytes.Buffer{}, 0, flags}
	m.buf.Write(stream.Token(stream.Call))
	m.Bytes(iid[:])
	m.Bytes(mid[:])
	// Start argument list
	m.StartList()
	return m
}

// Copy the current state of a method call into a new independent copy
func (m *MethodCall) Clone() *MethodCall {
	mn := &MethodCall{bytes.Buffer{}, m.depth, m.flags}
	mn.buf.Write(m.buf.Bytes())
	return mn
}

func (m *MethodCall) IsEOS() bool {
	return false
}

func (m *MethodCall) StartList() {
	m.depth++
	m.buf.Write(stream.Token(stream.StartList))
}

func (m *MethodCall) EndList() {
	m.depth--
	m.buf.Write(stream.Token(stream.EndList))
}

// Start an optional parameters group
//
// From "3.2.1.2 Method Signature Pseudo-code"
// > Optional parameters are submitted to the method invocation as Named value pairs.
// > The Name portion of the Named value pair SHALL be a uinteger. Starting at zero,
// > these uinteger values are assigned based on the ordering of the optional parameters
// > as defined in this document.
// The above is true for Core 2.0 things like OpalV2 but not for e.g. Enterprise.
// Thus, we provide a way for the code to switch between using uint or string.
func (m *MethodCall) StartOptionalParameter(id uint, name string) {
	m.depth++
	m.buf.Write(stream.Token(stream.StartName))
	if m.flags&MethodFlagOptionalAsName > 0 {
		m.buf.Write(stream.Bytes([]byte(name)))
	} else {
		m.buf.Write(stream.UInt(id))
	}
}

// Add a named value (uint) pair
func (m *MethodCall) NamedUInt(name string, val uint) {
	m.buf.Write(stream.Token(stream.StartName))
	m.buf.Write(stream.Bytes([]byte(name)))
	m.buf.Write(stream.UInt(val))
	m.buf.Write(stream.Token(stream.EndName))
}

// Add a named value (bool) pair
func (m *MethodCall) NamedBool(name string, val bool) {
	if val {
		m.NamedUInt(name, 1)
	} else {
		m.NamedUInt(name, 0)
	}
}

// Token adds a specific token to the MethodCall buffer.
func (m *MethodCall) Token(t stream.TokenType) {
	m.buf.Write(stream.Token(t))
}

// EndOptionalParameter ends the current optional parameter group
func (m *MethodCall) EndOptionalParameter() {
	m.depth--
	m.buf.Write(stream.Token(stream.EndName))
}

// Bytes adds a bytes atom
func (m *MethodCall) Bytes(b []byte) {
	m.buf.Write(stream.Bytes(b))
}

// UInt adds an uint atom
func (m *MethodCall) UInt(v uint) {
	m.buf.Write(stream.UInt(v))
}

// Int adds a signed-integer atom.
func (m *MethodCall) Int(v int) {
	m.buf.Write(stream.Int(v))
}

// Bool adds a bool atom (as uint)
func (m *MethodCall) Bool(v bool) {
	if v {
		m.UInt(1)
	} else {
		m.UInt(0)
	}
}

func (m *MethodCall) RawByte(b []byte) {
	m.buf.Write(b)
}

// Marshal the complete method call to the data stream representation
func (m *MethodCall) MarshalBinary() ([]byte, error) {
	mn := *m
	mn.EndList() // End argument list
	// Finish method call
	mn.buf.Write(stream.Token(stream.EndOfData))
	mn.StartList() // Status code list
	mn.buf.Write(stream.UInt(uint(StatusSuccess)))
	mn.buf.Write(stream.UInt(0)) // Reserved
	mn.buf.Write(stream.UInt(0)) // Reserved
	mn.EndList()
	if mn.depth != 0 {
		return nil, ErrMethodListUnbalanced
	}
	return mn.buf.Bytes(), nil
}

type EOSMethodCall struct {
}

func (m *EOSMethodCall) MarshalBinary() ([]byte, error) {
	return stream.Token(stream.EndOfSession), nil
}

func (m *EOSMethodCall) IsEOS() bool {
	return true
}

// ParseResponse decodes a raw method response buffer and returns the
// method's result list (the Call/InvokingID/MethodID/params prefix stripped
// of its trailing EndOfData token and status list), after translating a
// non-success status code into an error.
//
// A response matching the Session Manager's CloseSession notification for
// hsn/tsn is reported as ErrTPerClosedSession rather than decoded normally.
func ParseResponse(resp []byte, hsn, tsn int) (stream.List, error) {
	reply, err := stream.Decode(resp)
	if err != nil {
		return nil, err
	}
	if len(reply) < 2 {
		return nil, ErrEmptyMethodResponse
	}

	if len(reply) >= 4 {
		tok, ok1 := reply[0].(stream.TokenType)
		iid, ok2 := reply[1].([]byte)
		mid, ok3 := reply[2].([]byte)
		params, ok4 := reply[3].(stream.List)
		if ok1 && ok2 && ok3 && ok4 &&
			tok == stream.Call &&
			bytes.Equal(iid, uid.InvokeIDSMU[:]) &&
			bytes.Equal(mid, uid.MethodIDSMCloseSession[:]) {
			rhsn, ok1 := params[0].(uint)
			rtsn, ok2 := params[1].(uint)
			if ok1 && ok2 && int(rhsn) == hsn && int(rtsn) == tsn {
				return nil, ErrTPerClosedSession
			}
			return nil, ErrReceivedUnexpectedResponse
		}
	}

	// While the normal method result format is known, the Session Manager
	// methods use a different format. What is in common however is that
	// the last element should be the status code list.
	tok, ok1 := reply[len(reply)-2].(stream.TokenType)
	status, ok2 := reply[len(reply)-1].(stream.List)
	if !ok1 || !ok2 || tok != stream.EndOfData {
		return nil, ErrMalformedMethodResponse
	}

	sc, ok := status[0].(uint)
	if !ok {
		return nil, ErrMalformedMethodResponse
	}
	if err := Status(sc).Err(); err != nil {
		return nil, err
	}

	return reply[:len(reply)-2], nil
}
