// Package sscerr implements the layered error taxonomy described for the
// TCG Storage SSC driver: every failure is a tagged Kind grouped by the
// layer that raised it, wrapped in an Error that still carries the
// underlying cause for diagnosis.
package sscerr

import "fmt"

// Kind enumerates failure kinds grouped by layer, per spec §7.
type Kind int

const (
	KindUnknown Kind = iota

	// Transport layer
	KindTransportNotAvailable
	KindTransportOpenFailed
	KindTransportSendFailed
	KindTransportRecvFailed
	KindTransportTimeout
	KindTransportInvalidDevice

	// Protocol / codec layer
	KindInvalidToken
	KindInvalidPacket
	KindInvalidComPacket
	KindBufferTooSmall
	KindUnexpectedToken
	KindMalformedResponse

	// Session layer
	KindSessionNotStarted
	KindSessionAlreadyActive
	KindSessionClosed
	KindSessionSyncFailed
	KindNoSessionAvailable

	// Method layer
	KindMethodNotAuthorized
	KindMethodSpBusy
	KindMethodSpFailed
	KindMethodSpDisabled
	KindMethodSpFrozen
	KindMethodInvalidParam
	KindMethodTPerMalfunction
	KindMethodFailed

	// Discovery layer
	KindDiscoveryFailed
	KindDiscoveryInvalidData
	KindDiscoveryUnsupportedSsc
	KindDiscoveryFeatureNotFound

	// Auth layer
	KindAuthFailed
	KindAuthLockedOut
	KindInvalidCredential

	// General
	KindNotImplemented
	KindInvalidArgument
	KindInternalError
)

var kindNames = map[Kind]string{
	KindUnknown:                  "Unknown",
	KindTransportNotAvailable:    "TransportNotAvailable",
	KindTransportOpenFailed:      "TransportOpenFailed",
	KindTransportSendFailed:      "TransportSendFailed",
	KindTransportRecvFailed:      "TransportRecvFailed",
	KindTransportTimeout:         "TransportTimeout",
	KindTransportInvalidDevice:   "TransportInvalidDevice",
	KindInvalidToken:             "InvalidToken",
	KindInvalidPacket:            "InvalidPacket",
	KindInvalidComPacket:         "InvalidComPacket",
	KindBufferTooSmall:           "BufferTooSmall",
	KindUnexpectedToken:          "UnexpectedToken",
	KindMalformedResponse:        "MalformedResponse",
	KindSessionNotStarted:        "SessionNotStarted",
	KindSessionAlreadyActive:     "SessionAlreadyActive",
	KindSessionClosed:            "SessionClosed",
	KindSessionSyncFailed:        "SessionSyncFailed",
	KindNoSessionAvailable:       "NoSessionAvailable",
	KindMethodNotAuthorized:      "MethodNotAuthorized",
	KindMethodSpBusy:             "MethodSpBusy",
	KindMethodSpFailed:           "MethodSpFailed",
	KindMethodSpDisabled:         "MethodSpDisabled",
	KindMethodSpFrozen:           "MethodSpFrozen",
	KindMethodInvalidParam:       "MethodInvalidParam",
	KindMethodTPerMalfunction:    "MethodTPerMalfunction",
	KindMethodFailed:             "MethodFailed",
	KindDiscoveryFailed:          "DiscoveryFailed",
	KindDiscoveryInvalidData:     "DiscoveryInvalidData",
	KindDiscoveryUnsupportedSsc:  "DiscoveryUnsupportedSsc",
	KindDiscoveryFeatureNotFound: "DiscoveryFeatureNotFound",
	KindAuthFailed:               "AuthFailed",
	KindAuthLockedOut:            "AuthLockedOut",
	KindInvalidCredential:        "InvalidCredential",
	KindNotImplemented:           "NotImplemented",
	KindInvalidArgument:          "InvalidArgument",
	KindInternalError:            "InternalError",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Kind(?)"
}

var kindByName map[string]Kind

func init() {
	kindByName = make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		kindByName[n] = k
	}
}

// ParseKind looks up a Kind by its String() name, for config/fixture
// formats (e.g. YAML fault scripts) that name a Kind rather than encoding
// its integer value.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// Error is the concrete error type returned from every core operation. No
// exceptions/panics escape the core; every fallible operation returns
// (..., error) where a non-nil error is always an *Error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error of the given kind with a message.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// Newf creates an *Error of the given kind with a formatted message.
func Newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind that wraps cause.
func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return KindUnknown
	}
	return e.Kind
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
