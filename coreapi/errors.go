package coreapi

import "fmt"

// Kind enumerates the error taxonomy every Core failure collapses into.
// These are kinds, not Go types, matching the library's propagation
// policy of never throwing across thread boundaries.
type Kind string

const (
	// KindNotOpen reports a descriptor ID missing or already closed.
	KindNotOpen Kind = "NotOpen"
	// KindNotConnected reports a socket ID missing.
	KindNotConnected Kind = "NotConnected"
	// KindPlatformIO reports a kernel-level failure; Code carries the
	// platform's symbolic errno constant.
	KindPlatformIO Kind = "PlatformIO"
	// KindParseError reports a malformed URI, unknown handler, or
	// invalid numeric query value.
	KindParseError Kind = "ParseError"
	// KindNotSupported reports a platform-specific feature missing on
	// the current platform.
	KindNotSupported Kind = "NotSupported"
	// KindCancelled reports an operation aborted by caller or timer.
	KindCancelled Kind = "Cancelled"
	// KindInternal reports an invariant violation with no recovery.
	KindInternal Kind = "Internal"
)

// Error is the structured error every Service reports through a
// Result.Err. Code, when set, is the platform's symbolic errno name
// (e.g. "ENOENT"); Message is its human text.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// ID optionally names the resource or client the error concerns.
	ID ID
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an Error of the given kind with no platform code.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NotOpenError reports a missing or already-closed descriptor.
func NotOpenError(id ID) *Error {
	return &Error{Kind: KindNotOpen, Message: "descriptor is not open", ID: id}
}

// NotConnectedError reports an unknown socket/client ID.
func NotConnectedError(id ID) *Error {
	return &Error{Kind: KindNotConnected, Message: "not connected", ID: id}
}

