package jdwp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session and framing layers. Transport and
// framing failures close the session; VM-level errors do not.
var (
	// ErrHandshakeFailed means the remote did not echo the handshake magic.
	ErrHandshakeFailed = errors.New("jdwp: handshake failed")

	// ErrBadFraming means an inbound packet header was inconsistent
	// (declared length smaller than the header itself).
	ErrBadFraming = errors.New("jdwp: bad framing")

	// ErrAlreadyAttached means Attach was called on a connected session.
	ErrAlreadyAttached = errors.New("jdwp: already attached")

	// ErrClosed means the session has been closed or lost its transport.
	ErrClosed = errors.New("jdwp: session closed")

	// ErrStrayReply means a reply arrived whose id matches no
	// outstanding request. The stream can no longer be trusted.
	ErrStrayReply = errors.New("jdwp: stray reply")

	// ErrUnsupportedEventKind means a composite event carried an event
	// kind this client cannot decode; the rest of the packet is
	// abandoned because its length cannot be known.
	ErrUnsupportedEventKind = errors.New("jdwp: unsupported event kind")

	// ErrDeadlineExceeded means the session-level deadline expired
	// while waiting for the VM.
	ErrDeadlineExceeded = errors.New("jdwp: session deadline exceeded")

	// ErrInterrupted means a blocking wait was cut short because an
	// interrupt-requested VM.Suspend was issued and acknowledged. The
	// session stays open; the VM is suspended.
	ErrInterrupted = errors.New("jdwp: interrupted")
)

// VMError is a nonzero error code carried by a JDWP reply packet. The
// session stays usable after a VMError; only the failed call is
// affected.
type VMError struct {
	Code uint16
}

// Subset of JDWP error codes this client runs into in practice.
var vmErrorNames = map[uint16]string{
	10:  "INVALID_THREAD",
	13:  "THREAD_NOT_SUSPENDED",
	20:  "INVALID_OBJECT",
	21:  "INVALID_CLASS",
	23:  "INVALID_METHODID",
	24:  "INVALID_LOCATION",
	102: "INVALID_EVENT_TYPE",
	112: "VM_DEAD",
	504: "INVALID_LENGTH",
	512: "INVALID_COUNT",
}

func (e *VMError) Error() string {
	if name, ok := vmErrorNames[e.Code]; ok {
		return fmt.Sprintf("jdwp: vm error %d (%s)", e.Code, name)
	}
	return fmt.Sprintf("jdwp: vm error %d", e.Code)
}

// AsVMError unwraps err into a *VMError if it carries one.
func AsVMError(err error) (*VMError, bool) {
	var ve *VMError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
