package device

import (
	"errors"
	"fmt"
)

// Capability flags a device may or may not support.
type Capability int

const (
	CapPreview         Capability = iota // live preview stream
	CapPhysicalTrigger                   // native shutter button usable as trigger source
	CapVideo                             // video clips in addition to stills
)

// Sentinel errors returned by CaptureAsync.
var (
	// ErrBusy means the device cannot accept a capture request right now.
	// Callers are expected to retry with backoff.
	ErrBusy = errors.New("device busy")

	// ErrDisconnected means the device is gone. Fatal to the session.
	ErrDisconnected = errors.New("device disconnected")
)

// TransientError wraps a device-specific error code that does not
// invalidate the capture request: the device is presumed to still
// deliver a captured event (e.g., autofocus gave up but the shot
// fired anyway). Callers should keep waiting for completion.
type TransientError struct {
	Code string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient device error: %s", e.Code)
}

// IsTransient reports whether err is a non-fatal device error.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// EventKind discriminates device events.
type EventKind int

const (
	// EventCaptured carries the artifact path of a completed capture.
	// The device stays busy until the consumer calls Release.
	EventCaptured EventKind = iota

	// EventTriggerPressed reports the device's native shutter button
	// (photographer mode).
	EventTriggerPressed

	// EventDisconnected reports loss of the device.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventCaptured:
		return "captured"
	case EventTriggerPressed:
		return "trigger-pressed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is an out-of-band notification from the device. Events are
// delivered on an arbitrary goroutine; consumers must marshal them
// into their own coordination context before touching state.
type Event struct {
	Kind  EventKind
	Path  string // artifact path for EventCaptured
	Token string // echo of the capture token for EventCaptured
	Err   error  // set for EventDisconnected
}

// Device is the high-level capture device interface used by the
// orchestrator. It abstracts the vendor adapter the same way the
// rest of the hardware layer abstracts GPIO: one interface, one real
// implementation per vendor, one simulator for development and tests.
//
// Ownership contract: exactly one session controller may hold the
// device at a time. After EventCaptured the device remains busy until
// Release is called, whether or not downstream processing succeeded.
type Device interface {
	// IsBusy reports whether the device can accept a capture request.
	IsBusy() bool

	// SetBusy overrides the busy indicator. Recovery uses it to
	// force-clear a stuck device; safe to call when not busy.
	SetBusy(busy bool)

	// StartPreview / StopPreview control the live preview stream.
	// Both are idempotent.
	StartPreview() error
	StopPreview() error

	// CaptureAsync submits a capture request identified by token. It
	// returns ErrBusy if the device cannot accept it, a
	// *TransientError for non-fatal device codes, or nil. Success is
	// reported later as an EventCaptured on Events echoing the token,
	// so late completions from superseded requests are recognizable.
	CaptureAsync(token string) error

	// Release acknowledges a captured event and returns the device
	// to the ready state.
	Release()

	// Capability reports support for an optional feature.
	Capability(c Capability) bool

	// Events returns the bounded event queue. Closed by Close.
	Events() <-chan Event

	Close() error
}
