package camera

import (
	"errors"
	"fmt"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrEncodingFailed    = errors.New("encoding failed")
	ErrUserCancelled     = errors.New("user cancelled")
	ErrBridgeFailure     = errors.New("native bridge failure")
	ErrInvalidState      = errors.New("invalid session state")
	ErrSessionClosed     = errors.New("session closed")
)

type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonPermissionDenied
	ReasonNoDevice
	ReasonDeviceBusy
	ReasonUnsupported
)

func (r Reason) String() string {
	switch r {
	case ReasonPermissionDenied:
		return "permission denied"
	case ReasonNoDevice:
		return "no camera device"
	case ReasonDeviceBusy:
		return "device busy"
	case ReasonUnsupported:
		return "live capture unsupported"
	default:
		return "unknown"
	}
}

// UnavailableError collapses every acquisition failure into ErrCameraUnavailable
// while keeping a human-readable cause.
type UnavailableError struct {
	Reason Reason
	Cause  error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("camera unavailable (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("camera unavailable (%s)", e.Reason)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrCameraUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

func Unavailable(reason Reason, cause error) error {
	return &UnavailableError{Reason: reason, Cause: cause}
}

// asUnavailable normalises an acquirer error.
func asUnavailable(err error) error {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Reason: ReasonUnknown, Cause: err}
}
