package capture

import "errors"

var (
	ErrUnsupportedEnvironment = errors.New("camera capture is not supported in this environment")
	ErrPermissionDenied       = errors.New("permission to use the camera was denied")
	ErrDeviceUnavailable      = errors.New("camera device is unavailable")
	ErrNoActiveSession        = errors.New("no active camera session")
	ErrAcquisitionCancelled   = errors.New("camera acquisition was superseded")
	ErrEmptyFrame             = errors.New("camera returned an empty frame")
)

// FaultKind classifies why a device could not be opened.
type FaultKind int

const (
	FaultOther FaultKind = iota
	FaultNotSupported
	FaultPermissionDenied
	FaultDeviceUnavailable
)

// Fault is returned by a Device when acquisition fails.
type Fault struct {
	Kind    FaultKind
	Message string
}

func (f *Fault) Error() string {
	if f.Message != "" {
		return f.Message
	}
	if sentinel := f.sentinel(); sentinel != nil {
		return sentinel.Error()
	}
	return "camera error"
}

// Is lets errors.Is match a Fault against the package sentinels.
func (f *Fault) Is(target error) bool {
	sentinel := f.sentinel()
	return sentinel != nil && sentinel == target
}

func (f *Fault) sentinel() error {
	switch f.Kind {
	case FaultNotSupported:
		return ErrUnsupportedEnvironment
	case FaultPermissionDenied:
		return ErrPermissionDenied
	case FaultDeviceUnavailable:
		return ErrDeviceUnavailable
	}
	return nil
}
