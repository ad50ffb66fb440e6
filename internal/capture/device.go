// Package capture owns the camera device for one page session: acquiring and
// releasing the stream, switching between front and rear cameras, and
// rendering the live frame to a JPEG on demand.
package capture

import (
	"context"
	"fmt"
	"image"
)

// Default resolution hint requested from the device. Devices may negotiate
// a different native size; captured frames always use the native size.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Facing selects which physical camera is requested.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Opposite returns the other facing direction.
func (f Facing) Opposite() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// ParseFacing accepts "user" or "environment".
func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case FacingUser, FacingEnvironment:
		return Facing(s), nil
	}
	return "", fmt.Errorf("unknown facing direction %q", s)
}

// Mode is the active input mode of the page.
type Mode int

const (
	ModeUpload Mode = iota
	ModeCamera
)

func (m Mode) String() string {
	if m == ModeCamera {
		return "camera"
	}
	return "upload"
}

// Constraints are passed to the device when a stream is requested.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// Device requests camera access. Failures should be returned as *Fault so
// callers can tell permission problems from missing hardware.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live camera feed. Read returns the current frame at the
// feed's native resolution. Close releases every device track and must be
// safe to call more than once.
type Stream interface {
	Read() (image.Image, error)
	Close() error
}
