package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// GocvDevice opens local cameras through OpenCV. Each facing direction maps
// to a device index, since desktop hosts have no notion of front/rear.
type GocvDevice struct {
	indices map[Facing]int
}

// NewGocvDevice maps the front camera to userIndex and the rear one to
// environmentIndex. A negative index marks the direction as absent.
func NewGocvDevice(userIndex, environmentIndex int) *GocvDevice {
	indices := make(map[Facing]int, 2)
	if userIndex >= 0 {
		indices[FacingUser] = userIndex
	}
	if environmentIndex >= 0 {
		indices[FacingEnvironment] = environmentIndex
	}
	return &GocvDevice{indices: indices}
}

func (d *GocvDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index, ok := d.indices[c.Facing]
	if !ok {
		return nil, &Fault{Kind: FaultDeviceUnavailable, Message: fmt.Sprintf("no %s camera configured", c.Facing)}
	}

	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, &Fault{Kind: FaultDeviceUnavailable, Message: fmt.Sprintf("failed to open camera %d: %v", index, err)}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &Fault{Kind: FaultDeviceUnavailable, Message: fmt.Sprintf("camera %d could not be opened", index)}
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))

	// A device that opens but never delivers frames is what access control
	// looks like through V4L2/AVFoundation.
	probe := gocv.NewMat()
	defer probe.Close()
	if ok := vc.Read(&probe); !ok || probe.Empty() {
		vc.Close()
		return nil, &Fault{Kind: FaultPermissionDenied, Message: fmt.Sprintf("camera %d delivered no frames", index)}
	}

	return &gocvStream{vc: vc, mat: gocv.NewMat()}, nil
}

type gocvStream struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func (s *gocvStream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrNoActiveSession
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

func (s *gocvStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}
