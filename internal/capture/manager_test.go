package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"

	"detectfront/internal/logger"
)

// ========================================
// Test Doubles
// ========================================

type fakeStream struct {
	device *fakeDevice
	frame  image.Image
	once   sync.Once
}

func (s *fakeStream) Read() (image.Image, error) {
	return s.frame, nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		s.device.mu.Lock()
		s.device.open--
		s.device.mu.Unlock()
	})
	return nil
}

type fakeDevice struct {
	mu       sync.Mutex
	open     int
	maxOpen  int
	opened   []Constraints
	frames   map[Facing]image.Image
	failures map[Facing]error
	gate     chan struct{} // when set, Open blocks until the gate is closed
	entered  chan struct{}
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		frames: map[Facing]image.Image{
			FacingUser:        solidImage(640, 480, color.RGBA{R: 255, A: 255}),
			FacingEnvironment: solidImage(1280, 720, color.RGBA{B: 255, A: 255}),
		},
		failures: make(map[Facing]error),
	}
}

func (d *fakeDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if d.gate != nil {
		d.entered <- struct{}{}
		<-d.gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.opened = append(d.opened, c)
	if err := d.failures[c.Facing]; err != nil {
		return nil, err
	}
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return &fakeStream{device: d, frame: d.frames[c.Facing]}, nil
}

func (d *fakeDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func newTestManager(device Device) *Manager {
	return NewManager(device, 0, 0, logger.Discard())
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("captured frame is not a JPEG: %v", err)
	}
	return img
}

// ========================================
// Acquisition Tests
// ========================================

func TestEnterCamera_Success(t *testing.T) {
	device := newFakeDevice()
	m := newTestManager(device)

	if err := m.EnterCamera(context.Background(), FacingUser); err != nil {
		t.Fatalf("EnterCamera failed: %v", err)
	}

	if m.Mode() != ModeCamera {
		t.Errorf("Expected camera mode, got %s", m.Mode())
	}
	if !m.Active() {
		t.Error("Expected an active stream")
	}

	got := device.opened[0]
	want := Constraints{Facing: FacingUser, Width: DefaultWidth, Height: DefaultHeight}
	if got != want {
		t.Errorf("Open constraints = %+v, expected %+v", got, want)
	}
}

func TestEnterCamera_PermissionDenied(t *testing.T) {
	device := newFakeDevice()
	device.failures[FacingUser] = &Fault{Kind: FaultPermissionDenied, Message: "Permission denied"}
	m := newTestManager(device)

	err := m.EnterCamera(context.Background(), FacingUser)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}

	if m.Mode() != ModeUpload {
		t.Errorf("Mode should stay upload, got %s", m.Mode())
	}
	if m.Active() {
		t.Error("No stream should be bound after a failed acquisition")
	}
}

func TestEnterCamera_Unsupported(t *testing.T) {
	m := newTestManager(nil)

	if m.Supported() {
		t.Error("Manager without device should not be supported")
	}

	err := m.EnterCamera(context.Background(), FacingUser)
	if !errors.Is(err, ErrUnsupportedEnvironment) {
		t.Fatalf("Expected ErrUnsupportedEnvironment, got %v", err)
	}
	if m.Mode() != ModeUpload {
		t.Errorf("Mode should stay upload, got %s", m.Mode())
	}
}

func TestEnterCamera_TwiceDoesNotLeak(t *testing.T) {
	device := newFakeDevice()
	m := newTestManager(device)

	for i := 0; i < 3; i++ {
		if err := m.EnterCamera(context.Background(), FacingUser); err != nil {
			t.Fatalf("EnterCamera #%d failed: %v", i, err)
		}
	}

	if device.openCount() != 1 {
		t.Errorf("Expected exactly one open stream, got %d", device.openCount())
	}
	if device.maxOpen != 1 {
		t.Errorf("At most one stream may be open at a time, peak was %d", device.maxOpen)
	}
}

func TestStop_Idempotent(t *testing.T) {
	device := newFakeDevice()
	m := newTestManager(device)

	m.Stop()
	m.Exit()

	if err := m.EnterCamera(context.Background(), FacingUser); err != nil {
		t.Fatalf("EnterCamera failed: %v", err)
	}

	m.Stop()
	m.Stop()

	if device.openCount() != 0 {
		t.Errorf("Expected all streams released, %d still open", device.openCount())
	}
	if m.Mode() != ModeUpload {
		t.Errorf("Expected upload mode after Stop, got %s", m.Mode())
	}
}

func TestStop_DuringPendingAcquisition(t *testing.T) {
	device := newFakeDevice()
	device.gate = make(chan struct{})
	device.entered = make(chan struct{}, 1)
	m := newTestManager(device)

	done := make(chan error, 1)
	go func() {
		done <- m.EnterCamera(context.Background(), FacingUser)
	}()

	<-device.entered
	m.Stop()
	close(device.gate)

	if err := <-done; !errors.Is(err, ErrAcquisitionCancelled) {
		t.Fatalf("Expected ErrAcquisitionCancelled, got %v", err)
	}
	if device.openCount() != 0 {
		t.Errorf("Late stream must be released, %d still open", device.openCount())
	}
	if m.Mode() != ModeUpload {
		t.Errorf("Expected upload mode, got %s", m.Mode())
	}
}

// ========================================
// Facing Tests
// ========================================

func TestSwitchFacing_CapturesFromNewDevice(t *testing.T) {
	device := newFakeDevice()
	m := newTestManager(device)

	if err := m.EnterCamera(context.Background(), FacingUser); err != nil {
		t.Fatalf("EnterCamera failed: %v", err)
	}
	if err := m.SwitchFacing(context.Background()); err != nil {
		t.Fatalf("SwitchFacing failed: %v", err)
	}

	if m.Facing() != FacingEnvironment {
		t.Errorf("Expected environment facing, got %s", m.Facing())
	}
	if device.openCount() != 1 {
		t.Errorf("Expected one open stream after switch, got %d", device.openCount())
	}

	frame, err := m.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}

	img := decodeJPEG(t, frame.Data)
	r, _, b, _ := img.At(10, 10).RGBA()
	if b>>8 < 200 || r>>8 > 60 {
		t.Errorf("Expected a blue frame from the rear camera, got r=%d b=%d", r>>8, b>>8)
	}
	if frame.Facing != FacingEnvironment {
		t.Errorf("Frame facing = %s, expected environment", frame.Facing)
	}
}

func TestSwitchFacing_FailureLeavesUploadMode(t *testing.T) {
	device := newFakeDevice()
	device.failures[FacingEnvironment] = &Fault{Kind: FaultDeviceUnavailable}
	m := newTestManager(device)

	if err := m.EnterCamera(context.Background(), FacingUser); err != nil {
		t.Fatalf("EnterCamera failed: %v", err)
	}

	err := m.SwitchFacing(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}

	if m.Mode() != ModeUpload || m.Active() {
		t.Error("A failed switch must not leave a dead camera session")
	}
	if device.openCount() != 0 {
		t.Errorf("Previous stream must be released, %d still open", device.openCount())
	}
}

// ========================================
// Capture Tests
// ========================================

func TestCaptureFrame_NoActiveSession(t *testing.T) {
	m := newTestManager(newFakeDevice())

	if _, err := m.CaptureFrame(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Expected ErrNoActiveSession, got %v", err)
	}
}

func TestCaptureFrame_NativeResolution(t *testing.T) {
	device := newFakeDevice()
	m := newTestManager(device)

	if err := m.EnterCamera(context.Background(), FacingUser); err != nil {
		t.Fatalf("EnterCamera failed: %v", err)
	}

	frame, err := m.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}

	if frame.MIMEType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", frame.MIMEType)
	}
	if frame.Width != 640 || frame.Height != 480 {
		t.Errorf("Expected native 640x480, got %dx%d", frame.Width, frame.Height)
	}

	bounds := decodeJPEG(t, frame.Data).Bounds()
	if bounds.Dx() != 640 || bounds.Dy() != 480 {
		t.Errorf("Encoded frame is %dx%d, expected 640x480", bounds.Dx(), bounds.Dy())
	}
	if frame.Mirrored {
		t.Error("Captured frames must never be mirrored")
	}
}

func TestPreviewFrame_MirrorsOnlyFrontCamera(t *testing.T) {
	device := newFakeDevice()
	m := newTestManager(device)

	if err := m.EnterCamera(context.Background(), FacingUser); err != nil {
		t.Fatalf("EnterCamera failed: %v", err)
	}
	front, err := m.PreviewFrame()
	if err != nil {
		t.Fatalf("PreviewFrame failed: %v", err)
	}
	if !front.Mirrored || !m.MirroredPreview() {
		t.Error("Front camera preview should be mirrored")
	}

	if err := m.SwitchFacing(context.Background()); err != nil {
		t.Fatalf("SwitchFacing failed: %v", err)
	}
	rear, err := m.PreviewFrame()
	if err != nil {
		t.Fatalf("PreviewFrame failed: %v", err)
	}
	if rear.Mirrored || m.MirroredPreview() {
		t.Error("Rear camera preview should not be mirrored")
	}
}

func TestParseFacing(t *testing.T) {
	tests := []struct {
		input   string
		want    Facing
		wantErr bool
	}{
		{"user", FacingUser, false},
		{"environment", FacingEnvironment, false},
		{"", "", true},
		{"rear", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFacing(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFacing(%q) = %q, %v", tt.input, got, err)
		}
	}
}
