package capture

import (
	"context"
	"fmt"
	"sync"

	"detectfront/internal/logger"
)

// Manager holds the camera stream of one page session. At most one stream
// is open at any time; a pending acquisition that is overtaken by Stop or a
// newer EnterCamera closes its stream instead of binding it.
type Manager struct {
	device Device
	width  int
	height int
	logger *logger.Logger

	mu         sync.Mutex
	mode       Mode
	facing     Facing
	stream     Stream
	generation uint64 // bumped by every acquire/release so late opens can detect they lost
}

// NewManager creates a Manager in upload mode. A nil device means the host
// has no camera support; EnterCamera then fails with ErrUnsupportedEnvironment.
func NewManager(device Device, width, height int, logger *logger.Logger) *Manager {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Manager{
		device: device,
		width:  width,
		height: height,
		logger: logger,
		mode:   ModeUpload,
		facing: FacingUser,
	}
}

// Supported reports whether a capture device is available at all.
func (m *Manager) Supported() bool {
	return m.device != nil
}

func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Manager) Facing() Facing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facing
}

// Active reports whether a stream is bound.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// MirroredPreview reports whether the live preview is shown mirrored.
// Only the front camera preview is mirrored; captures never are.
func (m *Manager) MirroredPreview() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil && m.facing == FacingUser
}

// EnterCamera releases any existing stream and acquires a new one facing
// the requested direction. On failure the mode stays ModeUpload.
func (m *Manager) EnterCamera(ctx context.Context, facing Facing) error {
	if m.device == nil {
		return ErrUnsupportedEnvironment
	}

	m.mu.Lock()
	m.releaseLocked()
	m.facing = facing
	ticket := m.generation
	m.mu.Unlock()

	stream, err := m.device.Open(ctx, Constraints{Facing: facing, Width: m.width, Height: m.height})
	if err != nil {
		m.logger.Warning("Camera acquisition (%s) failed: %v", facing, err)
		return err
	}
	if stream == nil {
		return &Fault{Kind: FaultDeviceUnavailable, Message: "camera returned no stream"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != ticket {
		// Stop or another EnterCamera ran while we were waiting on the device.
		if err := stream.Close(); err != nil {
			m.logger.Warning("Failed to close superseded camera stream: %v", err)
		}
		return ErrAcquisitionCancelled
	}

	m.stream = stream
	m.mode = ModeCamera
	m.generation++
	m.logger.Info("📷 Camera session started (%s, %dx%d requested)", facing, m.width, m.height)
	return nil
}

// Stop releases the stream and returns to upload mode. Safe to call
// without an open session.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Exit is an alias of Stop used when the user picks upload mode.
func (m *Manager) Exit() {
	m.Stop()
}

// SwitchFacing flips the facing direction, tears down the current stream
// and acquires the other camera. If acquisition fails the session is left
// closed in upload mode and the error is returned.
func (m *Manager) SwitchFacing(ctx context.Context) error {
	next := m.Facing().Opposite()
	if err := m.EnterCamera(ctx, next); err != nil {
		return fmt.Errorf("switch to %s camera: %w", next, err)
	}
	return nil
}

// CaptureFrame renders the current frame at native resolution and encodes
// it as JPEG. The captured frame is never mirrored.
func (m *Manager) CaptureFrame() (*Frame, error) {
	return m.frame(false)
}

// PreviewFrame renders the current frame for display, mirrored when the
// front camera is in use.
func (m *Manager) PreviewFrame() (*Frame, error) {
	return m.frame(true)
}

func (m *Manager) frame(preview bool) (*Frame, error) {
	m.mu.Lock()
	stream, facing := m.stream, m.facing
	if stream == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	img, err := stream.Read()
	m.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to read camera frame: %w", err)
	}
	return encodeFrame(img, facing, preview && facing == FacingUser)
}

func (m *Manager) releaseLocked() {
	m.generation++
	m.mode = ModeUpload
	if m.stream == nil {
		return
	}
	if err := m.stream.Close(); err != nil {
		m.logger.Warning("Failed to close camera stream: %v", err)
	}
	m.stream = nil
	m.logger.Info("📷 Camera session stopped")
}
