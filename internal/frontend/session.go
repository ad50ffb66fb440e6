// Package frontend ties the camera and the submission pipeline together for
// one mounted page. It is the only place an acquired image is handed from
// capture to submission.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"detectfront/internal/capture"
	"detectfront/internal/logger"
	"detectfront/internal/submit"
)

// Status is what the page needs to render its controls.
type Status struct {
	Mode            string       `json:"mode"`
	Facing          string       `json:"facing"`
	CameraSupported bool         `json:"cameraSupported"`
	CameraActive    bool         `json:"cameraActive"`
	MirroredPreview bool         `json:"mirroredPreview"`
	CameraError     string       `json:"cameraError,omitempty"` // last camera fault, kept even when State could not show it
	State           submit.State `json:"state"`
}

// Session is the state of one mounted page: its input mode, its camera and
// its UI state. Close it on unmount to release the camera.
type Session struct {
	camera   *capture.Manager
	pipeline *submit.Pipeline
	logger   *logger.Logger

	mu          sync.Mutex
	cameraError string
}

func NewSession(camera *capture.Manager, pipeline *submit.Pipeline, logger *logger.Logger) *Session {
	return &Session{
		camera:   camera,
		pipeline: pipeline,
		logger:   logger,
	}
}

func (s *Session) Status() Status {
	return Status{
		Mode:            s.camera.Mode().String(),
		Facing:          string(s.camera.Facing()),
		CameraSupported: s.camera.Supported(),
		CameraActive:    s.camera.Active(),
		MirroredPreview: s.camera.MirroredPreview(),
		CameraError:     s.lastCameraError(),
		State:           s.pipeline.State(),
	}
}

// ShowUpload switches to upload mode and releases the camera.
func (s *Session) ShowUpload() Status {
	s.camera.Exit()
	s.setCameraError("")
	return s.Status()
}

// ShowCamera switches to camera mode using the current facing direction.
func (s *Session) ShowCamera(ctx context.Context) (Status, error) {
	s.pipeline.Dismiss()
	err := s.camera.EnterCamera(ctx, s.camera.Facing())
	return s.Status(), s.reportCameraError(err)
}

// SwitchCamera toggles between the front and rear camera.
func (s *Session) SwitchCamera(ctx context.Context) (Status, error) {
	s.pipeline.Dismiss()
	err := s.camera.SwitchFacing(ctx)
	return s.Status(), s.reportCameraError(err)
}

// Capture grabs the current camera frame and submits it. A capture while a
// submission is loading is rejected before the camera is touched.
func (s *Session) Capture(ctx context.Context, params submit.Params) (submit.State, error) {
	if s.pipeline.Busy() {
		return s.pipeline.State(), submit.ErrBusy
	}

	frame, err := s.camera.CaptureFrame()
	if err != nil {
		return s.pipeline.State(), s.reportCameraError(err)
	}

	return s.pipeline.Submit(ctx, &submit.Image{
		Data:     frame.Data,
		MIMEType: frame.MIMEType,
		Filename: capture.CaptureFilename,
		Source:   submit.SourceCamera,
	}, params)
}

// Upload submits a user-selected or dropped file.
func (s *Session) Upload(ctx context.Context, img *submit.Image, params submit.Params) (submit.State, error) {
	if img != nil && img.Source == "" {
		img.Source = submit.SourceFile
	}
	return s.pipeline.Submit(ctx, img, params)
}

// Dismiss clears a displayed error.
func (s *Session) Dismiss() Status {
	s.pipeline.Dismiss()
	s.setCameraError("")
	return s.Status()
}

// Close tears the page down: the camera is released and any in-flight
// submission is discarded.
func (s *Session) Close() {
	s.camera.Stop()
	s.pipeline.Reset()
	s.setCameraError("")
	s.logger.Info("Page session closed")
}

// reportCameraError shows err to the user and returns it. Superseded
// acquisitions are not errors from the user's point of view. While a
// submission is loading the fault cannot replace the state, so it is only
// kept in Status.CameraError.
func (s *Session) reportCameraError(err error) error {
	var message string
	switch {
	case err == nil, errors.Is(err, capture.ErrAcquisitionCancelled):
		s.setCameraError("")
		return nil
	case errors.Is(err, capture.ErrNoActiveSession):
		message = "Camera not available"
	default:
		message = fmt.Sprintf("Camera error: %v", err)
	}

	s.setCameraError(message)
	if !s.pipeline.Fail(message) {
		s.logger.Warning("Camera fault not shown while a submission is loading: %s", message)
	}
	return err
}

func (s *Session) setCameraError(message string) {
	s.mu.Lock()
	s.cameraError = message
	s.mu.Unlock()
}

func (s *Session) lastCameraError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraError
}
