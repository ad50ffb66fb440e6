package frontend

import (
	"context"
	"errors"
	"time"

	"detectfront/internal/capture"
)

// RunPreview pushes a display frame to publish every interval while the
// camera is active. Front camera frames are mirrored. It returns when ctx
// is done.
func (s *Session) RunPreview(ctx context.Context, interval time.Duration, publish func(*capture.Frame)) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.camera.Active() {
			continue
		}

		frame, err := s.camera.PreviewFrame()
		if err != nil {
			// The session can close between Active and PreviewFrame.
			if !errors.Is(err, capture.ErrNoActiveSession) && !failing {
				s.logger.Warning("Preview frame failed: %v", err)
			}
			failing = true
			continue
		}
		failing = false
		publish(frame)
	}
}
