package handlers

import (
	"net/http"

	"detectfront/internal/frontend"
	"detectfront/internal/logger"
	ws "detectfront/internal/services/websocket"
)

// StatusHandler returns the page status (mode, facing, UI state).
func StatusHandler(session *frontend.Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := writeJSON(w, http.StatusOK, session.Status()); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// UploadModeHandler switches the page to upload mode and releases the camera.
func UploadModeHandler(session *frontend.Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := writeJSON(w, http.StatusOK, session.ShowUpload()); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// CameraModeHandler acquires the camera. Camera faults are reported through
// the error state in the returned status, not through the HTTP status.
func CameraModeHandler(session *frontend.Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := session.ShowCamera(r.Context())
		if err != nil {
			logger.Warning("Camera mode unavailable: %v", err)
		}
		if err := writeJSON(w, http.StatusOK, status); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// SwitchCameraHandler toggles between front and rear camera.
func SwitchCameraHandler(session *frontend.Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := session.SwitchCamera(r.Context())
		if err != nil {
			logger.Warning("Camera switch failed: %v", err)
		}
		if err := writeJSON(w, http.StatusOK, status); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// DismissHandler clears a displayed error.
func DismissHandler(session *frontend.Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := writeJSON(w, http.StatusOK, session.Dismiss()); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// CloseSessionHandler is the page's unload beacon: the camera is released
// and any in-flight submission is discarded. The session is shared, so the
// beacon is ignored while other viewers are still connected; the last
// viewer leaving closes it through the hub.
func CloseSessionHandler(session *frontend.Session, hub *ws.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if viewers := hub.GetClientCount(); viewers > 1 {
			logger.Info("Unload beacon ignored: %d viewers still connected", viewers)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		session.Close()
		w.WriteHeader(http.StatusNoContent)
	}
}
