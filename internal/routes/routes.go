package routes

import (
	"fmt"
	"net/http"

	"detectfront/internal/config"
	"detectfront/internal/frontend"
	"detectfront/internal/handlers"
	"detectfront/internal/logger"
	"detectfront/internal/middleware"
	ws "detectfront/internal/services/websocket"
	"detectfront/internal/submit"

	"github.com/gorilla/mux"
)

// SetupRoutes registers the page API, the viewer websocket, the result
// proxy and static file serving, wrapped in request logging.
func SetupRoutes(session *frontend.Session, client *submit.Client, hub *ws.HubService, cfg *config.Config, logger *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	// Input mode and camera
	r.HandleFunc("/api/status", handlers.StatusHandler(session, logger)).Methods(http.MethodGet)
	r.HandleFunc("/api/mode/upload", handlers.UploadModeHandler(session, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/mode/camera", handlers.CameraModeHandler(session, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/camera/switch", handlers.SwitchCameraHandler(session, logger)).Methods(http.MethodPost)

	// Submission
	r.HandleFunc("/api/capture", handlers.CaptureHandler(session, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/upload", handlers.UploadHandler(session, cfg.MaxUploadBytes, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/dismiss", handlers.DismissHandler(session, logger)).Methods(http.MethodPost)

	// Page lifecycle
	r.HandleFunc("/api/view", handlers.ViewWebsocketHandler(session, hub, logger)).Methods(http.MethodGet)
	r.HandleFunc("/api/session/close", handlers.CloseSessionHandler(session, hub, logger)).Methods(http.MethodPost)

	r.HandleFunc("/uploads/{name}", handlers.RenderedResultHandler(client, logger)).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDirectory)))

	r.Use(middleware.RequestLogger(logger))
	return r
}
