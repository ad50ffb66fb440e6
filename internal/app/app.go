package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"detectfront/internal/capture"
	"detectfront/internal/config"
	"detectfront/internal/frontend"
	"detectfront/internal/handlers"
	"detectfront/internal/logger"
	"detectfront/internal/routes"
	ws "detectfront/internal/services/websocket"
	"detectfront/internal/submit"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	hubService *ws.HubService
	client     *submit.Client
	session    *frontend.Session
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg.LogDirectory)

	client, err := submit.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHubService(log)
	sink := submit.SinkFunc(func(st submit.State) {
		if err := hub.BroadcastJSON(handlers.NewStateMessage(st)); err != nil {
			log.Error("State %s (seq %d) not broadcast: %v", st.Phase, st.Seq, err)
		}
	})
	pipeline := submit.NewPipeline(client, sink, log)

	var device capture.Device
	if cfg.CameraEnabled {
		device = capture.NewGocvDevice(cfg.CameraUserIndex, cfg.CameraEnvironmentIndex)
	} else {
		log.Warning("Camera capture disabled - upload only")
	}
	camera := capture.NewManager(device, cfg.CameraWidth, cfg.CameraHeight, log)

	session := frontend.NewSession(camera, pipeline, log)
	// Last viewer gone means the page was unloaded.
	hub.OnEmpty(session.Close)

	return &App{
		config:     cfg,
		logger:     log,
		hubService: hub,
		client:     client,
		session:    session,
	}, nil
}

// Run serves until ctx is cancelled, then shuts the server down and
// releases the camera.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hubService.Run(ctx)
	go a.session.RunPreview(ctx, a.config.PreviewInterval, func(frame *capture.Frame) {
		if err := a.hubService.BroadcastLatestJSON(handlers.NewPreviewMessage(frame)); err != nil && !errors.Is(err, ws.ErrHubStopped) {
			a.logger.Error("Error broadcasting preview frame: %v", err)
		}
	})

	router := routes.SetupRoutes(a.session, a.client, a.hubService, a.config, a.logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Detection Front End\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🤖 Backend: %s\n", a.config.BackendURL)
	fmt.Printf("📷 Camera: %t\n", a.config.CameraEnabled)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("Server shutdown: %v", err)
	}
	a.session.Close()
	a.logger.Info("🛑 Server stopped")

	if errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	return serveErr
}
