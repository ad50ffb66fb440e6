package handlers

import (
	"encoding/base64"
	"net/http"
	"time"

	"detectfront/internal/capture"
	"detectfront/internal/frontend"
	"detectfront/internal/logger"
	ws "detectfront/internal/services/websocket"
	"detectfront/internal/submit"

	"github.com/gorilla/websocket"
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message types pushed to viewers.
const (
	MessageStatus  = "status"
	MessageState   = "state"
	MessagePreview = "preview"
)

// StateMessage carries a UI state transition.
type StateMessage struct {
	Type  string       `json:"type"`
	State submit.State `json:"state"`
}

// StatusMessage is sent once to a viewer when it connects.
type StatusMessage struct {
	Type   string          `json:"type"`
	Status frontend.Status `json:"status"`
}

// PreviewMessage carries one live camera frame as base64 JPEG.
type PreviewMessage struct {
	Type     string `json:"type"`
	Image    string `json:"image"`
	Facing   string `json:"facing"`
	Mirrored bool   `json:"mirrored"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func NewStateMessage(st submit.State) StateMessage {
	return StateMessage{Type: MessageState, State: st}
}

func NewPreviewMessage(frame *capture.Frame) PreviewMessage {
	return PreviewMessage{
		Type:     MessagePreview,
		Image:    base64.StdEncoding.EncodeToString(frame.Data),
		Facing:   string(frame.Facing),
		Mirrored: frame.Mirrored,
		Width:    frame.Width,
		Height:   frame.Height,
	}
}

// ViewWebsocketHandler registers a page viewer. The page is considered
// mounted while at least one viewer is connected.
func ViewWebsocketHandler(session *frontend.Session, hub *ws.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)

		// Written before Register so the hub stays the only concurrent writer.
		connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := connection.WriteJSON(StatusMessage{Type: MessageStatus, Status: session.Status()}); err != nil {
			logger.Error("Error sending initial status: %v", err)
			connection.Close()
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				logger.Info("Viewer left: %v", err)
				break
			}
		}
	}
}
