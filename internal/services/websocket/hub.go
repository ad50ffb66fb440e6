package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"detectfront/internal/logger"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ErrHubStopped is returned by broadcasts after Run has exited.
var ErrHubStopped = errors.New("hub stopped")

// HubService fans messages out to every connected page viewer. Run is the
// only goroutine that writes to the connections.
//
// State messages are queued in order and never dropped. Preview frames
// share a single slot holding the newest frame, and Run always sends
// pending state messages before it.
type HubService struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	wake       chan struct{}
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
	onEmpty    func()

	queueMu sync.Mutex
	pending [][]byte
	latest  []byte
	stopped bool
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// OnEmpty sets a callback fired whenever the last viewer disconnects.
// Must be set before Run.
func (h *HubService) OnEmpty(fn func()) {
	h.onEmpty = fn
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every remaining connection.
func (h *HubService) Run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.remove(client)

		case <-h.wake:
			for _, message := range h.takeBatch() {
				h.send(message)
			}
		}
	}
}

// takeBatch empties the queues: every pending state message in order,
// followed by the newest preview frame if there is one.
func (h *HubService) takeBatch() [][]byte {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()

	batch := h.pending
	h.pending = nil
	if h.latest != nil {
		batch = append(batch, h.latest)
		h.latest = nil
	}
	return batch
}

func (h *HubService) send(message []byte) {
	h.mutex.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Error("Error sending message: %v", err)
			h.remove(client)
		}
	}
}

func (h *HubService) remove(client *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.Close()
	}
	total := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}
	h.logger.Info("Viewer disconnected. Total: %d", total)
	if total == 0 && h.onEmpty != nil {
		go h.onEmpty()
	}
}

func (h *HubService) closeAll() {
	h.queueMu.Lock()
	h.stopped = true
	h.pending = nil
	h.latest = nil
	h.queueMu.Unlock()

	h.mutex.Lock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.mutex.Unlock()
	close(h.done)
}

func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for every viewer. It never blocks and never
// drops; state messages are small and only sent on transitions.
func (h *HubService) Broadcast(message []byte) error {
	h.queueMu.Lock()
	if h.stopped {
		h.queueMu.Unlock()
		return ErrHubStopped
	}
	h.pending = append(h.pending, message)
	h.queueMu.Unlock()

	h.notify()
	return nil
}

// BroadcastLatest offers a preview frame. A frame not yet sent is replaced
// by the newer one.
func (h *HubService) BroadcastLatest(message []byte) error {
	h.queueMu.Lock()
	if h.stopped {
		h.queueMu.Unlock()
		return ErrHubStopped
	}
	h.latest = message
	h.queueMu.Unlock()

	h.notify()
	return nil
}

func (h *HubService) notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// BroadcastJSON encodes v and queues it losslessly.
func (h *HubService) BroadcastJSON(v interface{}) error {
	message, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Broadcast(message)
}

// BroadcastLatestJSON encodes v and offers it as the newest preview frame.
func (h *HubService) BroadcastLatestJSON(v interface{}) error {
	message, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.BroadcastLatest(message)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
