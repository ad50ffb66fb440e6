package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"detectfront/internal/logger"

	"github.com/gorilla/websocket"
)

// ========================================
// Test Setup Helpers
// ========================================

func setupHubServer(t *testing.T, hub *HubService) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *HubService, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.GetClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d clients, got %d", want, hub.GetClientCount())
}

// ========================================
// Hub Tests
// ========================================

func TestHub_BroadcastReachesAllViewers(t *testing.T) {
	hub := NewHubService(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	url := setupHubServer(t, hub)
	first := dial(t, url)
	defer first.Close()
	second := dial(t, url)
	defer second.Close()
	waitForClients(t, hub, 2)

	if err := hub.BroadcastJSON(map[string]string{"type": "state"}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		if string(data) != `{"type":"state"}` {
			t.Errorf("Unexpected message %s", data)
		}
	}
}

func TestHub_OnEmptyAfterLastViewer(t *testing.T) {
	hub := NewHubService(logger.Discard())
	emptied := make(chan struct{}, 1)
	hub.OnEmpty(func() { emptied <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	url := setupHubServer(t, hub)
	first := dial(t, url)
	second := dial(t, url)
	waitForClients(t, hub, 2)

	first.Close()
	waitForClients(t, hub, 1)
	select {
	case <-emptied:
		t.Fatal("OnEmpty fired while a viewer is still connected")
	default:
	}

	second.Close()
	select {
	case <-emptied:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEmpty was not called after the last viewer left")
	}
}

func TestHub_StateMessagesSurvivePreviewFlood(t *testing.T) {
	hub := NewHubService(logger.Discard())

	// Run is not started, so nothing drains the queues.
	for i := 0; i < 200; i++ {
		if err := hub.BroadcastLatest([]byte(fmt.Sprintf(`{"type":"preview","n":%d}`, i))); err != nil {
			t.Fatalf("BroadcastLatest %d failed: %v", i, err)
		}
	}
	if err := hub.BroadcastJSON(map[string]string{"type": "state", "phase": "loading"}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}
	if err := hub.BroadcastJSON(map[string]string{"type": "state", "phase": "result"}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}

	batch := hub.takeBatch()
	if len(batch) != 3 {
		t.Fatalf("Expected two states and one preview, got %d messages", len(batch))
	}
	if string(batch[0]) != `{"phase":"loading","type":"state"}` || string(batch[1]) != `{"phase":"result","type":"state"}` {
		t.Errorf("State messages out of order: %s, %s", batch[0], batch[1])
	}
	if string(batch[2]) != `{"type":"preview","n":199}` {
		t.Errorf("Expected only the newest preview, got %s", batch[2])
	}
	if len(hub.takeBatch()) != 0 {
		t.Error("Queues should be empty after a batch")
	}
}

func TestHub_StateDeliveredBehindPreviews(t *testing.T) {
	hub := NewHubService(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	url := setupHubServer(t, hub)
	conn := dial(t, url)
	defer conn.Close()
	waitForClients(t, hub, 1)

	for i := 0; i < 500; i++ {
		hub.BroadcastLatestJSON(map[string]string{"type": "preview"})
	}
	if err := hub.BroadcastJSON(map[string]string{"type": "state"}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("State message never arrived: %v", err)
		}
		if string(data) == `{"type":"state"}` {
			return
		}
	}
}

func TestHub_BroadcastAfterStop(t *testing.T) {
	hub := NewHubService(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if err := hub.BroadcastJSON(map[string]string{"type": "state"}); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Expected ErrHubStopped, got %v", err)
	}
	if err := hub.BroadcastLatest([]byte("x")); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Expected ErrHubStopped, got %v", err)
	}
}

func TestHub_RegisterAfterStop(t *testing.T) {
	hub := NewHubService(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	url := setupHubServer(t, hub)
	conn := dial(t, url)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Connection should be closed once the hub has stopped")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("Expected no clients, got %d", hub.GetClientCount())
	}
}
