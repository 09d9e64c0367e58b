package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/ws"
)

func dialInventoryWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/inventory" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect via WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForClients waits until the hub has n subscribers.
func waitForClients(t *testing.T, a *app, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for a.hub.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d websocket clients, have %d", n, a.hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ws.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	return msg
}

func TestInventoryWebSocketStreamsRunEvents(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, reportPoller(t, testReport("VNB3K12345", "00:1b:a9:aa:bb:cc", 42)))
	srv := httptest.NewServer(a.routes())
	defer srv.Close()
	p := createTestPrinter(t, a, "10.0.0.50", "VNB3K12345", "00:1b:a9:aa:bb:cc")

	conn := dialInventoryWS(t, srv, "")
	waitForClients(t, a, 1)

	if _, err := a.svc.RunInventory(context.Background(), p.ID, ""); err != nil {
		t.Fatalf("RunInventory: %v", err)
	}

	start := readEvent(t, conn)
	if start.Type != ws.MessageTypeInventoryStart {
		t.Fatalf("first event = %q, want %q", start.Type, ws.MessageTypeInventoryStart)
	}
	update := readEvent(t, conn)
	if update.Type != ws.MessageTypeInventoryUpdate {
		t.Fatalf("second event = %q, want %q", update.Type, ws.MessageTypeInventoryUpdate)
	}
	if update.Data["status"] != "SUCCESS" || update.Data["match_rule"] != "SN_MAC" {
		t.Errorf("unexpected update payload: %v", update.Data)
	}
	if total, _ := update.Data["total"].(float64); total != 42 {
		t.Errorf("total = %v, want 42", update.Data["total"])
	}
}

func TestInventoryWebSocketPrinterFilter(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	conn := dialInventoryWS(t, srv, "?printer_id=7")
	waitForClients(t, a, 1)

	a.hub.Publish(ws.NewMessage(ws.MessageTypeInventoryStart, map[string]interface{}{"printer_id": int64(3)}))
	a.hub.Publish(ws.NewMessage(ws.MessageTypeInventoryStart, map[string]interface{}{"printer_id": int64(7)}))

	msg := readEvent(t, conn)
	if id, _ := msg.Data["printer_id"].(float64); id != 7 {
		t.Errorf("filtered stream delivered printer %v", msg.Data["printer_id"])
	}
}

func TestInventoryWebSocketPing(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	conn := dialInventoryWS(t, srv, "")
	if err := conn.WriteJSON(ws.Message{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readEvent(t, conn); msg.Type != ws.MessageTypePong {
		t.Errorf("reply type = %q, want %q", msg.Type, ws.MessageTypePong)
	}
}

func TestInventoryWebSocketUnsubscribesOnClose(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	conn := dialInventoryWS(t, srv, "")
	waitForClients(t, a, 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for a.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still subscribed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInventoryWebSocketRejectsBadFilter(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/inventory?printer_id=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{[]string{"https://inventory.example.com/"}, "", "api.local", true},
		{[]string{"https://inventory.example.com/"}, "https://inventory.example.com", "api.local", true},
		{[]string{"https://inventory.example.com/"}, "https://evil.example.com", "api.local", false},
		{[]string{"https://inventory.example.com/"}, "http://api.local:8080", "api.local:8080", true},
		{nil, "", "api.local", true},
		{nil, "http://api.local:8080", "api.local:8080", true},
		{nil, "https://evil.example.com", "api.local", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws/inventory", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := originChecker(tt.allowed)(r); got != tt.want {
			t.Errorf("allowed %v origin %q host %q: got %v, want %v", tt.allowed, tt.origin, tt.host, got, tt.want)
		}
	}
}
