package main

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/ws"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 25 * time.Second
	wsReadTimeout  = 60 * time.Second
)

// originChecker allows same-host requests, requests without an Origin
// header and the configured origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// eventPrinterID extracts printer_id from an event payload.
func eventPrinterID(msg ws.Message) (int64, bool) {
	switch v := msg.Data["printer_id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// handleInventoryWebSocket streams hub events to a UI client. The optional
// printer_id query parameter limits the stream to one printer.
func (a *app) handleInventoryWebSocket(w http.ResponseWriter, r *http.Request) {
	var filter int64
	if v := r.URL.Query().Get("printer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid printer_id", http.StatusBadRequest)
			return
		}
		filter = id
	}

	conn, err := ws.UpgradeHTTP(w, r, originChecker(a.cfg.Server.AllowedOrigins))
	if err != nil {
		logWarn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	clientID := uuid.NewString()
	events := a.hub.Subscribe(clientID)
	logInfo("Inventory websocket connected", "client", clientID, "remote_addr", conn.RemoteAddr(), "printer_id", filter)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case msg, ok := <-events:
				if !ok {
					conn.WriteClose("server shutting down", wsWriteTimeout)
					return
				}
				if filter != 0 {
					if id, ok := eventPrinterID(msg); ok && id != filter {
						continue
					}
				}
				if err := conn.WriteMessage(&msg, wsWriteTimeout); err != nil {
					logDebug("WebSocket write failed", "client", clientID, "error", err)
					conn.Close()
					return
				}
			case <-ping.C:
				if err := conn.WritePing(wsWriteTimeout); err != nil {
					logDebug("WebSocket ping failed, closing connection", "client", clientID, "error", err)
					conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// Clients only send application-level pings; anything else is ignored.
	for {
		msg, err := conn.ReadJSON()
		if err != nil {
			if ws.IsUnexpectedCloseError(err) {
				logWarn("WebSocket error", "client", clientID, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msg.Type == "ping" {
			pong := ws.NewMessage(ws.MessageTypePong, nil)
			if err := conn.WriteMessage(&pong, wsWriteTimeout); err != nil {
				break
			}
		}
	}

	a.hub.Unsubscribe(clientID)
	conn.Close()
	<-writerDone
	logInfo("Inventory websocket disconnected", "client", clientID)
}
