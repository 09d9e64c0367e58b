package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errClosed = errors.New("websocket: connection is closed")

// Conn wraps *websocket.Conn. gorilla connections allow one concurrent
// writer, so every write goes through writeMu.
type Conn struct {
	c       *websocket.Conn
	writeMu sync.Mutex
}

// UpgradeHTTP upgrades an incoming request. A nil checkOrigin rejects
// cross-origin requests.
func UpgradeHTTP(w http.ResponseWriter, r *http.Request, checkOrigin func(*http.Request) bool) (*Conn, error) {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// ReadMessage returns the next data frame.
func (cw *Conn) ReadMessage() ([]byte, error) {
	if cw == nil || cw.c == nil {
		return nil, errClosed
	}
	_, msg, err := cw.c.ReadMessage()
	return msg, err
}

// ReadJSON decodes the next frame as a Message.
func (cw *Conn) ReadJSON() (Message, error) {
	var msg Message
	if cw == nil || cw.c == nil {
		return msg, errClosed
	}
	err := cw.c.ReadJSON(&msg)
	return msg, err
}

// WriteMessage writes msg as JSON with a write deadline.
func (cw *Conn) WriteMessage(msg *Message, timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errClosed
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	if timeout > 0 {
		cw.c.SetWriteDeadline(time.Now().Add(timeout))
	}
	return cw.c.WriteJSON(msg)
}

// WritePing sends a ping control frame.
func (cw *Conn) WritePing(timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errClosed
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	if timeout > 0 {
		cw.c.SetWriteDeadline(time.Now().Add(timeout))
	}
	return cw.c.WriteMessage(websocket.PingMessage, nil)
}

// WriteClose sends a normal-closure control frame.
func (cw *Conn) WriteClose(reason string, timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errClosed
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	return cw.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(timeout))
}

// SetReadDeadline sets the read deadline on the underlying conn.
func (cw *Conn) SetReadDeadline(t time.Time) error {
	if cw == nil || cw.c == nil {
		return errClosed
	}
	return cw.c.SetReadDeadline(t)
}

// SetPongHandler sets the pong handler.
func (cw *Conn) SetPongHandler(h func(string) error) {
	if cw == nil || cw.c == nil {
		return
	}
	cw.c.SetPongHandler(h)
}

// RemoteAddr returns the remote address if available.
func (cw *Conn) RemoteAddr() string {
	if cw == nil || cw.c == nil || cw.c.RemoteAddr() == nil {
		return ""
	}
	return cw.c.RemoteAddr().String()
}

// Close closes the underlying connection.
func (cw *Conn) Close() error {
	if cw == nil || cw.c == nil {
		return nil
	}
	return cw.c.Close()
}

// IsUnexpectedCloseError reports whether err is a close error with a code
// other than normal closure or going away.
func IsUnexpectedCloseError(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
