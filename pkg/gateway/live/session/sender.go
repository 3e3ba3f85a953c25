package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Sender delivers server messages to the attached client. Implementations
// must be safe for concurrent use; a failed send must not panic.
type Sender interface {
	Send(v any) error
	Close() error
}

// WSSender writes JSON text frames to a websocket connection under a mutex.
// The orchestrator's outbound volume is low (status, partials, question
// updates), so a single serialized writer is enough.
type WSSender struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       bool
}

func NewWSSender(conn *websocket.Conn, writeTimeout time.Duration) *WSSender {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &WSSender{conn: conn, writeTimeout: writeTimeout}
}

func (w *WSSender) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return websocket.ErrCloseSent
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a websocket-level ping control frame.
func (w *WSSender) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return websocket.ErrCloseSent
	}
	return w.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(w.writeTimeout))
}

// Close sends a normal close frame and closes the connection. Idempotent.
func (w *WSSender) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	deadline := time.Now().Add(w.writeTimeout)
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return w.conn.Close()
}
