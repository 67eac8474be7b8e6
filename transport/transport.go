package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a bidirectional, message-framed, ordered connection to the
// worker process. Messages are single text frames.
type Transport interface {
	// ReadMessage blocks until the next inbound frame arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one outbound frame. Safe for concurrent use.
	WriteMessage(payload []byte) error
	// Close tears the connection down; a blocked ReadMessage returns an error.
	Close() error
}

// wsTransport wraps a websocket connection. The underlying connection allows
// only one concurrent writer, so writes are serialized here.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// Dial opens a websocket transport to the worker at host:port.
func Dial(ctx context.Context, addr string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 3 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, "ws://"+addr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWSTransport(conn), nil
}
