package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/notebridge/backend/internal/protocol"
)

// connTransport adapts a gorilla websocket connection to protocol.Transport.
// Gorilla permits one concurrent writer, so writes are serialized here.
type connTransport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newConnTransport(conn *websocket.Conn) *connTransport {
	return &connTransport{conn: conn}
}

func (t *connTransport) WriteFrame(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return protocol.ErrTransportClosed
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *connTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
