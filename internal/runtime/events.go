package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types emitted by the runtime's event stream.
const (
	EventDocumentChanged = "document-changed"
	EventSaveRequested   = "save-requested"
	EventKernelAttached  = "kernel-attached"
)

// Event is one entry from the runtime's event stream: a document's content
// changed, a save was requested, or a kernel attached to a session.
type Event struct {
	Type     string          `json:"type"`
	Path     string          `json:"path"`
	KernelID string          `json:"kernel_id,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// Events subscribes to the runtime's event stream. The channel closes when the
// stream ends or ctx is canceled. Callers own reconnection policy.
func (c *RESTClient) Events(ctx context.Context) (<-chan Event, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse runtime url: %w", err)
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/api/events"
	if c.token != "" {
		q := base.Query()
		q.Set("token", c.token)
		base.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					c.log.Debug("runtime event stream ended", zap.Error(err))
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
