package runtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// kernelMessage is the runtime's kernel wire message.
type kernelMessage struct {
	Header       kernelHeader   `json:"header"`
	ParentHeader *kernelHeader  `json:"parent_header,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	Content      map[string]any `json:"content"`
	Channel      string         `json:"channel"`
}

type kernelHeader struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Version  string `json:"version"`
}

// Execute runs code inside the kernel over its websocket channel and waits for
// the execute reply. Silent requests skip history and output broadcasting.
func (c *RESTClient) Execute(ctx context.Context, kernelID, code string, silent bool) error {
	wsURL, err := c.channelURL(kernelID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial kernel channel: %w", err)
	}
	defer conn.Close()

	msgID := uuid.New().String()
	request := kernelMessage{
		Header: kernelHeader{
			MsgID:    msgID,
			MsgType:  "execute_request",
			Session:  uuid.New().String(),
			Username: "bridge",
			Version:  "5.3",
		},
		Metadata: map[string]any{},
		Content: map[string]any{
			"code":          code,
			"silent":        silent,
			"store_history": !silent,
		},
		Channel: "shell",
	}
	if err := conn.WriteJSON(request); err != nil {
		return fmt.Errorf("send execute request: %w", err)
	}

	deadline := time.Now().Add(c.exec)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return err
		}
		var reply struct {
			Header       kernelHeader   `json:"header"`
			ParentHeader kernelHeader   `json:"parent_header"`
			Content      map[string]any `json:"content"`
		}
		if err := conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("await execute reply: %w", err)
		}
		if reply.Header.MsgType != "execute_reply" || reply.ParentHeader.MsgID != msgID {
			continue
		}
		if status, _ := reply.Content["status"].(string); status == "error" {
			ename, _ := reply.Content["ename"].(string)
			evalue, _ := reply.Content["evalue"].(string)
			return fmt.Errorf("kernel execution failed: %s: %s", ename, evalue)
		}
		return nil
	}
}

func (c *RESTClient) channelURL(kernelID string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse runtime url: %w", err)
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/api/kernels/" + url.PathEscape(kernelID) + "/channels"
	if c.token != "" {
		q := base.Query()
		q.Set("token", c.token)
		base.RawQuery = q.Encode()
	}
	return base.String(), nil
}
