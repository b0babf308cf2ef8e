// Package hostclient is the host-side counterpart to the bridge socket: it
// dials the bridge, waits for readiness, and issues commands with the
// reload-and-retry behavior hosts need when the bridge restarts underneath
// them.
package hostclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
	"github.com/notebridge/backend/internal/protocol"
)

// Options configures a host client.
type Options struct {
	// URL is the bridge socket endpoint, e.g. ws://localhost:8400/bridge.
	URL string
	// CommandTimeout bounds each request/reply exchange.
	CommandTimeout time.Duration
	// ReadyTimeout bounds the initial readiness wait.
	ReadyTimeout time.Duration
	// ProbeTimeout and ProbeInterval tune the readiness ping loop.
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration
}

// Client is a connected host. It owns the socket and the reply correlation
// channel; a client whose connection drops must be discarded and re-dialed.
type Client struct {
	opts    Options
	log     *logging.Logger
	conn    *websocket.Conn
	channel *protocol.Channel
	monitor *protocol.Monitor

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool

	// redial reconnects after a not-ready load failure. Tests stub it.
	redial func(ctx context.Context) error
}

// LoadRequest is the host's load payload.
type LoadRequest struct {
	NotebookJSON   json.RawMessage          `json:"notebook_json"`
	NotebookKey    string                   `json:"notebook_key"`
	NotebookTitle  string                   `json:"notebook_title"`
	WorkspaceFiles []notebook.WorkspaceFile `json:"workspace_files,omitempty"`
}

// LoadResult is the bridge's load reply.
type LoadResult struct {
	NotebookJSON json.RawMessage `json:"notebook_json"`
}

// Dial connects to the bridge and waits until it answers pings.
func Dial(ctx context.Context, opts Options, log *logging.Logger) (*Client, error) {
	c := &Client{opts: opts, log: log}
	c.redial = c.reconnect
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.waitReady(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	ch := protocol.NewChannel(c, c.opts.CommandTimeout, c.log.Named("channel"))
	mon := protocol.NewMonitor(ch, c.opts.ProbeTimeout, c.opts.ProbeInterval, c.log.Named("ready"))

	// Swap under writeMu so concurrent senders see a consistent socket and
	// correlation channel.
	c.writeMu.Lock()
	c.conn = conn
	c.channel = ch
	c.monitor = mon
	c.writeMu.Unlock()

	go c.readLoop(conn, ch)
	return nil
}

func (c *Client) waitReady(ctx context.Context) error {
	c.writeMu.Lock()
	mon := c.monitor
	c.writeMu.Unlock()
	return mon.WaitUntilReady(ctx, c.opts.ReadyTimeout)
}

// reconnect tears down the socket and dials fresh.
func (c *Client) reconnect(ctx context.Context) error {
	c.writeMu.Lock()
	old := c.conn
	c.writeMu.Unlock()
	if old != nil {
		old.Close()
	}
	if err := c.connect(ctx); err != nil {
		return err
	}
	return c.waitReady(ctx)
}

// send issues one command over the current correlation channel. The channel is
// read under writeMu because a load retry may swap it mid-session.
func (c *Client) send(ctx context.Context, command string, payload any) (protocol.Envelope, error) {
	c.writeMu.Lock()
	ch := c.channel
	c.writeMu.Unlock()
	return ch.Send(ctx, command, payload)
}

func (c *Client) readLoop(conn *websocket.Conn, ch *protocol.Channel) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Outstanding sends settle through their timeouts.
			c.log.Debug("bridge socket closed", zap.Error(err))
			return
		}
		if ch.HandleFrame(data) {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.log.Debug("bridge notification", zap.String("command", env.Command))
	}
}

// WriteFrame implements protocol.Transport.
func (c *Client) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return protocol.ErrTransportClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements protocol.Transport.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Ping checks bridge liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.send(ctx, protocol.CmdPing, nil)
	return err
}

// LoadNotebook loads a notebook into the bridge. If the bridge reports
// not-ready, the client reconnects once and retries; a second failure is
// returned to the caller.
func (c *Client) LoadNotebook(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	result, err := c.loadOnce(ctx, req)
	if err == nil {
		return result, nil
	}
	if !protocol.IsNotReady(err) && !protocol.IsTimeout(err) {
		return nil, err
	}

	c.log.Warn("bridge not ready, reconnecting once", zap.Error(err))
	if rerr := c.redial(ctx); rerr != nil {
		return nil, fmt.Errorf("reconnect after not-ready load: %w", rerr)
	}
	return c.loadOnce(ctx, req)
}

func (c *Client) loadOnce(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	env, err := c.send(ctx, protocol.CmdLoadNotebook, req)
	if err != nil {
		return nil, err
	}
	var result LoadResult
	if err := env.DecodePayload(&result); err != nil {
		return nil, fmt.Errorf("decode load reply: %w", err)
	}
	return &result, nil
}

// NotebookState fetches the bridge's current notebook JSON.
func (c *Client) NotebookState(ctx context.Context) (json.RawMessage, error) {
	env, err := c.send(ctx, protocol.CmdGetNotebookState, nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		NotebookJSON json.RawMessage `json:"notebook_json"`
	}
	if err := env.DecodePayload(&result); err != nil {
		return nil, err
	}
	return result.NotebookJSON, nil
}

// CurrentCell fetches the most recently executed code cell.
func (c *Client) CurrentCell(ctx context.Context) (code string, index int, err error) {
	env, err := c.send(ctx, protocol.CmdGetCurrentCell, nil)
	if err != nil {
		return "", 0, err
	}
	var result struct {
		Code      string `json:"code"`
		CellIndex int    `json:"cell_index"`
	}
	if err := env.DecodePayload(&result); err != nil {
		return "", 0, err
	}
	return result.Code, result.CellIndex, nil
}

// ErrorOutput fetches the first error output in the notebook, nil when none.
// The reply reuses the envelope's error slot for the data, so a remote error
// on this command carries the output rather than a failure.
func (c *Client) ErrorOutput(ctx context.Context) (*string, error) {
	_, err := c.send(ctx, protocol.CmdGetErrorOutput, nil)
	if err != nil {
		var remote *protocol.RemoteError
		if errors.As(err, &remote) {
			return &remote.Message, nil
		}
		return nil, err
	}
	return nil, nil
}
