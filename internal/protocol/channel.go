package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/shared/id"
)

// pendingKey correlates a reply to its outstanding request.
type pendingKey struct {
	command   string
	requestID string
}

// Channel is the requesting side of the command protocol. Each Send registers
// exactly one single-shot listener keyed by (command, request_id), posts the
// envelope, and races the reply against a timeout. Concurrent calls for the
// same command are distinguished solely by request_id.
type Channel struct {
	transport Transport
	timeout   time.Duration
	log       *logging.Logger

	mu      sync.Mutex
	pending map[pendingKey]chan Envelope
}

// NewChannel creates a channel over the given transport. defaultTimeout bounds
// each Send unless overridden per call.
func NewChannel(t Transport, defaultTimeout time.Duration, log *logging.Logger) *Channel {
	return &Channel{
		transport: t,
		timeout:   defaultTimeout,
		log:       log,
		pending:   make(map[pendingKey]chan Envelope),
	}
}

// Send issues a command and waits for the correlated reply payload.
func (c *Channel) Send(ctx context.Context, command string, payload any) (Envelope, error) {
	return c.SendTimeout(ctx, command, payload, c.timeout)
}

// SendTimeout issues a command with an explicit per-call timeout.
func (c *Channel) SendTimeout(ctx context.Context, command string, payload any, timeout time.Duration) (Envelope, error) {
	env, err := NewEnvelope(command, id.NewRequestID().String(), payload)
	if err != nil {
		return Envelope{}, err
	}

	key := pendingKey{command: command, requestID: env.RequestID}
	reply := make(chan Envelope, 1)

	c.mu.Lock()
	c.pending[key] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, err
	}
	if err := c.transport.WriteFrame(data); err != nil {
		return Envelope{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-timer.C:
		return Envelope{}, &TimeoutError{Command: command}
	case resp := <-reply:
		if resp.Error != "" {
			return Envelope{}, &RemoteError{Command: command, Message: resp.Error}
		}
		return resp, nil
	}
}

// Notify posts a fire-and-forget envelope with no request_id.
func (c *Channel) Notify(command string, payload any) error {
	env, err := NewEnvelope(command, "", payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.transport.WriteFrame(data)
}

// HandleFrame delivers an inbound frame. It returns true if the frame settled
// an outstanding request; unmatched frames (notifications, stale replies) are
// left to the caller.
func (c *Channel) HandleFrame(data []byte) bool {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug("discarding malformed frame", zap.Error(err))
		return false
	}
	if env.RequestID == "" {
		return false
	}

	key := pendingKey{command: env.Command, requestID: env.RequestID}
	c.mu.Lock()
	reply, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	reply <- env
	return true
}

// PendingCount reports outstanding requests. Settled calls always remove their
// listener, so this returns to zero between bursts.
func (c *Channel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
