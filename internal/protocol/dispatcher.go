package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
)

// HandlerFunc handles one inbound command and returns the reply payload.
type HandlerFunc func(ctx context.Context, env Envelope) (any, error)

// Observer is notified after every dispatched command, for metrics.
type Observer func(command, status string, d time.Duration)

// Dispatcher is the answering side of the command protocol: it routes inbound
// envelopes to registered handlers and writes replies echoing the request's
// command and request_id. Correlation is structural, never convention-based.
type Dispatcher struct {
	log      *logging.Logger
	observer Observer

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[string]HandlerFunc),
	}
}

// SetObserver installs a metrics observer.
func (d *Dispatcher) SetObserver(fn Observer) {
	d.mu.Lock()
	d.observer = fn
	d.mu.Unlock()
}

// Handle registers the handler for a command name.
func (d *Dispatcher) Handle(command string, fn HandlerFunc) {
	d.mu.Lock()
	d.handlers[command] = fn
	d.mu.Unlock()
}

// Dispatch processes one inbound frame and writes the reply to t. Fire-and-
// forget notifications (no request_id) run their handler without a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte, t Transport) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.log.Warn("discarding malformed command frame", zap.Error(err))
		return
	}

	d.mu.RLock()
	handler, ok := d.handlers[env.Command]
	observer := d.observer
	d.mu.RUnlock()

	start := time.Now()
	status := "ok"
	defer func() {
		if observer != nil {
			observer(env.Command, status, time.Since(start))
		}
	}()

	if !ok {
		status = "unknown"
		d.log.Warn("unknown command", zap.String("command", env.Command))
		if env.RequestID != "" {
			d.write(t, env.ReplyError(fmt.Sprintf("unknown command %q", env.Command)))
		}
		return
	}

	result, err := handler(ctx, env)
	if env.RequestID == "" {
		if err != nil {
			status = "error"
			d.log.Warn("notification handler failed",
				zap.String("command", env.Command), zap.Error(err))
		}
		return
	}

	if err != nil {
		status = "error"
		d.write(t, env.ReplyError(err.Error()))
		return
	}

	reply, err := env.Reply(result)
	if err != nil {
		status = "error"
		d.write(t, env.ReplyError(err.Error()))
		return
	}
	d.write(t, reply)
}

func (d *Dispatcher) write(t Transport, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		d.log.Error("failed to encode reply", zap.String("command", env.Command), zap.Error(err))
		return
	}
	if err := t.WriteFrame(data); err != nil {
		d.log.Warn("failed to write reply", zap.String("command", env.Command), zap.Error(err))
	}
}
