package protocol

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
)

// Monitor polls the peer with ping until it acknowledges liveness. The peer's
// startup is asynchronous and not observable directly, so bounded polling is
// the only robust readiness signal.
type Monitor struct {
	channel      *Channel
	probeTimeout time.Duration
	interval     time.Duration
	log          *logging.Logger
}

// NewMonitor creates a readiness monitor. probeTimeout bounds each individual
// ping attempt (sub-second); interval is the sleep between attempts.
func NewMonitor(ch *Channel, probeTimeout, interval time.Duration, log *logging.Logger) *Monitor {
	return &Monitor{
		channel:      ch,
		probeTimeout: probeTimeout,
		interval:     interval,
		log:          log,
	}
}

// WaitUntilReady polls until one ping succeeds or the overall deadline elapses.
// On deadline it returns a NotReadyError wrapping the last probe failure, which
// callers distinguish from hard failures to trigger a one-time retry.
func (m *Monitor) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var last error

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return &NotReadyError{Last: last}
		}

		_, err := m.channel.SendTimeout(ctx, CmdPing, nil, m.probeTimeout)
		if err == nil {
			m.log.Debug("remote context ready", zap.Int("attempts", attempt))
			return nil
		}
		last = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.interval):
		}
	}
}
