package bridge

import (
	"context"
	"fmt"
	"time"
)

const diagnoseTimeout = 3 * time.Second

// diagnose probes the runtime and phrases a failed load for a human. The
// probe bypasses the circuit breaker so an already-tripped breaker still
// yields an accurate message.
func (b *Bridge) diagnose(ctx context.Context) string {
	probeCtx, cancel := context.WithTimeout(ctx, diagnoseTimeout)
	defer cancel()

	st := b.runtime.Status(probeCtx)
	switch {
	case st.Starting:
		return "notebook runtime is still starting"
	case !st.Reachable:
		return "notebook runtime is unreachable"
	case st.Message != "":
		return fmt.Sprintf("notebook runtime reachable but unresponsive: %s", st.Message)
	default:
		return "notebook runtime reachable but the bridge is unresponsive"
	}
}
