package isolation

import (
	"context"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
)

// Step is one best-effort unit of the isolation sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// runAll executes every step in order. A step's failure is logged, reported to
// onFailure, collected, and never aborts the remaining steps.
func runAll(ctx context.Context, log *logging.Logger, onFailure func(step string), steps []Step) []error {
	var failures []error
	for _, step := range steps {
		if err := step.Run(ctx); err != nil {
			failures = append(failures, err)
			log.Warn("isolation step failed",
				zap.String("step", step.Name), zap.Error(err))
			if onFailure != nil {
				onFailure(step.Name)
			}
		}
	}
	return failures
}
