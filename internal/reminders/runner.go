package reminders

import (
	"context"
	"time"

	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

type runnable interface {
	Run(ctx context.Context) (RunResult, error)
}

// Runner triggers the orchestrator on a fixed interval for deployments
// without an external cron.
type Runner struct {
	orch     runnable
	interval time.Duration
	logger   *logging.Logger
}

func NewRunner(orch runnable, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{orch: orch, interval: 15 * time.Minute, logger: logger}
}

func (r *Runner) WithInterval(d time.Duration) *Runner {
	if d > 0 {
		r.interval = d
	}
	return r
}

// Run blocks until ctx is done, running once immediately and then on every tick.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.once(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.once(ctx)
		}
	}
}

func (r *Runner) once(ctx context.Context) {
	if r.orch == nil {
		return
	}
	if _, err := r.orch.Run(ctx); err != nil {
		r.logger.Error("reminders: scheduled run failed", "error", err)
	}
}
