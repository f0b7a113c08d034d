package river

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/casebook/internal/app"
	"github.com/neomorfeo/casebook/internal/domain"
)

// Dispatcher processes one decoded envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, env domain.Envelope) (app.Outcome, error)
}

// EventWorker hands each delivered job to the dispatcher. Completing the
// job acknowledges the delivery; returning an error makes River redeliver
// it after a backoff.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]

	dispatcher Dispatcher
	timeout    time.Duration
}

// Timeout bounds a single delivery. Zero falls back to the client default.
func (w *EventWorker) Timeout(*river.Job[EventJobArgs]) time.Duration {
	return w.timeout
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	env := job.Args.Envelope()

	outcome, err := w.dispatcher.Dispatch(ctx, env)
	if err != nil {
		if domain.IsPermanent(err) {
			// The request can never succeed; stop redelivering it.
			return river.JobCancel(err)
		}
		return err
	}

	slog.DebugContext(ctx, "event job done",
		"topic", env.Topic(),
		"outcome", outcome,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
