package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/neomorfeo/casebook/internal/domain"
)

// Config tunes the event transport.
type Config struct {
	// WorkersPerTopic caps concurrent deliveries per topic queue.
	WorkersPerTopic int
	// MaxAttempts is how many deliveries a failing job gets.
	MaxAttempts int
	// JobTimeout bounds one delivery.
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Setup creates a River client with one queue per topic and the event
// worker registered, and runs River's internal migrations. The caller must
// call client.Start() to begin processing jobs and client.Stop() for
// graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, dispatcher Dispatcher, cfg Config) (*Client, error) {
	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &EventWorker{dispatcher: dispatcher, timeout: cfg.JobTimeout})

	perTopic := cfg.WorkersPerTopic
	if perTopic <= 0 {
		perTopic = 3
	}
	queues := make(map[string]river.QueueConfig)
	for _, topic := range domain.Topics() {
		queues[topic] = river.QueueConfig{MaxWorkers: perTopic}
	}

	client, err := river.NewClient(driver, &river.Config{
		Queues:      queues,
		Workers:     workers,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
