package river

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/casebook/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries one inbound business event. River serializes this as
// JSON into its job queue table; every delivery of the job is one delivery
// of the envelope.
type EventJobArgs struct {
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Domain         string          `json:"domain"`
	Action         string          `json:"action"`
	Payload        json.RawMessage `json:"payload"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "case.event" }

// InsertOpts routes the job to its topic queue, e.g. "payment_update".
func (a EventJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: domain.Topic(domain.Domain(a.Domain), domain.Action(a.Action))}
}

// Envelope converts the job arguments back to the domain form.
func (a EventJobArgs) Envelope() domain.Envelope {
	return domain.Envelope{
		IdempotencyKey: a.IdempotencyKey,
		Domain:         domain.Domain(a.Domain),
		Action:         domain.Action(a.Action),
		Payload:        a.Payload,
	}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
	topics map[string]bool
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	topics := make(map[string]bool)
	for _, t := range domain.Topics() {
		topics[t] = true
	}
	return &Publisher{client: client, topics: topics}
}

// Publish enqueues an envelope on its topic queue. Envelopes for a topic no
// worker consumes are refused instead of being parked forever.
func (p *Publisher) Publish(ctx context.Context, env domain.Envelope) error {
	if !p.topics[env.Topic()] {
		return &domain.ForeignValueError{Domain: env.Domain, Kind: "topic", Value: env.Topic()}
	}
	_, err := p.client.Insert(ctx, EventJobArgs{
		IdempotencyKey: env.IdempotencyKey,
		Domain:         string(env.Domain),
		Action:         string(env.Action),
		Payload:        env.Payload,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
