package domain

import (
	"encoding/json"
	"strings"
)

// Action is the business mutation an envelope requests.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Envelope is one inbound business event as decoded from the transport.
type Envelope struct {
	IdempotencyKey string
	Domain         Domain
	Action         Action
	Payload        json.RawMessage
}

// HasKey reports whether the envelope carries a usable idempotency key.
func (e Envelope) HasKey() bool {
	return strings.TrimSpace(e.IdempotencyKey) != ""
}

// Topic returns the channel name for the envelope, e.g. "offense_create".
func (e Envelope) Topic() string {
	return Topic(e.Domain, e.Action)
}

// Topic names the channel that carries action events for d.
func Topic(d Domain, a Action) string {
	return string(d) + "_" + string(a)
}

// Topics lists every channel the dispatcher consumes.
func Topics() []string {
	out := make([]string, 0, len(Domains)*2)
	for _, d := range Domains {
		out = append(out, Topic(d, ActionCreate), Topic(d, ActionUpdate))
	}
	return out
}
