package app

import (
	"encoding/json"

	"github.com/neomorfeo/casebook/internal/domain"
)

// bindings maps each domain to the entity its payloads decode into.
var bindings = map[domain.Domain]func() domain.Entity{
	domain.DomainOffense:          func() domain.Entity { return &domain.Offense{} },
	domain.DomainPayment:          func() domain.Entity { return &domain.Payment{} },
	domain.DomainAppeal:           func() domain.Entity { return &domain.Appeal{} },
	domain.DomainAppealAcceptance: func() domain.Entity { return &domain.AppealAcceptance{} },
	domain.DomainDeduction:        func() domain.Entity { return &domain.Deduction{} },
}

// Supports reports whether d has a binding.
func Supports(d domain.Domain) bool {
	_, ok := bindings[d]
	return ok
}

// Decode parses a JSON payload into the entity bound to d. It does not
// validate business rules; the create and update actions do.
func Decode(d domain.Domain, payload []byte) (domain.Entity, error) {
	factory, ok := bindings[d]
	if !ok {
		return nil, &domain.ForeignValueError{Kind: "domain", Value: string(d)}
	}
	e := factory()
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, &domain.MalformedPayloadError{Domain: d, Err: err}
	}
	return e, nil
}
