package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrHistoryNotFound = errors.New("idempotency history not found")
)

// TransitionError is returned when a state transition is not allowed.
// Target is set instead of Event when a status change was requested directly.
type TransitionError struct {
	Domain  Domain
	Event   Event
	Current Status
	Target  Status
}

func (e *TransitionError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("%s: cannot move from state %q to %q", e.Domain, e.Current, e.Target)
	}
	return fmt.Sprintf("%s: event %q is not valid from state %q", e.Domain, e.Event, e.Current)
}

// ForeignValueError reports a domain, status or event that does not belong
// to the lifecycle it was used with.
type ForeignValueError struct {
	Domain Domain
	Kind   string
	Value  string
}

func (e *ForeignValueError) Error() string {
	if e.Kind == "domain" {
		return fmt.Sprintf("unknown domain %q", e.Value)
	}
	return fmt.Sprintf("%s %q does not belong to domain %q", e.Kind, e.Value, e.Domain)
}

// ValidationError is returned when a case record payload is unusable.
type ValidationError struct {
	Domain Domain
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Domain, e.Field, e.Reason)
}

// MalformedPayloadError is returned when a payload cannot be decoded into
// the entity type of its domain.
type MalformedPayloadError struct {
	Domain Domain
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s: malformed payload: %v", e.Domain, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// InFlightError is returned when another caller currently holds the
// reservation for an idempotency key.
type InFlightError struct {
	Key string
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("idempotency key %q is already being processed", e.Key)
}

// StaleRecordError is returned when a record left the status it was read
// in before a conditional write landed. A retry re-reads the current status.
type StaleRecordError struct {
	Domain   Domain
	ID       string
	Expected Status
}

func (e *StaleRecordError) Error() string {
	return fmt.Sprintf("%s record %q is no longer in state %q", e.Domain, e.ID, e.Expected)
}

// IsPermanent reports whether err can never succeed on retry. A missing
// record is not permanent: an update may arrive before its create. Neither
// is a stale record, whose retry sees the new status.
func IsPermanent(err error) bool {
	var trErr *TransitionError
	var valErr *ValidationError
	var fvErr *ForeignValueError
	var mpErr *MalformedPayloadError
	return errors.As(err, &trErr) || errors.As(err, &valErr) || errors.As(err, &fvErr) ||
		errors.As(err, &mpErr)
}
