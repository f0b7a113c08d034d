package domain

import "sort"

type edge struct {
	src   Status
	event Event
}

type table struct {
	machine Machine
	next    map[edge]Status
}

// Engine validates and applies lifecycle events against the per-domain
// transition tables. The tables are built once and only read afterwards,
// so an Engine is safe for concurrent use without locking.
type Engine struct {
	tables map[Domain]table
}

// DefaultEngine is built from the literal machine definitions at startup.
var DefaultEngine = NewEngine()

// NewEngine builds lookup tables for every machine in Machines.
func NewEngine() *Engine {
	e := &Engine{tables: make(map[Domain]table, len(machines))}
	for _, m := range Machines() {
		next := make(map[edge]Status, len(m.Transitions))
		for _, t := range m.Transitions {
			next[edge{src: t.Src, event: t.Event}] = t.Dst
		}
		e.tables[m.Domain] = table{machine: m, next: next}
	}
	return e
}

// Transition returns the destination of (current, event) in d's table and
// true, or current and false when the pair has no entry.
//
// current and event must belong to d. Passing a value from another domain
// is a programming error and panics with a *ForeignValueError; use Apply
// for values that come from outside the process.
func (e *Engine) Transition(d Domain, current Status, event Event) (Status, bool) {
	t, err := e.lookup(d, current, event)
	if err != nil {
		panic(err)
	}
	if dst, ok := t.next[edge{src: current, event: event}]; ok {
		return dst, true
	}
	return current, false
}

// CanTransition reports whether event is accepted from current in d.
// It panics on foreign values like Transition.
func (e *Engine) CanTransition(d Domain, current Status, event Event) bool {
	_, ok := e.Transition(d, current, event)
	return ok
}

// Apply is the error-returning form of Transition for untrusted input.
// It returns a *ForeignValueError for values outside d and a
// *TransitionError when the pair is rejected.
func (e *Engine) Apply(d Domain, current Status, event Event) (Status, error) {
	t, err := e.lookup(d, current, event)
	if err != nil {
		return current, err
	}
	dst, ok := t.next[edge{src: current, event: event}]
	if !ok {
		return current, &TransitionError{Domain: d, Event: event, Current: current}
	}
	return dst, nil
}

// EventFor returns the event that moves a record of d from one status to
// another in a single step.
func (e *Engine) EventFor(d Domain, from, to Status) (Event, bool) {
	t, ok := e.tables[d]
	if !ok {
		return "", false
	}
	for _, tr := range t.machine.Transitions {
		if tr.Src == from && tr.Dst == to {
			return tr.Event, true
		}
	}
	return "", false
}

// Available lists the events accepted from current, sorted by name.
func (e *Engine) Available(d Domain, current Status) []Event {
	t, ok := e.tables[d]
	if !ok {
		return nil
	}
	var out []Event
	for k := range t.next {
		if k.src == current {
			out = append(out, k.event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) lookup(d Domain, current Status, event Event) (table, error) {
	t, ok := e.tables[d]
	if !ok {
		return table{}, &ForeignValueError{Domain: d, Kind: "domain", Value: string(d)}
	}
	if !t.machine.HasState(current) {
		return table{}, &ForeignValueError{Domain: d, Kind: "status", Value: string(current)}
	}
	if !t.machine.HasEvent(event) {
		return table{}, &ForeignValueError{Domain: d, Kind: "event", Value: string(event)}
	}
	return t, nil
}
