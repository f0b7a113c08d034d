// Package fsm renders the lifecycle tables with looplab/fsm and checks that
// an independent state machine implementation agrees with domain.Engine.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/casebook/internal/domain"
)

// Format selects the diagram syntax.
type Format string

const (
	FormatMermaid  Format = "mermaid"
	FormatGraphviz Format = "graphviz"
)

// ParseFormat accepts "mermaid" (the default for "") or "graphviz".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMermaid:
		return FormatMermaid, nil
	case FormatGraphviz:
		return FormatGraphviz, nil
	}
	return "", fmt.Errorf("unsupported diagram format %q", s)
}

// Renderer draws per-domain lifecycle diagrams. The looplab event
// descriptions are built once per domain and shared read-only.
type Renderer struct {
	events map[domain.Domain][]loopfsm.EventDesc
}

// NewRenderer prepares event descriptions for every domain.
func NewRenderer() *Renderer {
	r := &Renderer{events: make(map[domain.Domain][]loopfsm.EventDesc, len(domain.Domains))}
	for _, m := range domain.Machines() {
		r.events[m.Domain] = eventDescs(m)
	}
	return r
}

// eventDescs groups transitions sharing event and destination into a
// single EventDesc with several sources, e.g. CANCEL from three offense
// states into CANCELLED.
func eventDescs(m domain.Machine) []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range m.Transitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{Name: k.event, Src: grouped[k], Dst: k.dst})
	}
	return out
}

// machine returns a fresh looplab FSM for d positioned at current.
// looplab/fsm is stateful, so every call gets its own instance.
func (r *Renderer) machine(d domain.Domain, current domain.Status) (*loopfsm.FSM, error) {
	events, ok := r.events[d]
	if !ok {
		return nil, &domain.ForeignValueError{Domain: d, Kind: "domain", Value: string(d)}
	}
	return loopfsm.NewFSM(string(current), events, nil), nil
}

// Diagram renders d's lifecycle. The diagram highlights the initial state.
func (r *Renderer) Diagram(d domain.Domain, format Format) (string, error) {
	m, ok := domain.MachineFor(d)
	if !ok {
		return "", &domain.ForeignValueError{Domain: d, Kind: "domain", Value: string(d)}
	}
	f, err := r.machine(d, m.Initial)
	if err != nil {
		return "", err
	}

	vt := loopfsm.MERMAID
	if format == FormatGraphviz {
		vt = loopfsm.GRAPHVIZ
	}
	out, err := loopfsm.VisualizeWithType(f, vt)
	if err != nil {
		return "", fmt.Errorf("rendering %s diagram: %w", d, err)
	}
	return out, nil
}

// Available lists the events looplab accepts from current, sorted.
func (r *Renderer) Available(d domain.Domain, current domain.Status) ([]domain.Event, error) {
	f, err := r.machine(d, current)
	if err != nil {
		return nil, err
	}
	names := f.AvailableTransitions()
	sort.Strings(names)
	out := make([]domain.Event, len(names))
	for i, n := range names {
		out[i] = domain.Event(n)
	}
	return out, nil
}

// Verify fires every (state, event) pair of every domain through looplab
// and compares the result with engine. It returns one error per
// disagreement, joined.
func (r *Renderer) Verify(ctx context.Context, engine *domain.Engine) error {
	var errs []error
	for _, m := range domain.Machines() {
		for _, s := range m.States {
			for _, ev := range m.Events {
				want, ok := engine.Transition(m.Domain, s, ev)

				f, err := r.machine(m.Domain, s)
				if err != nil {
					return err
				}
				err = f.Event(ctx, string(ev))
				got := domain.Status(f.Current())

				switch {
				case ok && err != nil:
					errs = append(errs, fmt.Errorf("%s: %s from %s: engine moves to %s, fsm rejects: %w",
						m.Domain, ev, s, want, err))
				case !ok && err == nil:
					errs = append(errs, fmt.Errorf("%s: %s from %s: engine rejects, fsm moves to %s",
						m.Domain, ev, s, got))
				case ok && got != want:
					errs = append(errs, fmt.Errorf("%s: %s from %s: engine moves to %s, fsm to %s",
						m.Domain, ev, s, want, got))
				case !ok && !rejection(err):
					errs = append(errs, fmt.Errorf("%s: %s from %s: unexpected fsm error: %w",
						m.Domain, ev, s, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func rejection(err error) bool {
	var invalidEvent loopfsm.InvalidEventError
	var unknownEvent loopfsm.UnknownEventError
	return errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent)
}
