package events

import (
	"fmt"
	"log/slog"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/precision"
)

// Detector owns the registered events and cooldown state for one
// integrator instance. The numeric type is fixed at construction; all
// descriptors registered with a detector share it.
type Detector[T any] struct {
	ops     precision.Arith[T]
	log     *slog.Logger
	vars    []string
	nextID  EventID
	events  []*registered[T]
	tracker *CooldownTracker
}

type registered[T any] struct {
	id   EventID
	desc Descriptor[T]
}

// NewDetector builds a detector for a system whose state variables are
// named by vars, in order. Triggers registered later must bind exactly
// these variables.
func NewDetector[T any](ops precision.Arith[T], vars []string, log *slog.Logger) *Detector[T] {
	if log == nil {
		log = slog.Default()
	}
	v := make([]string, len(vars))
	copy(v, vars)
	return &Detector[T]{
		ops:     ops,
		log:     log,
		vars:    v,
		nextID:  1,
		tracker: NewCooldownTracker(),
	}
}

// Register validates the descriptor and adds it under a fresh id.
// Everything that can be checked ahead of time is checked here; a
// registered event never fails validation during scanning.
func (d *Detector[T]) Register(desc Descriptor[T]) (EventID, error) {
	if err := desc.validate(d.vars); err != nil {
		return 0, err
	}
	id := d.nextID
	d.nextID++
	if desc.Name == "" {
		desc.Name = fmt.Sprintf("event-%d", id)
	}
	d.events = append(d.events, &registered[T]{id: id, desc: desc})
	d.log.Debug("events: registered",
		"id", int64(id),
		"name", desc.Name,
		"kind", desc.Kind.String(),
		"direction", desc.Direction.String(),
		"trigger", desc.Trigger.String())
	return id, nil
}

// Unregister removes the event and forgets its cooldown state.
func (d *Detector[T]) Unregister(id EventID) error {
	for i, ev := range d.events {
		if ev.id == id {
			d.events = append(d.events[:i], d.events[i+1:]...)
			d.tracker.Forget(id)
			d.log.Debug("events: unregistered", "id", int64(id), "name", ev.desc.Name)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", dynamo.ErrUnknownEvent, int64(id))
}

// ResetCooldowns clears all refractory windows, typically when the
// trajectory is re-initialized.
func (d *Detector[T]) ResetCooldowns() {
	d.tracker.Reset()
}

// Len reports the number of registered events.
func (d *Detector[T]) Len() int {
	return len(d.events)
}

// Vars returns a copy of the state variable binding.
func (d *Detector[T]) Vars() []string {
	v := make([]string, len(d.vars))
	copy(v, d.vars)
	return v
}

// Tracker exposes the cooldown state for read-only inspection by metrics
// and the live monitor.
func (d *Detector[T]) Tracker() *CooldownTracker {
	return d.tracker
}

// Summaries lists the registered events in id order.
func (d *Detector[T]) Summaries() []Summary {
	out := make([]Summary, 0, len(d.events))
	for _, ev := range d.events {
		out = append(out, Summary{
			ID:          ev.id,
			Name:        ev.desc.Name,
			Trigger:     ev.desc.Trigger.String(),
			Direction:   ev.desc.Direction,
			Kind:        ev.desc.Kind,
			Cooldown:    ev.desc.Cooldown,
			Disposition: ev.desc.Disposition,
		})
	}
	return out
}
