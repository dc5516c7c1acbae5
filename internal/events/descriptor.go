package events

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/expr"
)

// Descriptor defines one event. Descriptors are validated when registered
// with a [Detector] and are immutable afterwards.
type Descriptor[T any] struct {
	// Name labels the event in logs, listings and exports. Empty names are
	// assigned "event-<id>" at registration.
	Name string

	// Trigger is the scalar expression whose zero crossings fire the
	// event. Its variable binding must match the detector's.
	Trigger *expr.Expr

	// Direction restricts which crossings qualify.
	Direction Direction

	// Kind decides whether a matched crossing runs Callback (NonTerminal)
	// or truncates the step and halts integration (Terminal).
	Kind Kind

	// Callback runs once per non-terminal firing with the dense-output
	// state and the absolute time at the crossing. Its return value
	// decides whether the cooldown window is armed. Callbacks must not
	// touch the runner that invoked them.
	Callback func(state []T, t T) bool

	// Cooldown is the refractory window after a non-terminal firing, in
	// absolute time units. Zero means the event may fire again
	// immediately, even within the same step.
	Cooldown float64

	// Disposition applies to terminal events only and tells the driving
	// loop where to leave the trajectory after the halt.
	Disposition Disposition
}

func (d *Descriptor[T]) validate(vars []string) error {
	if d.Trigger == nil {
		return fmt.Errorf("%w: missing trigger", dynamo.ErrBadDescriptor)
	}
	if got := d.Trigger.Vars(); !slices.Equal(got, vars) {
		return fmt.Errorf("%w: trigger binds variables %v, system has %v",
			dynamo.ErrDimensionMismatch, got, vars)
	}
	if !d.Direction.valid() {
		return fmt.Errorf("%w: direction %d", dynamo.ErrBadDescriptor, int(d.Direction))
	}
	if !d.Kind.valid() {
		return fmt.Errorf("%w: kind %d", dynamo.ErrBadDescriptor, int(d.Kind))
	}
	switch d.Kind {
	case Terminal:
		if d.Callback != nil {
			return fmt.Errorf("%w: terminal events carry no callback", dynamo.ErrBadDescriptor)
		}
		if d.Cooldown != 0 {
			return fmt.Errorf("%w: terminal events carry no cooldown", dynamo.ErrBadDescriptor)
		}
		if !d.Disposition.valid() {
			return fmt.Errorf("%w: disposition %d", dynamo.ErrBadDescriptor, int(d.Disposition))
		}
	case NonTerminal:
		if d.Callback == nil {
			return fmt.Errorf("%w: non-terminal events require a callback", dynamo.ErrBadDescriptor)
		}
		if d.Cooldown < 0 || math.IsNaN(d.Cooldown) || math.IsInf(d.Cooldown, 0) {
			return fmt.Errorf("%w: cooldown %v", dynamo.ErrBadDescriptor, d.Cooldown)
		}
		if d.Disposition != HaltAtEvent {
			return fmt.Errorf("%w: disposition applies to terminal events only", dynamo.ErrBadDescriptor)
		}
	}
	return nil
}

// Summary is a precision-independent view of a registered event, for
// listings, run metadata and the live monitor.
type Summary struct {
	ID          EventID
	Name        string
	Trigger     string
	Direction   Direction
	Kind        Kind
	Cooldown    float64
	Disposition Disposition
}
