package events

import (
	"fmt"
	"strings"

	"github.com/san-kum/taysim/internal/dynamo"
)

// EventID identifies a registered event within one detector. Ids are
// assigned in registration order, starting at 1, and are never reused.
type EventID int64

// Direction filters which zero crossings of a trigger qualify: rising
// (trigger increasing along the flow), falling, or either.
type Direction int

const (
	Negative Direction = -1
	Any      Direction = 0
	Positive Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Negative:
		return "negative"
	case Any:
		return "any"
	case Positive:
		return "positive"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

func (d Direction) valid() bool {
	return d == Negative || d == Any || d == Positive
}

// Matches reports whether an observed crossing satisfies the filter.
// The observed sign is the trigger derivative's sign along the flow.
// Ambiguous crossings (merged clusters or grazes) satisfy only Any.
func (d Direction) Matches(observed int, ambiguous bool) bool {
	if d == Any {
		return true
	}
	if ambiguous {
		return false
	}
	return int(d) == observed
}

// ParseDirection maps a configuration string to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "rising", "up", "+1", "1":
		return Positive, nil
	case "negative", "falling", "down", "-1":
		return Negative, nil
	case "any", "both", "0", "":
		return Any, nil
	}
	return Any, fmt.Errorf("%w: unknown direction %q", dynamo.ErrBadDescriptor, s)
}

// Kind separates events that merely run a callback from events that halt
// the integration.
type Kind int

const (
	NonTerminal Kind = iota
	Terminal
)

func (k Kind) String() string {
	switch k {
	case NonTerminal:
		return "non-terminal"
	case Terminal:
		return "terminal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) valid() bool {
	return k == NonTerminal || k == Terminal
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "terminal", "halt":
		return Terminal, nil
	case "non-terminal", "nonterminal", "callback", "":
		return NonTerminal, nil
	}
	return NonTerminal, fmt.Errorf("%w: unknown kind %q", dynamo.ErrBadDescriptor, s)
}

// Disposition tells the driving loop where to leave the trajectory when a
// terminal event halts it: advanced to the crossing itself, or rolled back
// to the start of the truncated step.
type Disposition int

const (
	HaltAtEvent Disposition = iota
	HaltAtStepStart
)

func (d Disposition) String() string {
	switch d {
	case HaltAtEvent:
		return "halt-at-event"
	case HaltAtStepStart:
		return "halt-at-step-start"
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

func (d Disposition) valid() bool {
	return d == HaltAtEvent || d == HaltAtStepStart
}

// ParseDisposition maps a configuration string to a Disposition.
func ParseDisposition(s string) (Disposition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "halt-at-event", "event", "":
		return HaltAtEvent, nil
	case "halt-at-step-start", "step-start", "rollback":
		return HaltAtStepStart, nil
	}
	return HaltAtEvent, fmt.Errorf("%w: unknown disposition %q", dynamo.ErrBadDescriptor, s)
}
