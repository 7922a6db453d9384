package statecluster

import (
	"fmt"
	"strings"
)

// CommandKind tells the cluster where a command emitted by a transition goes.
type CommandKind int

const (
	// KindEvent re-enters the event pipeline as an internal event.
	KindEvent CommandKind = iota
	// KindCommand is surfaced on the cluster's command queue.
	KindCommand
)

func (k CommandKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindCommand:
		return "command"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is a side effect of a transition.
type Command struct {
	Kind    CommandKind
	Payload string
}

func (c Command) String() string {
	return c.Kind.String() + ":" + c.Payload
}

// Transition is one edge of an automaton together with its side effects.
// Commands are ordered: emitted events first, then emitted commands.
type Transition struct {
	Origin   string
	Event    string
	Target   string
	Commands []Command
}

// newTransition assembles a transition, validating required fields.
func newTransition(from, event, to string, events, commands []string) (Transition, error) {
	switch {
	case from == "":
		return Transition{}, fmt.Errorf("transition origin: %w", ErrMissingField)
	case event == "":
		return Transition{}, fmt.Errorf("transition event on state %q: %w", from, ErrMissingField)
	case to == "":
		return Transition{}, fmt.Errorf("transition target for event %q on state %q: %w", event, from, ErrMissingField)
	}

	cmds := make([]Command, 0, len(events)+len(commands))
	for i, e := range events {
		if e == "" {
			return Transition{}, fmt.Errorf("emitted event %d of %q on state %q: %w", i, event, from, ErrMissingField)
		}
		cmds = append(cmds, Command{Kind: KindEvent, Payload: e})
	}
	for i, c := range commands {
		if c == "" {
			return Transition{}, fmt.Errorf("emitted command %d of %q on state %q: %w", i, event, from, ErrMissingField)
		}
		cmds = append(cmds, Command{Kind: KindCommand, Payload: c})
	}

	return Transition{Origin: from, Event: event, Target: to, Commands: cmds}, nil
}

func (t Transition) clone() Transition {
	t.Commands = append([]Command(nil), t.Commands...)
	return t
}

func (t Transition) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s --%s--> %s", t.Origin, t.Event, t.Target)
	if len(t.Commands) > 0 {
		parts := make([]string, len(t.Commands))
		for i, c := range t.Commands {
			parts[i] = c.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, ", "))
	}
	return b.String()
}
