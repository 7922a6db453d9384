package statecluster

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// MachineCore is one automaton of a cluster: an immutable transition table
// plus a mutable current state.
//
// ProcessEvent, State, SetState and Reset are safe for concurrent use. The
// cluster worker is the only writer during normal operation; SetState and
// Reset are meant for callers that have paused the worker.
type MachineCore struct {
	id      int
	initial string
	table   map[string]map[string]Transition
	states  map[string]struct{}
	count   int

	mu      sync.RWMutex
	current string
}

type terminalPolicy struct {
	check bool
	allow bool
}

// newMachineCore compiles transitions into a table and validates it.
func newMachineCore(id int, initial string, transitions []Transition, policy terminalPolicy, logger *slog.Logger) (*MachineCore, error) {
	c := &MachineCore{
		id:      id,
		initial: initial,
		table:   make(map[string]map[string]Transition),
		states:  make(map[string]struct{}),
	}

	for _, t := range transitions {
		byEvent, ok := c.table[t.Origin]
		if !ok {
			byEvent = make(map[string]Transition)
			c.table[t.Origin] = byEvent
		}
		if _, exists := byEvent[t.Event]; exists {
			return nil, fmt.Errorf("event %q on state %q: %w", t.Event, t.Origin, ErrDuplicateTransition)
		}
		byEvent[t.Event] = t.clone()
		c.states[t.Origin] = struct{}{}
		c.states[t.Target] = struct{}{}
		c.count++
	}

	if policy.check {
		for _, t := range c.sortedTransitions() {
			if _, ok := c.table[t.Target]; ok {
				continue
			}
			if !policy.allow {
				return nil, fmt.Errorf("transition %q on state %q has target %q without outgoing transitions: %w",
					t.Event, t.Origin, t.Target, ErrTerminalState)
			}
			logger.Warn("transition targets a terminal state",
				"core", id, "origin", t.Origin, "event", t.Event, "target", t.Target)
		}
	}

	if initial == "" {
		return nil, fmt.Errorf("initial state not set: %w", ErrUnknownInitialState)
	}
	if _, ok := c.table[initial]; !ok {
		return nil, fmt.Errorf("initial state %q has no outgoing transitions: %w", initial, ErrUnknownInitialState)
	}

	c.current = initial
	return c, nil
}

// ProcessEvent applies event to the current state. Without a matching
// transition it returns nil and leaves the state unchanged.
func (c *MachineCore) ProcessEvent(event string) []Command {
	cmds, _ := c.fire(event)
	return cmds
}

// fire is ProcessEvent that also reports whether a transition was taken.
func (c *MachineCore) fire(event string) ([]Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.table[c.current][event]
	if !ok {
		return nil, false
	}
	c.current = t.Target
	return append([]Command(nil), t.Commands...), true
}

// State returns the current state.
func (c *MachineCore) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SetState forces the current state. The state must appear in the table.
func (c *MachineCore) SetState(state string) error {
	if !c.HasState(state) {
		return fmt.Errorf("core %d state %q: %w", c.id, state, ErrUnknownState)
	}
	c.mu.Lock()
	c.current = state
	c.mu.Unlock()
	return nil
}

// Reset returns the core to its initial state.
func (c *MachineCore) Reset() {
	c.mu.Lock()
	c.current = c.initial
	c.mu.Unlock()
}

// ID is the index of the core within its cluster.
func (c *MachineCore) ID() int { return c.id }

func (c *MachineCore) InitialState() string { return c.initial }

// HasState reports whether state is an origin or target of any transition.
func (c *MachineCore) HasState(state string) bool {
	_, ok := c.states[state]
	return ok
}

func (c *MachineCore) StateCount() int { return len(c.states) }

func (c *MachineCore) TransitionCount() int { return c.count }

// Transitions returns a copy of the table ordered by origin, then event.
func (c *MachineCore) Transitions() []Transition {
	out := c.sortedTransitions()
	for i := range out {
		out[i] = out[i].clone()
	}
	return out
}

func (c *MachineCore) sortedTransitions() []Transition {
	out := make([]Transition, 0, c.count)
	for _, byEvent := range c.table {
		for _, t := range byEvent {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Event < out[j].Event
	})
	return out
}

func (c *MachineCore) String() string {
	return fmt.Sprintf("core %d: %d states, %d transitions, initial %q, current %q",
		c.id, c.StateCount(), c.TransitionCount(), c.initial, c.State())
}

// Diagram renders the core as a Graphviz DOT fragment. Node names are
// prefixed with the core id so fragments of several cores can share one graph.
func (c *MachineCore) Diagram() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q [peripheries=2]\n", c.node(c.initial))
	for _, t := range c.sortedTransitions() {
		fmt.Fprintf(&b, "%q -> %q [label=%q]\n", c.node(t.Origin), c.node(t.Target), t.Event)
	}
	return b.String()
}

func (c *MachineCore) node(state string) string {
	return fmt.Sprintf("%d.%s", c.id, state)
}
