package statecluster

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// maxArbitrarySet bounds the subset lattice of AddArbitrarySequence to what a
// machine word can index. Real callers stay far below it.
const maxArbitrarySet = 62

// MachineCoreBuilder accumulates the transitions of one automaton.
//
// Mutators record the first error they encounter and keep returning the
// builder for chaining; Build reports that error. A builder is not safe for
// concurrent use.
type MachineCoreBuilder struct {
	transitions   []Transition
	seen          map[transitionKey]struct{}
	initial       string
	allowTerminal bool
	checkTerminal bool
	err           error
}

type transitionKey struct {
	origin string
	event  string
}

// NewMachineCoreBuilder returns an empty builder with strict terminal-state
// checking.
func NewMachineCoreBuilder() *MachineCoreBuilder {
	return &MachineCoreBuilder{
		seen:          make(map[transitionKey]struct{}),
		checkTerminal: true,
	}
}

// AddTransition registers from --event--> to. The transition emits events
// (as internal events) followed by commands.
func (b *MachineCoreBuilder) AddTransition(from, event, to string, events, commands []string) *MachineCoreBuilder {
	if b.err != nil {
		return b
	}
	t, err := newTransition(from, event, to, events, commands)
	if err != nil {
		b.err = err
		return b
	}
	key := transitionKey{origin: from, event: event}
	if _, dup := b.seen[key]; dup {
		b.err = fmt.Errorf("event %q on state %q: %w", event, from, ErrDuplicateTransition)
		return b
	}
	b.seen[key] = struct{}{}
	b.transitions = append(b.transitions, t)
	return b
}

// AddFunnel registers one transition per origin in from, all sharing event,
// target and side effects.
func (b *MachineCoreBuilder) AddFunnel(from []string, event, to string, events, commands []string) *MachineCoreBuilder {
	if b.err != nil {
		return b
	}
	if len(from) == 0 {
		b.err = fmt.Errorf("funnel origins for event %q: %w", event, ErrEmptySet)
		return b
	}
	for _, origin := range from {
		b.AddTransition(origin, event, to, events, commands)
	}
	return b
}

// AddSequence chains the events of sequence from from to to through generated
// intermediate states. Only the last transition carries the side effects. It
// returns the generated states in chain order.
func (b *MachineCoreBuilder) AddSequence(from string, sequence []string, to string, events, commands []string) []string {
	if b.err != nil {
		return nil
	}
	if len(sequence) == 0 {
		b.err = fmt.Errorf("sequence from %q: %w", from, ErrEmptySet)
		return nil
	}

	prefix := generatedPrefix("seq", from)
	steps := make([]string, 0, len(sequence)-1)
	for i := 0; i < len(sequence)-1; i++ {
		steps = append(steps, fmt.Sprintf("%s:%d", prefix, i+1))
	}

	cur := from
	for i, event := range sequence {
		if i == len(sequence)-1 {
			b.AddTransition(cur, event, to, events, commands)
			break
		}
		b.AddTransition(cur, event, steps[i], nil, nil)
		cur = steps[i]
	}
	if b.err != nil {
		return nil
	}
	return steps
}

// AddArbitrarySequence accepts the events of set in any order. Every arrival
// order leads from from to to, and the side effects fire only on the
// transition that completes the set. Intermediate states are generated per
// subset of received events, so the state count grows as 2^len(set).
func (b *MachineCoreBuilder) AddArbitrarySequence(from string, set []string, to string, events, commands []string) []string {
	if b.err != nil {
		return nil
	}
	members := dedupe(set)
	n := len(members)
	switch {
	case n == 0:
		b.err = fmt.Errorf("arbitrary sequence from %q: %w", from, ErrEmptySet)
		return nil
	case n > maxArbitrarySet:
		b.err = fmt.Errorf("arbitrary sequence from %q with %d events: %w", from, n, ErrSetTooLarge)
		return nil
	}

	prefix := generatedPrefix("arb", from)
	full := uint64(1)<<n - 1
	name := func(mask uint64) string {
		switch mask {
		case 0:
			return from
		case full:
			return to
		}
		// One state per subset, named by its mask.
		return fmt.Sprintf("%s:%x", prefix, mask)
	}

	var steps []string
	for mask := uint64(0); mask < full; mask++ {
		if mask != 0 {
			steps = append(steps, name(mask))
		}
		for i, event := range members {
			bit := uint64(1) << i
			if mask&bit != 0 {
				continue
			}
			next := mask | bit
			if next == full {
				b.AddTransition(name(mask), event, to, events, commands)
			} else {
				b.AddTransition(name(mask), event, name(next), nil, nil)
			}
		}
	}
	if b.err != nil {
		return nil
	}
	return steps
}

func (b *MachineCoreBuilder) SetInitialState(state string) *MachineCoreBuilder {
	b.initial = state
	return b
}

// SetAllowTerminalStates turns terminal targets from a build error into a
// logged warning. It has no effect when the check is disabled.
func (b *MachineCoreBuilder) SetAllowTerminalStates(allow bool) *MachineCoreBuilder {
	b.allowTerminal = allow
	return b
}

// SetCheckForTerminalStates enables or disables terminal-state verification
// at build time.
func (b *MachineCoreBuilder) SetCheckForTerminalStates(check bool) *MachineCoreBuilder {
	b.checkTerminal = check
	return b
}

// Err returns the first error recorded by a mutator, if any.
func (b *MachineCoreBuilder) Err() error {
	return b.err
}

// Copy returns an independent builder with the same content.
func (b *MachineCoreBuilder) Copy() *MachineCoreBuilder {
	c := &MachineCoreBuilder{
		transitions:   make([]Transition, len(b.transitions)),
		seen:          make(map[transitionKey]struct{}, len(b.seen)),
		initial:       b.initial,
		allowTerminal: b.allowTerminal,
		checkTerminal: b.checkTerminal,
		err:           b.err,
	}
	for i, t := range b.transitions {
		c.transitions[i] = t.clone()
	}
	for k := range b.seen {
		c.seen[k] = struct{}{}
	}
	return c
}

// Build validates the accumulated definition and compiles it into a core
// with the given id. Warnings are logged to slog.Default().
func (b *MachineCoreBuilder) Build(coreID int) (*MachineCore, error) {
	return b.build(coreID, slog.Default())
}

func (b *MachineCoreBuilder) build(coreID int, logger *slog.Logger) (*MachineCore, error) {
	if b.err != nil {
		return nil, &BuildError{Core: coreID, Err: b.err}
	}
	policy := terminalPolicy{check: b.checkTerminal, allow: b.allowTerminal}
	core, err := newMachineCore(coreID, b.initial, b.transitions, policy, logger)
	if err != nil {
		return nil, &BuildError{Core: coreID, Err: err}
	}
	return core, nil
}

func generatedPrefix(kind, from string) string {
	return fmt.Sprintf("%s[%s]%s", kind, from, uuid.NewString())
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
