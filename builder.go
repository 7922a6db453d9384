package statecluster

import "fmt"

// StateMachineBuilder collects core builders and compiles them into a
// cluster. Cores are numbered in the order they are added.
type StateMachineBuilder struct {
	cores      []*MachineCoreBuilder
	prioritise bool
	opts       options
}

// NewStateMachineBuilder creates an empty cluster builder.
func NewStateMachineBuilder(opts ...Option) *StateMachineBuilder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &StateMachineBuilder{opts: o}
}

// AddMachineCore registers a copy of b. Later changes to b do not affect
// this builder.
func (sb *StateMachineBuilder) AddMachineCore(b *MachineCoreBuilder) *StateMachineBuilder {
	if b == nil {
		sb.cores = append(sb.cores, nil)
		return sb
	}
	sb.cores = append(sb.cores, b.Copy())
	return sb
}

// SetPrioritiseInternalEvents makes the worker drain events emitted by
// transitions before taking the next external event.
func (sb *StateMachineBuilder) SetPrioritiseInternalEvents(prioritise bool) *StateMachineBuilder {
	sb.prioritise = prioritise
	return sb
}

// Build compiles every core and returns the cluster in the stopped state.
// The error of the first failing core is returned as a *BuildError.
func (sb *StateMachineBuilder) Build() (*StateMachine, error) {
	cores := make([]*MachineCore, len(sb.cores))
	for i, b := range sb.cores {
		if b == nil {
			return nil, &BuildError{Core: i, Err: fmt.Errorf("core builder: %w", ErrMissingField)}
		}
		c, err := b.build(i, sb.opts.logger)
		if err != nil {
			return nil, err
		}
		cores[i] = c
	}
	m := newStateMachine(cores, sb.prioritise, sb.opts)
	m.logger.Debug("cluster built", "cores", len(cores))
	return m, nil
}
