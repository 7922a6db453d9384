// Package statecluster runs several independent finite-state automata
// ("cores") from one shared event stream.
//
// Cores are described with a MachineCoreBuilder: transitions map a
// (state, event) pair to a target state and an ordered list of side effects.
// A side effect is either an event, which is fed back into the cluster, or a
// command, which is published on the cluster's command queue.
//
// A StateMachineBuilder compiles the cores into a StateMachine. One worker
// goroutine takes events from the queue and delivers each event to every core
// in registration order. A core without a matching transition ignores the
// event.
//
// # Example
//
//	light := statecluster.NewMachineCoreBuilder().
//		AddTransition("red", "tick", "green", nil, []string{"go"}).
//		AddTransition("green", "tick", "red", nil, []string{"stop"}).
//		SetInitialState("red")
//
//	m, err := statecluster.NewStateMachineBuilder().
//		AddMachineCore(light).
//		Build()
//	if err != nil {
//		return err
//	}
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
//	defer m.Stop()
//
//	m.Event("tick")
//	cmd, _ := m.CommandQueue().Take(ctx) // "go"
//
// # Snapshots
//
// CurrentState captures every core's state and LoadState writes it back.
// Both pause the worker for their duration, so a snapshot never observes a
// half-dispatched event. A SavedState is tied to the cluster that produced it.
//
// # Internal event priority
//
// By default events emitted by transitions are appended to the external
// event queue. With SetPrioritiseInternalEvents(true) they go to a separate
// queue that the worker drains before taking the next external event.
package statecluster
