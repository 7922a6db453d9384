package statecluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uber-go/tally/v4"

	"github.com/comalice/statecluster/queue"
)

// event is an entry of the external event queue. Internal marks events
// re-injected by a transition while internal events are not prioritised.
type event struct {
	name     string
	internal bool
}

// StateMachine is a cluster of cores driven by one event stream.
//
// Event is safe to call from any goroutine at any time. Start, Stop, Reset,
// CurrentState and LoadState are serialized against each other; the last
// three pause a running worker for their duration and resume it afterwards.
type StateMachine struct {
	id         string
	cores      []*MachineCore
	prioritise bool

	events   *queue.Queue[event]
	internal *queue.Queue[string]
	commands *queue.Queue[string]

	logger  *slog.Logger
	metrics clusterMetrics

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

type clusterMetrics struct {
	events      tally.Counter
	internal    tally.Counter
	commands    tally.Counter
	transitions tally.Counter
	latency     tally.Timer
	starts      tally.Counter
	stops       tally.Counter
	resets      tally.Counter
}

func newClusterMetrics(scope tally.Scope) clusterMetrics {
	return clusterMetrics{
		events:      scope.Counter("events_processed"),
		internal:    scope.Counter("internal_events"),
		commands:    scope.Counter("commands_emitted"),
		transitions: scope.Counter("transitions_taken"),
		latency:     scope.Timer("event_latency"),
		starts:      scope.Counter("starts"),
		stops:       scope.Counter("stops"),
		resets:      scope.Counter("resets"),
	}
}

func newStateMachine(cores []*MachineCore, prioritise bool, o options) *StateMachine {
	id := uuid.NewString()
	return &StateMachine{
		id:         id,
		cores:      cores,
		prioritise: prioritise,
		events:     queue.New[event](),
		internal:   queue.New[string](),
		commands:   queue.New[string](),
		logger:     o.logger.With("cluster", id),
		metrics:    newClusterMetrics(o.scope),
	}
}

// Event enqueues e on the external event queue. It never blocks and is
// accepted whether or not the worker is running.
func (m *StateMachine) Event(e string) {
	m.events.Put(event{name: e})
}

// CommandQueue returns the queue commands are published on.
func (m *StateMachine) CommandQueue() *queue.Queue[string] {
	return m.commands
}

// UUID returns the identity of this cluster.
func (m *StateMachine) UUID() string {
	return m.id
}

// Start spawns the worker. The worker stops when Stop is called or ctx is
// cancelled. Workers restarted by Reset, CurrentState or LoadState derive
// from the same ctx.
func (m *StateMachine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return ErrAlreadyRunning
	}
	m.baseCtx = ctx
	m.startLocked()
	m.metrics.starts.Inc(1)
	m.logger.Info("worker started", "cores", len(m.cores), "prioritise", m.prioritise)
	return nil
}

// Stop cancels the worker and blocks until it has exited. The event being
// dispatched when Stop is called is delivered to every core first.
func (m *StateMachine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return ErrNotRunning
	}
	m.stopLocked()
	m.metrics.stops.Inc(1)
	m.logger.Info("worker stopped")
	return nil
}

// Running reports whether a worker has been started and not yet stopped.
func (m *StateMachine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Reset pauses the worker, discards every external event enqueued before
// Reset was called together with all internal events and pending commands,
// resets every core, and resumes the worker. Events enqueued while Reset runs
// are kept and processed first after the restart.
func (m *StateMachine) Reset() {
	mark := m.events.Mark()

	m.mu.Lock()
	defer m.mu.Unlock()

	running := m.pauseLocked()
	m.resetLocked(mark)
	m.resumeLocked(running)
	m.metrics.resets.Inc(1)
	m.logger.Info("cluster reset", "running", running)
}

// CurrentState returns a snapshot of every core's state.
func (m *StateMachine) CurrentState() SavedState {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := m.pauseLocked()
	states := make([]string, len(m.cores))
	for i, c := range m.cores {
		states[i] = c.State()
	}
	m.resumeLocked(running)

	return SavedState{clusterID: m.id, states: states}
}

// LoadState restores a snapshot taken from this cluster. With clearQueues
// the cluster is fully reset first, which also empties all queues. Nothing is
// modified when the snapshot is rejected.
func (m *StateMachine) LoadState(s SavedState, clearQueues bool) error {
	mark := m.events.Mark()
	if s.clusterID != m.id {
		return fmt.Errorf("cluster %s, snapshot %q: %w", m.id, s.clusterID, ErrForeignState)
	}
	if len(s.states) != len(m.cores) {
		return fmt.Errorf("%d states for %d cores: %w", len(s.states), len(m.cores), ErrStateShape)
	}
	for i, state := range s.states {
		if !m.cores[i].HasState(state) {
			return fmt.Errorf("core %d state %q: %w", i, state, ErrUnknownState)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	running := m.pauseLocked()
	if clearQueues {
		m.resetLocked(mark)
	}
	for i, state := range s.states {
		// Validated above; cores never lose states.
		_ = m.cores[i].SetState(state)
	}
	m.resumeLocked(running)
	m.logger.Info("state loaded", "states", s.states, "cleared", clearQueues)
	return nil
}

// ExtractDiagram renders all cores as one Graphviz DOT document.
func (m *StateMachine) ExtractDiagram() string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, c := range m.cores {
		b.WriteString(c.Diagram())
	}
	b.WriteString("}\n")
	return b.String()
}

// Cores returns the number of cores.
func (m *StateMachine) Cores() int { return len(m.cores) }

// Core returns the core registered at index i.
func (m *StateMachine) Core(i int) *MachineCore { return m.cores[i] }

func (m *StateMachine) startLocked() {
	ctx := m.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

func (m *StateMachine) stopLocked() {
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

func (m *StateMachine) pauseLocked() bool {
	if m.cancel == nil {
		return false
	}
	m.stopLocked()
	return true
}

func (m *StateMachine) resumeLocked(running bool) {
	if running {
		m.startLocked()
	}
}

// resetLocked must only be called while the worker is paused.
func (m *StateMachine) resetLocked(mark uint64) {
	dropped := m.events.DiscardBefore(mark)
	dropped += m.events.DiscardIf(func(e event) bool { return e.internal })
	dropped += m.internal.Clear()
	cleared := m.commands.Clear()
	for _, c := range m.cores {
		c.Reset()
	}
	m.logger.Debug("queues cleared", "events", dropped, "commands", cleared)
}

// run is the worker loop. Cancellation is only observed between events.
func (m *StateMachine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		e, ok := m.next(ctx)
		if !ok {
			return
		}
		m.dispatch(e)
	}
}

func (m *StateMachine) next(ctx context.Context) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	if m.prioritise {
		if e, ok := m.internal.TryTake(); ok {
			return e, true
		}
	}
	e, err := m.events.Take(ctx)
	if err != nil {
		return "", false
	}
	return e.name, true
}

// dispatch feeds e to every core in registration order and routes the
// emitted commands.
func (m *StateMachine) dispatch(e string) {
	start := time.Now()
	for _, c := range m.cores {
		cmds, ok := c.fire(e)
		if !ok {
			continue
		}
		m.metrics.transitions.Inc(1)
		for _, cmd := range cmds {
			switch cmd.Kind {
			case KindEvent:
				m.metrics.internal.Inc(1)
				if m.prioritise {
					m.internal.Put(cmd.Payload)
				} else {
					m.events.Put(event{name: cmd.Payload, internal: true})
				}
			case KindCommand:
				m.metrics.commands.Inc(1)
				m.commands.Put(cmd.Payload)
			}
		}
	}
	m.metrics.events.Inc(1)
	m.metrics.latency.Record(time.Since(start))
	m.logger.Debug("event dispatched", "event", e)
}
