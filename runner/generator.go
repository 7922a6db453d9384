package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/uber-go/tally/v4"
)

// ErrNoEvent is recorded when a Supplier fails to produce an event.
var ErrNoEvent = errors.New("supplier produced no event")

// EventSink is implemented by *statecluster.StateMachine.
type EventSink interface {
	Event(e string)
}

// Supplier produces the next event. Returning ok == false or an empty event
// is a protocol violation that disables the generator.
type Supplier func() (event string, ok bool)

// EventGenerator feeds a sink with an event every delay.
type EventGenerator struct {
	sink      EventSink
	supply    Supplier
	delay     time.Duration
	logger    *slog.Logger
	generated tally.Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	errMu sync.Mutex
	err   error
}

// NewEventGenerator repeats the fixed event e.
func NewEventGenerator(sink EventSink, e string, delay time.Duration, opts ...Option) (*EventGenerator, error) {
	if e == "" {
		return nil, errors.New("event is empty")
	}
	return NewEventGeneratorFunc(sink, func() (string, bool) { return e, true }, delay, opts...)
}

// NewEventGeneratorFunc draws every event from supply.
func NewEventGeneratorFunc(sink EventSink, supply Supplier, delay time.Duration, opts ...Option) (*EventGenerator, error) {
	if sink == nil || supply == nil {
		return nil, ErrNilArgument
	}
	if delay <= 0 {
		return nil, errors.New("delay must be positive")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &EventGenerator{
		sink:      sink,
		supply:    supply,
		delay:     delay,
		logger:    o.logger,
		generated: o.scope.Counter("events_generated"),
	}, nil
}

// Start launches the generator. The first event is injected immediately.
// A generator that disabled itself can be started again.
func (g *EventGenerator) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aliveLocked() {
		return ErrAlreadyRunning
	}
	g.releaseLocked()
	g.setErr(nil)

	var ctx context.Context
	ctx, g.cancel = context.WithCancel(context.Background())
	g.done = make(chan struct{})
	go g.loop(ctx, g.done)
	return nil
}

// Stop cancels the generator and waits for it to exit. It returns
// ErrNotRunning if the generator is not running, including when it disabled
// itself.
func (g *EventGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.aliveLocked() {
		g.releaseLocked()
		return ErrNotRunning
	}
	g.cancel()
	<-g.done
	g.releaseLocked()
	return nil
}

// Running reports whether the generator goroutine is active.
func (g *EventGenerator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.aliveLocked()
}

// Err returns the protocol violation that disabled the generator, if any.
// It is cleared by Start.
func (g *EventGenerator) Err() error {
	g.errMu.Lock()
	defer g.errMu.Unlock()
	return g.err
}

func (g *EventGenerator) setErr(err error) {
	g.errMu.Lock()
	g.err = err
	g.errMu.Unlock()
}

func (g *EventGenerator) aliveLocked() bool {
	if g.done == nil {
		return false
	}
	select {
	case <-g.done:
		return false
	default:
		return true
	}
}

func (g *EventGenerator) releaseLocked() {
	if g.cancel != nil {
		g.cancel()
	}
	g.cancel = nil
	g.done = nil
}

func (g *EventGenerator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		// Stop may have won the race against the timer.
		if ctx.Err() != nil {
			return
		}

		e, ok := g.supply()
		if !ok || e == "" {
			g.setErr(ErrNoEvent)
			g.logger.Error("event generator disabled", "error", ErrNoEvent)
			return
		}
		g.sink.Event(e)
		g.generated.Inc(1)
		timer.Reset(g.delay)
	}
}
