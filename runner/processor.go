// Package runner provides goroutine-backed helpers that sit on either side
// of a cluster: a CommandProcessor that drains the command queue into a
// Handler, and an EventGenerator that periodically injects events.
package runner

//go:generate mockgen -source=processor.go -destination=handler_mock.go -package=runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/uber-go/tally/v4"

	"github.com/comalice/statecluster/queue"
)

var (
	ErrAlreadyRunning = errors.New("runner already running")
	ErrNotRunning     = errors.New("runner not running")
	ErrNilArgument    = errors.New("nil argument")
)

// Handler receives the commands published by a cluster.
type Handler interface {
	HandleCommand(cmd string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(cmd string)

func (f HandlerFunc) HandleCommand(cmd string) { f(cmd) }

// CommandSource is implemented by *statecluster.StateMachine.
type CommandSource interface {
	CommandQueue() *queue.Queue[string]
}

// Option configures a CommandProcessor or EventGenerator.
type Option func(*options)

type options struct {
	logger *slog.Logger
	scope  tally.Scope
}

func defaultOptions() options {
	return options{logger: slog.Default(), scope: tally.NoopScope}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetricsScope(s tally.Scope) Option {
	return func(o *options) {
		if s != nil {
			o.scope = s
		}
	}
}

// CommandProcessor hands every command of a cluster to a Handler on its own
// goroutine. Commands are handled one at a time in queue order.
type CommandProcessor struct {
	queue   *queue.Queue[string]
	handler Handler
	logger  *slog.Logger
	handled tally.Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommandProcessor hooks h into the command queue of src.
func NewCommandProcessor(src CommandSource, h Handler, opts ...Option) (*CommandProcessor, error) {
	if src == nil || h == nil {
		return nil, ErrNilArgument
	}
	q := src.CommandQueue()
	if q == nil {
		return nil, errors.New("command queue is nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &CommandProcessor{
		queue:   q,
		handler: h,
		logger:  o.logger,
		handled: o.scope.Counter("commands_handled"),
	}, nil
}

// Start launches the processing goroutine.
func (p *CommandProcessor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyRunning
	}
	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	return nil
}

// Stop cancels the processor and waits for it to exit. A command that is
// being handled when Stop is called is handled to completion.
func (p *CommandProcessor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return ErrNotRunning
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	return nil
}

func (p *CommandProcessor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		cmd, err := p.queue.Take(ctx)
		if err != nil {
			return
		}
		p.handler.HandleCommand(cmd)
		p.handled.Inc(1)
		p.logger.Debug("command handled", "command", cmd)
	}
}
