package statecluster

import (
	"log/slog"

	"github.com/uber-go/tally/v4"
)

// Option configures a StateMachineBuilder and the clusters it builds.
type Option func(*options)

type options struct {
	logger *slog.Logger
	scope  tally.Scope
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		scope:  tally.NoopScope,
	}
}

// WithLogger sets the logger for build warnings and worker lifecycle.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsScope sets the tally scope the cluster reports to. The cluster
// adds no tags of its own.
func WithMetricsScope(s tally.Scope) Option {
	return func(o *options) {
		if s != nil {
			o.scope = s
		}
	}
}
