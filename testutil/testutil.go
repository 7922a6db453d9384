// Package testutil holds helpers shared by the cluster tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comalice/statecluster/queue"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 2 * time.Second

// TakeN takes n commands from q, failing the test if they do not arrive
// within DefaultTimeout.
func TakeN(t testing.TB, q *queue.Queue[string], n int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	out := make([]string, 0, n)
	for len(out) < n {
		v, err := q.Take(ctx)
		require.NoError(t, err, "after %v", out)
		out = append(out, v)
	}
	return out
}

// RequireQuiet fails if anything shows up on q within d.
func RequireQuiet(t testing.TB, q *queue.Queue[string], d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	v, err := q.Take(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected command %q", v)
}
