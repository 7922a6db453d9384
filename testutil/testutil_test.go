package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comalice/statecluster/queue"
)

func TestTakeN(t *testing.T) {
	q := queue.New[string]()
	go func() {
		for _, s := range []string{"a", "b", "c"} {
			q.Put(s)
			time.Sleep(time.Millisecond)
		}
	}()
	require.Equal(t, []string{"a", "b", "c"}, TakeN(t, q, 3))
	RequireQuiet(t, q, 10*time.Millisecond)
}
