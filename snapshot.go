package statecluster

import (
	"fmt"
	"strings"
)

// SavedState is an immutable snapshot of the current state of every core of
// one cluster, in registration order. It can only be loaded back into the
// cluster that produced it.
type SavedState struct {
	clusterID string
	states    []string
}

// ClusterID returns the identity of the cluster the snapshot was taken from.
func (s SavedState) ClusterID() string { return s.clusterID }

// States returns a copy of the per-core states.
func (s SavedState) States() []string {
	return append([]string(nil), s.states...)
}

func (s SavedState) Len() int { return len(s.states) }

func (s SavedState) String() string {
	return fmt.Sprintf("%s[%s]", s.clusterID, strings.Join(s.states, ", "))
}
