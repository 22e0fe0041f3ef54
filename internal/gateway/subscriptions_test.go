// ABOUTME: Tests for the subscription index
// ABOUTME: Covers the empty-set invariant, idempotence, and concurrent mutation

package gateway

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptions_SubscribeAndLookup(t *testing.T) {
	s := NewSubscriptions()

	s.Subscribe("a1", "c1")
	s.Subscribe("a1", "c2")

	assert.ElementsMatch(t, []string{"c1", "c2"}, s.SubscribersOf("a1"))
	assert.Equal(t, 2, s.CountFor("a1"))
	assert.Empty(t, s.SubscribersOf("a2"))
}

func TestSubscriptions_SubscribeIdempotent(t *testing.T) {
	s := NewSubscriptions()

	s.Subscribe("a1", "c1")
	s.Subscribe("a1", "c1")

	assert.Equal(t, 1, s.CountFor("a1"))
}

func TestSubscriptions_EmptyEntryIsDeleted(t *testing.T) {
	s := NewSubscriptions()

	s.Subscribe("a1", "c1")
	s.Subscribe("a1", "c2")
	assert.True(t, s.hasAgent("a1"))

	s.Unsubscribe("a1", "c1")
	assert.True(t, s.hasAgent("a1"), "entry stays while set is non-empty")

	s.Unsubscribe("a1", "c2")
	assert.False(t, s.hasAgent("a1"), "entry must vanish with its last subscriber")
	assert.Equal(t, 0, s.CountFor("a1"))
}

func TestSubscriptions_UnsubscribeNeverSubscribedIsNoOp(t *testing.T) {
	s := NewSubscriptions()

	s.Unsubscribe("a1", "c1")
	assert.False(t, s.hasAgent("a1"))

	s.Subscribe("a1", "c1")
	s.Unsubscribe("a1", "c-other")
	assert.Equal(t, 1, s.CountFor("a1"))
}

func TestSubscriptions_InvariantHoldsAcrossSequences(t *testing.T) {
	s := NewSubscriptions()

	// Interleaved adds and removes across agents; afterwards an agent has an
	// entry iff it has at least one subscriber.
	s.Subscribe("a1", "c1")
	s.Subscribe("a2", "c1")
	s.Subscribe("a2", "c2")
	s.Unsubscribe("a1", "c1")
	s.Unsubscribe("a2", "c2")
	s.Subscribe("a3", "c3")
	s.Unsubscribe("a3", "c3")
	s.Unsubscribe("a3", "c3")

	assert.False(t, s.hasAgent("a1"))
	assert.True(t, s.hasAgent("a2"))
	assert.False(t, s.hasAgent("a3"))
	assert.ElementsMatch(t, []string{"c1"}, s.SubscribersOf("a2"))
}

func TestSubscriptions_SnapshotIsSafeDuringMutation(t *testing.T) {
	s := NewSubscriptions()
	for i := range 100 {
		s.Subscribe("a1", fmt.Sprintf("c%d", i))
	}

	snapshot := s.SubscribersOf("a1")
	for _, id := range snapshot {
		s.Unsubscribe("a1", id)
	}

	assert.Len(t, snapshot, 100)
	assert.False(t, s.hasAgent("a1"))
}

func TestSubscriptions_Concurrent(t *testing.T) {
	s := NewSubscriptions()

	var wg sync.WaitGroup
	for i := range 20 {
		connID := fmt.Sprintf("c%d", i)
		wg.Go(func() {
			for range 100 {
				s.Subscribe("a1", connID)
				_ = s.SubscribersOf("a1")
				s.Unsubscribe("a1", connID)
			}
		})
	}
	wg.Wait()

	assert.False(t, s.hasAgent("a1"))
}
