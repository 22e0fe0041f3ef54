// ABOUTME: Tests for the event dedupe cache
// ABOUTME: Covers duplicate detection, TTL expiry, size eviction, concurrency

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAndMark_NewThenDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark("evt-1"), "first sighting is not a duplicate")
	assert.True(t, c.CheckAndMark("evt-1"), "second sighting is a duplicate")
	assert.False(t, c.CheckAndMark("evt-2"))
}

func TestCheckAndMark_ExpiredEntryIsNew(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark("evt-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.CheckAndMark("evt-1"), "expired ID should read as new")
}

func TestEviction_OldestGoesFirst(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := range 3 {
		c.CheckAndMark(fmt.Sprintf("evt-%d", i))
	}
	assert.Equal(t, 3, c.Len())

	// Inserting a fourth evicts evt-0
	c.CheckAndMark("evt-3")
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.CheckAndMark("evt-0"), "evicted ID should read as new")
}

func TestCheckAndMark_Concurrent(t *testing.T) {
	c := New(time.Minute, 10_000)
	defer c.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0

	for range 20 {
		wg.Go(func() {
			for i := range 100 {
				if !c.CheckAndMark(fmt.Sprintf("evt-%d", i)) {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}
		})
	}
	wg.Wait()

	// Each distinct ID is "new" exactly once across all goroutines.
	assert.Equal(t, 100, firsts)
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
