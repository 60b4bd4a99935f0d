package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBase_ConcurrentPutsAreExclusive checks that concurrent writers to distinct keys
// never lose an update, and the final map reflects every write exactly once (the mutex in
// base guarantees put/delete are mutually exclusive with each other and with get/list).
func TestBase_ConcurrentPutsAreExclusive(t *testing.T) {
	b := newBase[int, string]()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			b.put(i, "v")
		}(i)
	}
	wg.Wait()

	assert.Len(t, b.list(), n)
	for i := 0; i < n; i++ {
		v, ok := b.get(i)
		require.True(t, ok)
		assert.Equal(t, "v", v)
	}
}

// TestBase_PutDeleteRaceLeavesConsistentFinalState covers exclusivity across a put/delete race
// on the same key: after both goroutines finish, get() reports the key either absent or holding
// the value the racing put wrote.
func TestBase_PutDeleteRaceLeavesConsistentFinalState(t *testing.T) {
	b := newBase[string, int]()
	b.put("k", 0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.put("k", 1) }()
	go func() { defer wg.Done(); b.delete("k") }()
	wg.Wait()

	// Whichever of put/delete ran last wins; both are valid final states, but nothing else is.
	v, ok := b.get("k")
	if ok {
		assert.Equal(t, 1, v)
	}
}

// TestBase_Subscribe_EventsArePerKeyOrdered checks that a subscriber's observed event
// sequence for any one key is a prefix-consistent, in-order view of the write sequence - insert
// before remove, never reordered, for writes serialized through put/delete.
func TestBase_Subscribe_EventsArePerKeyOrdered(t *testing.T) {
	b := newBase[string, int]()
	ch, cancel := b.subscribe()
	defer cancel()

	b.put("a", 1)
	b.put("a", 2)
	b.delete("a")

	ev1 := <-ch
	ev2 := <-ch
	ev3 := <-ch

	assert.Equal(t, Inserted, ev1.Kind)
	assert.Equal(t, 1, ev1.Value)
	assert.Equal(t, Inserted, ev2.Kind)
	assert.Equal(t, 2, ev2.Value)
	assert.Equal(t, Removed, ev3.Kind)
	assert.Equal(t, 2, ev3.Value)
}

// TestBase_Subscribe_CancelStopsDelivery ensures a cancelled subscription's channel is closed
// and receives no further events, so a caller that forgets to drain it cannot leak.
func TestBase_Subscribe_CancelStopsDelivery(t *testing.T) {
	b := newBase[string, int]()
	ch, cancel := b.subscribe()
	cancel()

	b.put("a", 1)

	_, open := <-ch
	assert.False(t, open)
}

// TestBase_Subscribe_MultipleSubscribersEachSeeEveryEvent checks the fan-out contract: every
// live subscriber observes every event independently of the others.
func TestBase_Subscribe_MultipleSubscribersEachSeeEveryEvent(t *testing.T) {
	b := newBase[string, int]()
	ch1, cancel1 := b.subscribe()
	defer cancel1()
	ch2, cancel2 := b.subscribe()
	defer cancel2()

	b.put("a", 1)

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, ev1, ev2)
}
