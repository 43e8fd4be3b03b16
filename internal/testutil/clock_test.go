package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clockBase = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestClock_StartsAtBase(t *testing.T) {
	clock := NewClock(clockBase, time.Second)

	assert.Equal(t, clockBase, clock.Current())
	assert.Equal(t, clockBase, clock.Now())
}

func TestClock_AdvancesByStep(t *testing.T) {
	clock := NewClock(clockBase, time.Second)

	assert.Equal(t, clockBase, clock.Now())
	assert.Equal(t, clockBase.Add(time.Second), clock.Now())
	assert.Equal(t, clockBase.Add(2*time.Second), clock.Now())

	// Current peeks without advancing.
	assert.Equal(t, clockBase.Add(3*time.Second), clock.Current())
	assert.Equal(t, clockBase.Add(3*time.Second), clock.Now())
}

func TestClock_Reset(t *testing.T) {
	clock := NewClock(clockBase, time.Minute)

	clock.Now()
	clock.Now()
	clock.Reset()

	assert.Equal(t, clockBase, clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(clockBase, time.Second)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}
	wg.Wait()

	// Every instant is handed out exactly once.
	seen := make(map[time.Time]bool)
	for i := range results {
		for _, instant := range results[i] {
			require.False(t, seen[instant], "instant %v handed out twice", instant)
			seen[instant] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
