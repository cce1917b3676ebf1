package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestFourthCallWithinWindowRejected(t *testing.T) {
	clock := newClock()
	l := New(3, 60*time.Second).WithClock(clock.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("actor-1"), "call %d", i+1)
		clock.Advance(10 * time.Second)
	}
	assert.False(t, l.Allow("actor-1"))
}

func TestWindowSlides(t *testing.T) {
	clock := newClock()
	l := New(3, 60*time.Second).WithClock(clock.Now)

	assert.True(t, l.Allow("a"))
	clock.Advance(20 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	// first call is now older than the window
	clock.Advance(41 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestBoundaryIsStillInsideWindow(t *testing.T) {
	clock := newClock()
	l := New(1, time.Minute).WithClock(clock.Now)

	assert.True(t, l.Allow("a"))
	clock.Advance(time.Minute)
	assert.False(t, l.Allow("a"))
	clock.Advance(time.Millisecond)
	assert.True(t, l.Allow("a"))
}

func TestRejectedCallsAreNotRecorded(t *testing.T) {
	clock := newClock()
	l := New(2, time.Minute).WithClock(clock.Now)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	for i := 0; i < 5; i++ {
		clock.Advance(5 * time.Second)
		assert.False(t, l.Allow("a"))
	}
	clock.Advance(36 * time.Second)
	assert.True(t, l.Allow("a"))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestPrune(t *testing.T) {
	clock := newClock()
	l := New(5, time.Minute).WithClock(clock.Now)
	l.Allow("old")
	clock.Advance(2 * time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Keys())
}

func TestConcurrentSameKey(t *testing.T) {
	l := New(120, 5*time.Minute)
	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("subject-1") {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(120), allowed)
}

func TestConcurrentManyKeys(t *testing.T) {
	l := New(3, time.Minute)
	var allowed int64
	var wg sync.WaitGroup
	for k := 0; k < 20; k++ {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				if l.Allow(key) {
					atomic.AddInt64(&allowed, 1)
				}
			}(fmt.Sprintf("actor-%d", k))
		}
	}
	wg.Wait()
	assert.Equal(t, int64(60), allowed)
}
