package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	_ Ticker = (*RealTicker)(nil)
	_ Ticker = (*MockTicker)(nil)
)

// TestRealTickerBasic tests that RealTicker fires repeatedly.
func TestRealTickerBasic(t *testing.T) {
	ticker := NewRealTicker()
	defer ticker.Stop()

	ticker.Start(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case <-ticker.C():
			// Ticked as expected
		case <-time.After(300 * time.Millisecond):
			t.Fatalf("tick %d did not arrive", i)
		}
	}
}

// TestRealTickerStop tests that Stop prevents further ticks.
func TestRealTickerStop(t *testing.T) {
	ticker := NewRealTicker()

	ticker.Start(100 * time.Millisecond)
	ticker.Stop()

	select {
	case <-ticker.C():
		t.Fatal("ticker should not fire after Stop()")
	case <-time.After(200 * time.Millisecond):
		// Expected - ticker was stopped
	}
}

// TestRealTickerRestart tests that a second Start replaces the interval.
func TestRealTickerRestart(t *testing.T) {
	ticker := NewRealTicker()
	defer ticker.Stop()

	ticker.Start(500 * time.Millisecond)
	ticker.Start(30 * time.Millisecond)

	start := time.Now()
	select {
	case <-ticker.C():
		assert.Less(t, time.Since(start), 300*time.Millisecond, "ticker should have restarted")
	case <-time.After(600 * time.Millisecond):
		t.Fatal("ticker did not fire after restart")
	}
}

// TestRealTickerDropsUnconsumedTicks tests that a slow consumer sees at most
// one pending tick.
func TestRealTickerDropsUnconsumedTicks(t *testing.T) {
	ticker := NewRealTicker()
	defer ticker.Stop()

	ticker.Start(5 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.LessOrEqual(t, len(ticker.C()), 1)
}

// TestRealTickerConcurrency tests that RealTicker is safe for concurrent use.
func TestRealTickerConcurrency(t *testing.T) {
	ticker := NewRealTicker()
	const N = 100

	var wg sync.WaitGroup
	wg.Add(N)

	ticker.Start(10 * time.Millisecond)

	for i := 0; i < N; i++ {
		go func(idx int) {
			defer wg.Done()
			if idx%2 == 0 {
				ticker.Start(time.Duration(5+idx%10) * time.Millisecond)
			} else {
				ticker.Stop()
			}
		}(i)
	}

	wg.Wait()
	ticker.Stop()
}

// TestMockTickerBasic tests basic MockTicker functionality.
func TestMockTickerBasic(t *testing.T) {
	ticker := NewMockTicker()

	ticker.Start(time.Second)

	assert.True(t, ticker.IsRunning())
	assert.Equal(t, time.Second, ticker.Interval())
	assert.Equal(t, 1, ticker.Starts())

	// Should not fire automatically
	select {
	case <-ticker.C():
		t.Fatal("MockTicker should not fire automatically")
	case <-time.After(20 * time.Millisecond):
	}

	assert.True(t, ticker.Fire())

	select {
	case <-ticker.C():
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Fire() did not send to channel")
	}
}

// TestMockTickerStop tests that Stop prevents firing.
func TestMockTickerStop(t *testing.T) {
	ticker := NewMockTicker()

	ticker.Start(time.Second)
	ticker.Stop()
	assert.False(t, ticker.IsRunning())

	assert.False(t, ticker.Fire())
	assert.Len(t, ticker.C(), 0)
}

// TestMockTickerFireWhenFull tests that a second Fire without a receive is
// dropped instead of blocking.
func TestMockTickerFireWhenFull(t *testing.T) {
	ticker := NewMockTicker()
	ticker.Start(time.Second)

	assert.True(t, ticker.Fire())
	assert.False(t, ticker.Fire())

	<-ticker.C()
	assert.True(t, ticker.Fire())
}

// TestMockTickerChannelDrain tests that the channel is drained on Start.
func TestMockTickerChannelDrain(t *testing.T) {
	ticker := NewMockTicker()

	ticker.Start(time.Second)
	ticker.Fire()
	ticker.Start(2 * time.Second)

	assert.Len(t, ticker.C(), 0)
	assert.Equal(t, 2*time.Second, ticker.Interval())
	assert.Equal(t, 2, ticker.Starts())
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	assert.Equal(t, start, clock.Now())

	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())

	later := start.Add(time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	now := RealClock{}.Now()
	assert.False(t, now.Before(before))
}
