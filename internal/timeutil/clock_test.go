package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	before := time.Now().Unix()
	if got := Unix(RealClock{}); got < before {
		t.Errorf("Unix = %d, want >= %d", got, before)
	}
	if d := StartStopwatch(RealClock{}).Elapsed(); d < 0 {
		t.Errorf("Elapsed = %v", d)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	sw := StartStopwatch(c)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now = %v, want %v", got, start)
	}
	c.Advance(2500 * time.Microsecond)
	c.Advance(-time.Hour)
	if got := sw.Elapsed(); got != 2500*time.Microsecond {
		t.Errorf("Elapsed = %v, want 2.5ms", got)
	}
	if got := sw.Millis(); got != 2.5 {
		t.Errorf("Millis = %v, want 2.5", got)
	}

	c.Advance(90 * time.Second)
	if got, want := Unix(c), start.Unix()+90; got != want {
		t.Errorf("Unix = %d, want %d", got, want)
	}
}

func TestManualClock_Concurrent(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()
	if got := Unix(c); got != 8 {
		t.Errorf("Unix = %d, want 8", got)
	}
}
