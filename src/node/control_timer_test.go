package node

import (
	"testing"
	"time"
)

func TestControlTimer(t *testing.T) {
	timer := NewPeriodicControlTimer()
	go timer.Run(10 * time.Millisecond)
	defer timer.Shutdown()

	select {
	case <-timer.tickCh:
	case <-time.After(time.Second):
		t.Fatal("timer should tick")
	}

	// not re-armed until Reset
	select {
	case <-timer.tickCh:
		t.Fatal("timer should not tick before Reset")
	case <-time.After(50 * time.Millisecond):
	}

	timer.Reset(10 * time.Millisecond)
	select {
	case <-timer.tickCh:
	case <-time.After(time.Second):
		t.Fatal("timer should tick after Reset")
	}

	timer.Reset(30 * time.Millisecond)
	timer.Stop()
	select {
	case <-timer.tickCh:
		t.Fatal("stopped timer should not tick")
	case <-time.After(100 * time.Millisecond):
	}
}
