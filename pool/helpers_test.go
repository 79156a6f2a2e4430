package pool

import (
	"testing"
	"time"
)

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}

func closePool(t *testing.T, p *Pool) {
	t.Helper()
	if err := p.Close(5 * time.Second); err != nil {
		t.Errorf("close: %v", err)
	}
}

func checkInvariant(t *testing.T, s Stats) {
	t.Helper()
	if s.Idle < 0 || s.Idle > s.Total || s.Total > s.Max {
		t.Errorf("invariant broken: idle=%d total=%d max=%d", s.Idle, s.Total, s.Max)
	}
}
