package orchestrator

import (
	"testing"
	"time"
)

func TestSupervisorExpiresOverdueJobs(t *testing.T) {
	cfg := testConfig()
	cfg.InputDeadline = 100 * time.Millisecond
	m := NewManager(&fakeDriver{}, newMemStore(), cfg)
	defer m.Drain()

	sup := NewSupervisor(m, 10*time.Millisecond, time.Hour, nil)
	sup.Start()
	defer sup.Stop()

	start, err := m.StartLogin("+15551234567", false, nil)
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	waitForState(t, m, start.JobID, StateWaitingOTP)

	snap := waitForState(t, m, start.JobID, StateExpired)
	if snap.Err == nil || snap.Err.Kind != ErrKindTimeout {
		t.Errorf("error = %+v, want kind %s", snap.Err, ErrKindTimeout)
	}
}

func TestSupervisorStopTerminates(t *testing.T) {
	m := NewManager(&fakeDriver{}, newMemStore(), testConfig())
	defer m.Drain()

	sup := NewSupervisor(m, 5*time.Millisecond, time.Hour, nil)
	sup.Start()

	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
