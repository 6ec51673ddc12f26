package orchestrator

import (
	"log/slog"
	"time"
)

// Supervisor periodically sweeps the registry: jobs past their input deadline
// are expired, and stale terminal jobs older than the retention window are
// pruned. Expiry correctness does not depend on sweep frequency; a deadline
// that passes between ticks is caught on the next one.
type Supervisor struct {
	mgr       *Manager
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	stop      chan struct{}
	done      chan struct{}
}

// NewSupervisor creates a supervisor over a manager. A non-positive interval
// defaults to 15 seconds; a non-positive retention defaults to one hour.
func NewSupervisor(mgr *Manager, interval, retention time.Duration, logger *slog.Logger) *Supervisor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if retention <= 0 {
		retention = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		mgr:       mgr,
		interval:  interval,
		retention: retention,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.
func (s *Supervisor) Start() {
	go s.loop()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Supervisor) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if n := s.mgr.ExpireOverdue(now); n > 0 {
				s.logger.Info("expired overdue jobs", "count", n)
			}
			if n := s.mgr.PruneTerminal(s.retention); n > 0 {
				s.logger.Debug("pruned terminal jobs", "count", n)
			}
		}
	}
}
