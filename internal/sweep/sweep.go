package sweep

import (
	"context"
	"fmt"
	"time"

	"scanwarden/internal/config"
	"scanwarden/internal/ledger"
	"scanwarden/internal/progress"
)

// Sweep detects ledger entries stuck in a running state past their
// stage-dependent deadline and force-resolves them. A stale heartbeat is
// taken as evidence the execution's writer is gone, so the sweep is the only
// other party ever allowed to write such a record.
//
// This is the system's sole recovery path for a crashed or killed background
// worker; the orchestrator has no self-healing once a job is dispatched.
type Sweep struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	hub    *progress.Hub

	// Now is swappable for tests.
	Now func() time.Time

	// Logf receives per-run diagnostics.
	Logf func(format string, args ...interface{})
}

// New builds a sweep over the given ledger.
func New(cfg *config.Config, ldg *ledger.Ledger, hub *progress.Hub) *Sweep {
	return &Sweep{
		cfg:    cfg,
		ledger: ldg,
		hub:    hub,
		Now:    time.Now,
		Logf:   func(string, ...interface{}) {},
	}
}

// Run executes the sweep on its configured interval until the context is
// cancelled. Stateless between runs.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(); err != nil {
				s.Logf("sweep failed: %v", err)
			}
		}
	}
}

// RunOnce force-terminates every execution whose heartbeat is older than its
// stage deadline and publishes exactly one error and one done event for each,
// so still-listening subscribers are not left hanging.
func (s *Sweep) RunOnce() (int, error) {
	stale, err := s.ledger.StaleRunning(s.Now(), s.cfg.StageDeadline)
	if err != nil {
		return 0, fmt.Errorf("failed to select stale executions: %w", err)
	}

	resolved := 0
	for _, e := range stale {
		reason := fmt.Sprintf("heartbeat timeout at stage %s, presumed worker loss", e.CurrentStage)
		if err := s.ledger.ForceTerminal(e.ID, reason); err != nil {
			// Lost the race with a writer that turned out to be alive.
			s.Logf("execution %d: %v", e.ID, err)
			continue
		}
		resolved++
		s.Logf("execution %d (%s) force-terminated: %s", e.ID, e.Target, reason)

		s.hub.Publish(e.Requester, progress.Event{
			ExecutionID: e.ID,
			Type:        progress.EventError,
			Payload:     reason,
		})
		s.hub.Publish(e.Requester, progress.Event{
			ExecutionID: e.ID,
			Type:        progress.EventDone,
			Payload:     map[string]string{"state": ledger.StateFailed, "reason": reason},
		})
	}
	return resolved, nil
}
