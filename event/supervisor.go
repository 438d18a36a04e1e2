package event

import (
	"context"
	"errors"
	"time"

	"github.com/ncobase/modulith/logging"
	"github.com/ncobase/modulith/merr"
)

// DistributedLock serializes a critical section across a cluster of
// process instances. Concrete implementations live in the sibling lock
// package (Redis SET NX PX).
type DistributedLock interface {
	// ExecuteLocked runs fn while holding name, acquired within timeout.
	// Returns merr.ErrLockUnavailable if the lock could not be acquired in
	// time; fn's error, if any, otherwise propagates unchanged.
	ExecuteLocked(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error
}

// Republisher re-dispatches an already-persisted publication's event
// through the Multicaster path, used for restart resubmission. The
// Multicaster itself only accepts fresh events, so the Supervisor's
// republish path goes through a dedicated hook supplied by the wiring
// layer (it typically deserializes EventPublication.SerializedEvent and
// calls Multicaster.Publish again).
type Republisher interface {
	Republish(ctx context.Context, pub *EventPublication) error
}

// RepublisherFunc adapts a function to a Republisher.
type RepublisherFunc func(ctx context.Context, pub *EventPublication) error

func (f RepublisherFunc) Republish(ctx context.Context, pub *EventPublication) error { return f(ctx, pub) }

// SupervisorConfig controls the Staleness/Restart Supervisor's two loops.
type SupervisorConfig struct {
	// StalenessMonitorEnabled turns on the periodic scan loop.
	StalenessMonitorEnabled bool
	CheckInterval           time.Duration
	StalenessThreshold      time.Duration

	// RepublishOnRestart turns on the restart resubmission loop.
	RepublishOnRestart bool
	// LockTimeout bounds distributed lock acquisition for the restart
	// pass; defaults to 1 second per the spec (zero value is replaced).
	LockTimeout time.Duration
}

const defaultLockTimeout = time.Second

// Supervisor runs the periodic staleness scan and the restart
// resubmission pass.
type Supervisor struct {
	cfg         SupervisorConfig
	registry    *Registry
	republisher Republisher
	lock        DistributedLock // optional; nil means single-node, no locking

	stop chan struct{}
	done chan struct{}
}

// NewSupervisor builds a Supervisor. lock may be nil for single-node
// deployments, in which case restart resubmission always proceeds.
func NewSupervisor(cfg SupervisorConfig, registry *Registry, republisher Republisher, lock DistributedLock) *Supervisor {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	return &Supervisor{
		cfg:         cfg,
		registry:    registry,
		republisher: republisher,
		lock:        lock,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the restart resubmission pass once (if enabled), then starts
// the periodic staleness scan loop (if enabled) on its own goroutine.
// Start returns once the restart pass has completed; the periodic loop
// keeps running until Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.RepublishOnRestart {
		if err := s.resubmitIncomplete(ctx); err != nil {
			return err
		}
	}

	if s.cfg.StalenessMonitorEnabled {
		go s.scanLoop(ctx)
	} else {
		close(s.done)
	}
	return nil
}

// Stop signals the periodic scan loop to exit and waits for it to do so,
// or for ctx to expire.
func (s *Supervisor) Stop(ctx context.Context) error {
	if !s.cfg.StalenessMonitorEnabled {
		return nil
	}
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) scanLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.registry.MarkStalePublicationsFailed(ctx, s.cfg.StalenessThreshold)
			if err != nil {
				logging.Errorf(ctx, "supervisor: staleness scan failed: %v", err)
				continue
			}
			logging.Infof(ctx, "supervisor: staleness scan marked %d publication(s) failed", count)
		}
	}
}

// resubmitIncomplete performs the restart resubmission pass, optionally
// under a distributed lock; on lock-acquisition failure it logs and skips
// the pass silently, as specified.
func (s *Supervisor) resubmitIncomplete(ctx context.Context) error {
	if s.lock == nil {
		return s.doResubmit(ctx)
	}

	err := s.lock.ExecuteLocked(ctx, "modulith:restart-resubmission", s.cfg.LockTimeout, s.doResubmit)
	if err != nil {
		if isLockUnavailable(err) {
			logging.Warnf(ctx, "supervisor: restart resubmission lock unavailable, skipping this node")
			return nil
		}
		return err
	}
	return nil
}

func isLockUnavailable(err error) bool {
	return errors.Is(err, merr.ErrLockUnavailable)
}

func (s *Supervisor) doResubmit(ctx context.Context) error {
	pubs, err := s.registry.FindIncomplete(ctx)
	if err != nil {
		return err
	}
	for _, pub := range pubs {
		if err := s.republisher.Republish(ctx, pub); err != nil {
			logging.Errorf(ctx, "supervisor: republish of %s failed: %v", pub.ID, err)
		}
	}
	logging.Infof(ctx, "supervisor: restart resubmission re-dispatched %d publication(s)", len(pubs))
	return nil
}
