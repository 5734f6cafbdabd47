package service

import (
	"context"
	"errors"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/events"
)

const (
	monitorModule = "MONITOR"

	RestartPolicyLazy  = "lazy"
	RestartPolicyEager = "eager"
)

type ITimeoutMonitor interface {
	// Start sweeps once, applies the restart policy and then sweeps on every
	// tick until ctx is cancelled.
	Start(ctx context.Context) error
	// Sweep demotes every active session idle for longer than the timeout.
	Sweep(ctx context.Context) ([]*entity.Session, error)
}

type TimeoutMonitorOptions struct {
	Timeout       time.Duration
	Interval      time.Duration
	RestartPolicy string
}

type timeoutMonitor struct {
	uowFactory     unitofwork.RepositoryFactory
	sessions       ISessionService
	clock          clock.Clock
	opts           TimeoutMonitorOptions
	eventPublisher IEventPublisher
	logger         logger.ILogger
}

func NewTimeoutMonitor(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	clk clock.Clock,
	opts TimeoutMonitorOptions,
	eventPublisher IEventPublisher,
	log logger.ILogger,
) ITimeoutMonitor {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	return &timeoutMonitor{
		uowFactory:     uowFactory,
		sessions:       sessions,
		clock:          clk,
		opts:           opts,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (m *timeoutMonitor) Start(ctx context.Context) error {
	m.logger.Info(monitorModule, "Timeout monitor started", map[string]interface{}{
		"timeout":        m.opts.Timeout.String(),
		"interval":       m.opts.Interval.String(),
		"restart_policy": m.opts.RestartPolicy,
	})

	// State is re-derived from persisted last_activity_at, never assumed.
	m.sweepAndLog(ctx)
	if m.opts.RestartPolicy == RestartPolicyEager {
		m.ensureActive(ctx)
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info(monitorModule, "Timeout monitor stopped", nil)
			return nil
		case <-ticker.C:
			m.sweepAndLog(ctx)
		}
	}
}

func (m *timeoutMonitor) ensureActive(ctx context.Context) {
	session, err := m.sessions.CurrentSession(ctx)
	if errors.Is(err, apperr.ErrNoDefaultProject) {
		m.logger.Warn(monitorModule, "Eager restart skipped: no project exists yet", nil)
		return
	}
	if err != nil {
		m.logger.Error(monitorModule, "Eager restart failed", map[string]interface{}{"error": err.Error()})
		return
	}
	m.logger.Info(monitorModule, "Active session after restart", map[string]interface{}{
		"session_id": session.Id,
		"display_id": session.DisplayId,
	})
}

func (m *timeoutMonitor) sweepAndLog(ctx context.Context) {
	demoted, err := m.Sweep(ctx)
	if err != nil {
		// Retried on the next tick.
		m.logger.Error(monitorModule, "Sweep failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(demoted) > 0 {
		m.logger.Info(monitorModule, "Sweep demoted stale sessions", map[string]interface{}{"count": len(demoted)})
	}
}

func (m *timeoutMonitor) Sweep(ctx context.Context) ([]*entity.Session, error) {
	now := m.clock.Now()
	repo := m.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	demoted, err := repo.SweepStale(ctx, now.Add(-m.opts.Timeout), entity.EndReasonTimeout)
	if err != nil {
		return nil, err
	}

	for _, session := range demoted {
		m.logger.Info(monitorModule, "Session timed out", map[string]interface{}{
			"session_id": session.Id,
			"display_id": session.DisplayId,
			"ended_at":   session.EndedAt,
		})
		at := now
		if session.EndedAt != nil {
			at = *session.EndedAt
		}
		publishEvent(ctx, m.eventPublisher, m.logger, monitorModule, events.New(events.SessionEnded, at, map[string]interface{}{
			"session_id": session.Id.String(),
			"display_id": session.DisplayId,
			"reason":     entity.EndReasonTimeout,
		}))
	}
	return demoted, nil
}
