package service

import (
	"context"
	"testing"
	"time"

	"devmemory-be/internal/dto"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_DemotesOnlyStaleSessions(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	h.clock.Advance(testTimeout)
	demoted, err := h.monitor.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, demoted, "idle for exactly the timeout is still active")

	h.clock.Advance(time.Second)
	demoted, err = h.monitor.Sweep(h.ctx)
	require.NoError(t, err)
	require.Len(t, demoted, 1)
	assert.Equal(t, s.Id, demoted[0].Id)
	assert.True(t, demoted[0].EndedAt.Equal(s.LastActivityAt))
	assert.Equal(t, 1, h.events.count(events.SessionEnded))

	demoted, err = h.monitor.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, demoted)
	assert.Equal(t, int64(0), h.activeCount(), "sweeping never creates a session")
}

func TestMonitorStart_EagerPolicyCreatesSession(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	stale := h.active().Session
	h.clock.Advance(5 * time.Hour)

	monitor := NewTimeoutMonitor(h.uow, h.sessions, h.clock, TimeoutMonitorOptions{
		Timeout:       testTimeout,
		Interval:      time.Hour,
		RestartPolicy: RestartPolicyEager,
	}, h.events, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(h.ctx)
	done := make(chan error, 1)
	go func() { done <- monitor.Start(ctx) }()

	require.Eventually(t, func() bool {
		res, err := h.sessions.ListSessions(h.ctx, &dto.ListSessionsRequest{Status: "active"})
		return err == nil && res.Total == 1 && res.Sessions[0].Id != stale.Id
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
	assert.Equal(t, "inactive", h.session(stale.DisplayId).Status)
}

func TestMonitorStart_LazyPolicyLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	h.active()
	h.clock.Advance(5 * time.Hour)

	ctx, cancel := context.WithCancel(h.ctx)
	done := make(chan error, 1)
	go func() { done <- h.monitor.Start(ctx) }()

	require.Eventually(t, func() bool {
		return h.events.count(events.SessionEnded) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(0), h.activeCount())
}
