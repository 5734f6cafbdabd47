package service

import (
	"sync"
	"testing"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTimeline writes one event of every kind. The context and decision
// share a timestamp.
func seedTimeline(t *testing.T, h *harness) (session *dto.SessionResponse, ids []uuid.UUID) {
	t.Helper()
	h.project("alpha")
	session = h.active().Session

	h.clock.Advance(time.Minute)
	ctxRes := h.storeContext("cache the embedding provider response", session.DisplayId)
	decision, err := h.decisions.Record(h.ctx, &dto.RecordDecisionRequest{Title: "Use pgvector", SessionId: session.DisplayId})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	task, err := h.tasks.Create(h.ctx, &dto.CreateTaskRequest{Title: "Write migration", SessionId: session.DisplayId})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	_, err = h.tasks.UpdateStatus(h.ctx, &dto.UpdateTaskStatusRequest{Id: task.Id, Status: "completed"})
	require.NoError(t, err)

	return session, []uuid.UUID{ctxRes.Context.Id, decision.Id, task.Id, task.Id}
}

func TestTimeline_OrdersByTimeThenKind(t *testing.T) {
	h := newHarness(t)
	session, ids := seedTimeline(t, h)

	res, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId})
	require.NoError(t, err)
	require.Len(t, res.Events, 4)
	assert.Empty(t, res.NextCursor)
	assert.True(t, res.WindowStart.Equal(session.StartedAt))

	kinds := make([]string, 0, len(res.Events))
	for i, ev := range res.Events {
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, ids[i], ev.Id)
	}
	assert.Equal(t, []string{EventContextStored, EventDecisionRecorded, EventTaskCreated, EventTaskCompleted}, kinds)
	assert.True(t, res.Events[0].At.Equal(res.Events[1].At))
}

func TestTimeline_PagesWithCursor(t *testing.T) {
	h := newHarness(t)
	session, _ := seedTimeline(t, h)

	full, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId})
	require.NoError(t, err)

	var paged []*dto.TimelineEvent
	cursor := ""
	for i := 0; i < 10; i++ {
		page, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId, Cursor: cursor, Limit: 1})
		require.NoError(t, err)
		paged = append(paged, page.Events...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, full.Events, paged)
}

func TestTimeline_CursorSurvivesNewEvents(t *testing.T) {
	h := newHarness(t)
	session, _ := seedTimeline(t, h)

	first, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId, Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, first.NextCursor)

	h.clock.Advance(time.Minute)
	late := h.storeContext("appended after the first page", session.DisplayId)

	rest, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Events, 3)
	assert.Equal(t, EventTaskCreated, rest.Events[0].Kind)
	assert.Equal(t, late.Context.Id, rest.Events[2].Id)
}

func TestTimeline_RejectsBadInput(t *testing.T) {
	h := newHarness(t)
	session, _ := seedTimeline(t, h)

	_, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId, Cursor: "not a cursor!"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId, Limit: 501})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: "S0404"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTimeline_EndedSessionWindow(t *testing.T) {
	h := newHarness(t)
	session, _ := seedTimeline(t, h)
	ended, err := h.sessions.EndSession(h.ctx, &dto.EndSessionRequest{SessionId: session.DisplayId})
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	res, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId})
	require.NoError(t, err)
	assert.True(t, res.WindowEnd.Equal(*ended.Session.EndedAt))
	assert.Len(t, res.Events, 4)
}

func TestTimelineSeq_MatchesTimeline(t *testing.T) {
	h := newHarness(t)
	session, _ := seedTimeline(t, h)

	full, err := h.correlation.Timeline(h.ctx, &dto.TimelineRequest{SessionId: session.DisplayId})
	require.NoError(t, err)

	var seen []*dto.TimelineEvent
	for ev, err := range h.correlation.TimelineSeq(h.ctx, session.Id) {
		require.NoError(t, err)
		seen = append(seen, ev)
	}
	assert.Equal(t, full.Events, seen)

	count := 0
	for range h.correlation.TimelineSeq(h.ctx, session.Id) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestCounters(t *testing.T) {
	h := newHarness(t)
	session, _ := seedTimeline(t, h)

	res, err := h.correlation.Counters(h.ctx, &dto.CountersRequest{SessionId: session.DisplayId})
	require.NoError(t, err)
	assert.Equal(t, dto.SessionCountersResponse{
		ContextsCreated:  1,
		DecisionsCreated: 1,
		TasksCreated:     1,
		TasksCompleted:   1,
	}, res.Counters)
	assert.Equal(t, (3 * time.Minute).Seconds(), res.ElapsedSeconds)
	assert.Equal(t, "weighted_activity", res.Scorer)
	assert.Greater(t, res.ProductivityScore, 0.0)
	assert.LessOrEqual(t, res.ProductivityScore, 100.0)

	implicit, err := h.correlation.Counters(h.ctx, &dto.CountersRequest{})
	require.NoError(t, err)
	assert.Equal(t, session.Id, implicit.SessionId)
}

func TestOnArtifactCreated(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	first := h.active().Session
	decision, err := h.decisions.Record(h.ctx, &dto.RecordDecisionRequest{Title: "Keep REST"})
	require.NoError(t, err)

	_, err = h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{})
	require.NoError(t, err)

	// The owning session is found from the artifact even after it ended.
	res, err := h.correlation.OnArtifactCreated(h.ctx, &dto.ArtifactCreatedRequest{Kind: "decision", ArtifactId: &decision.Id})
	require.NoError(t, err)
	assert.Equal(t, first.Id, res.SessionId)
	assert.Equal(t, int64(2), res.Counters.DecisionsCreated)

	res, err = h.correlation.OnArtifactCreated(h.ctx, &dto.ArtifactCreatedRequest{Kind: "task"})
	require.NoError(t, err)
	assert.Equal(t, "S0002", res.DisplayId)
	assert.Equal(t, int64(1), res.Counters.TasksCreated)

	_, err = h.correlation.OnArtifactCreated(h.ctx, &dto.ArtifactCreatedRequest{Kind: "context"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	missing := uuid.New()
	_, err = h.correlation.OnArtifactCreated(h.ctx, &dto.ArtifactCreatedRequest{Kind: "task", ArtifactId: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReconcile_RepairsDrift(t *testing.T) {
	h := newHarness(t)
	session, _ := seedTimeline(t, h)

	repo := h.uow.NewUnitOfWork(h.ctx).SessionRepository()
	require.NoError(t, repo.SetCounters(h.ctx, session.Id, entity.Counters{ContextsCreated: 7, TasksCompleted: 3}))

	res, err := h.correlation.Reconcile(h.ctx, &dto.ReconcileRequest{SessionId: session.DisplayId})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, int64(7), res.Before.ContextsCreated)
	assert.Equal(t, dto.SessionCountersResponse{ContextsCreated: 1, DecisionsCreated: 1, TasksCreated: 1, TasksCompleted: 1}, res.After)
	assert.Equal(t, res.After, h.session(session.DisplayId).Counters)
	assert.Equal(t, 1, h.events.count(events.CountersReconciled))

	again, err := h.correlation.Reconcile(h.ctx, &dto.ReconcileRequest{SessionId: session.DisplayId})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, 1, h.events.count(events.CountersReconciled))
}

func TestScenario_TimeoutEndsAtLastStore(t *testing.T) {
	h := newHarness(t)
	lastUsed := h.project("alpha")
	_, err := h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{ProjectId: &lastUsed})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	h.project("beta")

	started, err := h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{})
	require.NoError(t, err)
	s1 := started.Session
	assert.Equal(t, lastUsed, *s1.ProjectId, "defaults to the last used project, not the newest")

	var lastStore time.Time
	for _, content := range []string{"the first entry", "second entry here", "the third entry"} {
		h.clock.Advance(10 * time.Minute)
		lastStore = h.clock.Now()
		h.storeContext(content, "")
	}
	assert.Equal(t, int64(3), h.session(s1.DisplayId).Counters.ContextsCreated)

	h.clock.Advance(2*time.Hour + 5*time.Minute)
	demoted, err := h.monitor.Sweep(h.ctx)
	require.NoError(t, err)
	require.Len(t, demoted, 1)

	ended := h.session(s1.DisplayId)
	assert.Equal(t, "inactive", ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, ended.EndedAt.Equal(lastStore))

	next := h.active()
	assert.True(t, next.Created)
	assert.NotEqual(t, s1.Id, next.Session.Id)
}

func TestScenario_ConcurrentStoresBothCount(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	session := h.active().Session

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "parallel write one", Type: "code"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(writers), h.session(session.DisplayId).Counters.ContextsCreated)
}

func TestCountersAndTimeline_NeverCreateSession(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	_, err := h.correlation.Counters(h.ctx, &dto.CountersRequest{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = h.correlation.Timeline(h.ctx, &dto.TimelineRequest{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int64(0), h.activeCount())

	s := h.active().Session
	h.clock.Advance(3 * time.Hour)
	_, err = h.correlation.Counters(h.ctx, &dto.CountersRequest{})
	assert.ErrorIs(t, err, apperr.ErrNotFound, "a stale session is not current")
	_, err = h.correlation.Timeline(h.ctx, &dto.TimelineRequest{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "active", h.session(s.DisplayId).Status, "demotion is left to the sweep")
	assert.Equal(t, int64(1), h.activeCount())
}
