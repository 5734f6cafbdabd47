package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/pkg/events"
	"devmemory-be/pkg/tokens"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetActiveSession_NoProject(t *testing.T) {
	h := newHarness(t)

	_, err := h.sessions.GetActiveSession(h.ctx)
	assert.ErrorIs(t, err, apperr.ErrNoDefaultProject)
	assert.Equal(t, int64(0), h.activeCount())
}

func TestGetActiveSession_CreatesLazilyThenReuses(t *testing.T) {
	h := newHarness(t)
	projectId := h.project("alpha")

	first := h.active()
	assert.True(t, first.Created)
	assert.Equal(t, "S0001", first.Session.DisplayId)
	assert.Equal(t, "Session S0001", first.Session.Title)
	require.NotNil(t, first.Session.ProjectId)
	assert.Equal(t, projectId, *first.Session.ProjectId)

	h.clock.Advance(10 * time.Minute)
	second := h.active()
	assert.False(t, second.Created)
	assert.Nil(t, second.Demoted)
	assert.Equal(t, first.Session.Id, second.Session.Id)
	assert.Equal(t, 1, h.events.count(events.SessionStarted))
}

func TestGetActiveSession_TimeoutBoundary(t *testing.T) {
	tests := []struct {
		name        string
		idle        time.Duration
		wantDemoted bool
	}{
		{name: "just under the timeout", idle: time.Hour + 59*time.Minute + 59*time.Second, wantDemoted: false},
		{name: "exactly the timeout", idle: 2 * time.Hour, wantDemoted: false},
		{name: "just over the timeout", idle: 2*time.Hour + time.Second, wantDemoted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.project("alpha")
			first := h.active()

			h.clock.Advance(tt.idle)
			res := h.active()

			if !tt.wantDemoted {
				assert.Equal(t, first.Session.Id, res.Session.Id)
				assert.False(t, res.Created)
				assert.Nil(t, res.Demoted)
				return
			}

			require.NotNil(t, res.Demoted)
			assert.True(t, res.Created)
			assert.NotEqual(t, first.Session.Id, res.Session.Id)
			assert.Equal(t, "S0002", res.Session.DisplayId)

			old := h.session(first.Session.Id.String())
			assert.Equal(t, string(entity.SessionStatusInactive), old.Status)
			assert.Equal(t, entity.EndReasonTimeout, old.EndReason)
			require.NotNil(t, old.EndedAt)
			assert.True(t, old.EndedAt.Equal(first.Session.LastActivityAt), "ended_at is the last activity, not the detection time")
			assert.Equal(t, int64(1), h.activeCount())
		})
	}
}

func TestGetActiveSession_ConvergesUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	// A second service over the same store stands in for another process.
	other := NewSessionService(h.uow, h.projects, h.clock, testTimeout, nil, tokens.NewEstimator(), logger.NewNopLogger())
	services := []ISessionService{h.sessions, other}

	const callers = 16
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := services[i%2].GetActiveSession(h.ctx)
			errs[i] = err
			if err == nil {
				ids[i] = res.Session.Id
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int64(1), h.activeCount())
}

func TestStartSession_SupersedesActive(t *testing.T) {
	h := newHarness(t)
	projectId := h.project("alpha")
	first := h.active()

	h.clock.Advance(5 * time.Minute)
	res, err := h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{ProjectId: &projectId, Title: "Refactor auth"})
	require.NoError(t, err)

	require.NotNil(t, res.Superseded)
	assert.Equal(t, first.Session.Id, res.Superseded.Id)
	assert.Equal(t, entity.EndReasonSuperseded, res.Superseded.EndReason)
	assert.Equal(t, "Refactor auth", res.Session.Title)
	assert.Equal(t, "S0002", res.Session.DisplayId)
	assert.Equal(t, int64(1), h.activeCount())

	old := h.session(first.Session.Id.String())
	require.NotNil(t, old.EndedAt)
	assert.True(t, old.EndedAt.Equal(h.clock.Now()))
}

func TestStartSession_StaleActiveEndsAtLastActivity(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	first := h.active()

	h.clock.Advance(3 * time.Hour)
	res, err := h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{})
	require.NoError(t, err)

	require.NotNil(t, res.Superseded)
	assert.Equal(t, entity.EndReasonTimeout, res.Superseded.EndReason)
	assert.True(t, res.Superseded.EndedAt.Equal(first.Session.LastActivityAt))
}

func TestStartSession_Validation(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	missing := uuid.New()

	_, err := h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{ProjectId: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{Title: "drop table; <script>"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, int64(0), h.activeCount())
}

func TestEndSession_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	h.clock.Advance(time.Minute)
	first, err := h.sessions.EndSession(h.ctx, &dto.EndSessionRequest{SessionId: s.DisplayId})
	require.NoError(t, err)
	assert.False(t, first.AlreadyEnded)
	assert.Equal(t, entity.EndReasonExplicit, first.Session.EndReason)
	endedAt := *first.Session.EndedAt

	h.clock.Advance(time.Minute)
	second, err := h.sessions.EndSession(h.ctx, &dto.EndSessionRequest{SessionId: s.Id.String(), Reason: "again"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyEnded)
	assert.True(t, second.Session.EndedAt.Equal(endedAt))
	assert.Equal(t, entity.EndReasonExplicit, second.Session.EndReason)
	assert.Equal(t, 1, h.events.count(events.SessionEnded))
}

func TestEndSession_StaleUsesLastActivity(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	h.clock.Advance(5 * time.Hour)
	res, err := h.sessions.EndSession(h.ctx, &dto.EndSessionRequest{SessionId: s.DisplayId, Reason: "done"})
	require.NoError(t, err)
	assert.True(t, res.Session.EndedAt.Equal(s.LastActivityAt))
	assert.Equal(t, "done", res.Session.EndReason)
}

func TestRecordActivity(t *testing.T) {
	t.Run("bumps last activity", func(t *testing.T) {
		h := newHarness(t)
		h.project("alpha")
		s := h.active().Session

		h.clock.Advance(90 * time.Minute)
		res, err := h.sessions.RecordActivity(h.ctx, &dto.RecordActivityRequest{SessionId: s.DisplayId})
		require.NoError(t, err)
		assert.True(t, res.LastActivityAt.Equal(h.clock.Now()))

		// 90 more minutes is within the timeout of the bumped session.
		h.clock.Advance(90 * time.Minute)
		assert.Equal(t, s.Id, h.active().Session.Id)
	})

	t.Run("explicit stale session is demoted, not revived", func(t *testing.T) {
		h := newHarness(t)
		h.project("alpha")
		s := h.active().Session

		h.clock.Advance(2*time.Hour + time.Second)
		_, err := h.sessions.RecordActivity(h.ctx, &dto.RecordActivityRequest{SessionId: s.DisplayId})
		assert.ErrorIs(t, err, apperr.ErrTimeoutRace)

		got := h.session(s.DisplayId)
		assert.Equal(t, string(entity.SessionStatusInactive), got.Status)
		assert.True(t, got.LastActivityAt.Equal(s.LastActivityAt))
	})

	t.Run("implicit call moves to a fresh session", func(t *testing.T) {
		h := newHarness(t)
		h.project("alpha")
		s := h.active().Session

		h.clock.Advance(3 * time.Hour)
		res, err := h.sessions.RecordActivity(h.ctx, &dto.RecordActivityRequest{})
		require.NoError(t, err)
		assert.NotEqual(t, s.Id, res.SessionId)
		assert.Equal(t, "S0002", res.DisplayId)
	})

	t.Run("ended session", func(t *testing.T) {
		h := newHarness(t)
		h.project("alpha")
		s := h.active().Session
		_, err := h.sessions.EndSession(h.ctx, &dto.EndSessionRequest{SessionId: s.DisplayId})
		require.NoError(t, err)

		_, err = h.sessions.RecordActivity(h.ctx, &dto.RecordActivityRequest{SessionId: s.DisplayId})
		assert.ErrorIs(t, err, apperr.ErrTimeoutRace)
	})
}

func TestTouchActive_NeverCreates(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	require.NoError(t, h.sessions.TouchActive(h.ctx))
	assert.Equal(t, int64(0), h.activeCount())
}

func TestLookupSession(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	byDisplay, err := h.sessions.LookupSession(h.ctx, "s0001")
	require.NoError(t, err)
	assert.Equal(t, s.Id, byDisplay.Id)

	_, err = h.sessions.LookupSession(h.ctx, "S9999")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.sessions.LookupSession(h.ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRenameSession(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	res, err := h.sessions.RenameSession(h.ctx, &dto.RenameSessionRequest{SessionId: s.DisplayId, Name: "Payments: retry (v2)"})
	require.NoError(t, err)
	assert.Equal(t, "Payments: retry (v2)", res.Title)
	assert.Equal(t, s.DisplayId, res.DisplayId)
	assert.Equal(t, 1, h.events.count(events.SessionRenamed))

	_, err = h.sessions.RenameSession(h.ctx, &dto.RenameSessionRequest{SessionId: s.DisplayId, Name: "name with <tags>"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReassignProject_RequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	alpha := h.project("alpha")
	s := h.active().Session
	beta := h.project("beta")

	_, err := h.sessions.ReassignProject(h.ctx, &dto.ReassignProjectRequest{SessionId: s.DisplayId, ProjectId: beta})
	require.ErrorIs(t, err, apperr.ErrConfirmationRequired)
	var confirmErr *apperr.ConfirmationRequiredError
	require.ErrorAs(t, err, &confirmErr)
	assert.Equal(t, "session.reassignProject", confirmErr.Action)

	unchanged := h.session(s.DisplayId)
	assert.Equal(t, alpha, *unchanged.ProjectId)

	res, err := h.sessions.ReassignProject(h.ctx, &dto.ReassignProjectRequest{SessionId: s.DisplayId, ProjectId: beta, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, beta, *res.Session.ProjectId)
	assert.Equal(t, alpha, *res.PreviousProjectId)

	_, err = h.sessions.ReassignProject(h.ctx, &dto.ReassignProjectRequest{SessionId: s.DisplayId, ProjectId: uuid.New(), Confirm: true})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateDetailsAndRate(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	goal := "ship the importer"
	tags := []string{"backend", "import"}
	res, err := h.sessions.UpdateDetails(h.ctx, &dto.UpdateSessionRequest{SessionId: s.DisplayId, Goal: &goal, Tags: &tags})
	require.NoError(t, err)
	require.NotNil(t, res.Goal)
	assert.Equal(t, goal, *res.Goal)
	assert.Equal(t, tags, res.Tags)

	rated, err := h.sessions.RateSession(h.ctx, &dto.RateSessionRequest{SessionId: s.DisplayId, Score: 4, Comment: "good"})
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, rated.Rating.Score)

	_, err = h.sessions.RateSession(h.ctx, &dto.RateSessionRequest{SessionId: s.DisplayId, Score: 6})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRecordTokenUsage(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	res, err := h.sessions.RecordTokenUsage(h.ctx, &dto.RecordTokensRequest{Input: 1200, Output: 300})
	require.NoError(t, err)
	assert.Equal(t, s.Id, res.SessionId)
	assert.Equal(t, int64(1200), res.TokenInput)
	assert.Equal(t, int64(300), res.TokenOutput)
	assert.False(t, res.Estimated)

	res, err = h.sessions.RecordTokenUsage(h.ctx, &dto.RecordTokensRequest{SessionId: s.DisplayId, OutputText: "func main() { fmt.Println(\"hi\") }"})
	require.NoError(t, err)
	assert.True(t, res.Estimated)
	assert.Greater(t, res.AddedOutput, int64(0))
	assert.Equal(t, 300+res.AddedOutput, res.TokenOutput)
}

func TestListSessions_FiltersAndSearch(t *testing.T) {
	h := newHarness(t)
	alpha := h.project("alpha")
	beta := h.project("beta")

	_, err := h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{ProjectId: &alpha, Title: "Importer"})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{ProjectId: &beta, Title: "Exporter"})
	require.NoError(t, err)

	all, err := h.sessions.ListSessions(h.ctx, &dto.ListSessionsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
	assert.Equal(t, "Exporter", all.Sessions[0].Title, "most recently active first")

	byProject, err := h.sessions.ListSessions(h.ctx, &dto.ListSessionsRequest{ProjectId: &alpha})
	require.NoError(t, err)
	require.Len(t, byProject.Sessions, 1)
	assert.Equal(t, "Importer", byProject.Sessions[0].Title)

	bySearch, err := h.sessions.ListSessions(h.ctx, &dto.ListSessionsRequest{Search: "s0002"})
	require.NoError(t, err)
	require.Len(t, bySearch.Sessions, 1)
	assert.Equal(t, "Exporter", bySearch.Sessions[0].Title)
}

func TestListSessions_LimitCap(t *testing.T) {
	h := newHarness(t)

	_, err := h.sessions.ListSessions(h.ctx, &dto.ListSessionsRequest{Limit: 101})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	res, err := h.sessions.ListSessions(h.ctx, &dto.ListSessionsRequest{Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, res.Sessions)
}

// gatedRegistry holds GetDefault until release is closed.
type gatedRegistry struct {
	IProjectRegistry
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRegistry) GetDefault(ctx context.Context) (uuid.UUID, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	return g.IProjectRegistry.GetDefault(ctx)
}

func TestCurrentSession_CancelledCallerDoesNotFailOthers(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	gate := &gatedRegistry{IProjectRegistry: h.projects, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewSessionService(h.uow, gate, h.clock, testTimeout, h.events, tokens.NewEstimator(), logger.NewNopLogger())

	type result struct {
		session *entity.Session
		err     error
	}

	first, cancel := context.WithCancel(h.ctx)
	firstDone := make(chan result, 1)
	go func() {
		s, err := svc.CurrentSession(first)
		firstDone <- result{s, err}
	}()
	<-gate.entered
	cancel()

	secondDone := make(chan result, 1)
	go func() {
		s, err := svc.CurrentSession(h.ctx)
		secondDone <- result{s, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	assert.ErrorIs(t, (<-firstDone).err, context.Canceled)
	second := <-secondDone
	require.NoError(t, second.err)
	require.NotNil(t, second.session)
	assert.Equal(t, int64(1), h.activeCount())
}
