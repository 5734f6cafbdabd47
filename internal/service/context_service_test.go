package service

import (
	"errors"
	"math"
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

func TestStoreContext_AttributesToActiveSession(t *testing.T) {
	h := newHarness(t)
	projectId := h.project("alpha")

	res, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{
		Content: "Use a partial unique index for the active session",
		Type:    "decision",
		Tags:    []string{"db", "db", " sessions "},
	})
	require.NoError(t, err)

	active := h.active().Session
	assert.Equal(t, active.Id, res.Context.SessionId)
	assert.Equal(t, "S0001", res.SessionDisplayId)
	assert.Equal(t, projectId, *res.Context.ProjectId)
	assert.Equal(t, []string{"db", "sessions"}, res.Context.Tags)
	assert.True(t, res.Context.HasEmbedding)
	assert.False(t, res.EmbeddingPending)
	assert.Equal(t, int64(1), active.Counters.ContextsCreated)
	assert.Equal(t, 1, h.events.count(events.ContextStored))
}

func TestStoreContext_Validation(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	tests := []struct {
		name string
		req  *dto.StoreContextRequest
	}{
		{name: "blank content", req: &dto.StoreContextRequest{Content: "   ", Type: "code"}},
		{name: "unknown type", req: &dto.StoreContextRequest{Content: "x", Type: "poem"}},
		{name: "empty tag", req: &dto.StoreContextRequest{Content: "x", Type: "code", Tags: []string{""}}},
		{name: "zero embedding", req: &dto.StoreContextRequest{Content: "x", Type: "code", Embedding: make([]float32, testDimension)}},
		{name: "non-finite embedding", req: &dto.StoreContextRequest{Content: "x", Type: "code", Embedding: unit(2, float32(math.NaN()))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.contexts.Store(h.ctx, tt.req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Equal(t, int64(0), h.activeCount(), "rejected input never creates a session")
}

func TestStoreContext_DimensionMismatchWritesNothing(t *testing.T) {
	provider := &stubProvider{dim: testDimension, vec: make([]float32, 8)}
	provider.vec[0] = 1
	h := newHarness(t, withProvider(provider))
	h.project("alpha")
	session := h.active().Session

	_, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "short vector", Type: "code"})
	assert.ErrorIs(t, err, apperr.ErrSchemaViolation)

	_, err = h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "short supplied vector", Type: "code", Embedding: []float32{1, 0, 0}})
	assert.ErrorIs(t, err, apperr.ErrSchemaViolation)

	count, err := h.uow.NewUnitOfWork(h.ctx).ContextRepository().CountBySession(h.ctx, session.Id)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, int64(0), h.session(session.DisplayId).Counters.ContextsCreated)
}

func TestStoreContext_ProviderFailure(t *testing.T) {
	failing := &stubProvider{dim: testDimension, err: errors.New("connection refused")}

	t.Run("fails the write by default", func(t *testing.T) {
		h := newHarness(t, withProvider(failing))
		h.project("alpha")

		_, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "lost", Type: "error"})
		require.ErrorIs(t, err, apperr.ErrProvider)
		var providerErr *apperr.ProviderError
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, 5*time.Second, providerErr.RetryAfter)
		assert.Equal(t, int64(0), h.activeCount())
	})

	t.Run("stores without a vector when allowed", func(t *testing.T) {
		h := newHarness(t, withProvider(failing), withNullOnFailure())
		h.project("alpha")

		res, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "kept anyway", Type: "error"})
		require.NoError(t, err)
		assert.True(t, res.EmbeddingPending)
		assert.False(t, res.Context.HasEmbedding)
		assert.Equal(t, 1, h.events.count(events.ContextEmbeddingFailed))
		assert.Equal(t, 0, h.events.count(events.ContextStored))
		assert.Equal(t, int64(1), h.active().Session.Counters.ContextsCreated)
	})

	t.Run("dimension mismatch is never downgraded", func(t *testing.T) {
		wrong := &stubProvider{dim: testDimension, vec: []float32{1, 2, 3}}
		h := newHarness(t, withProvider(wrong), withNullOnFailure())
		h.project("alpha")

		_, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "wrong size", Type: "code"})
		assert.ErrorIs(t, err, apperr.ErrSchemaViolation)
	})
}

func TestStoreContext_ExplicitEndedSessionKeepsAttribution(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session
	_, err := h.sessions.EndSession(h.ctx, &dto.EndSessionRequest{SessionId: s.DisplayId})
	require.NoError(t, err)

	res, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "a late note", Type: "code", SessionId: s.DisplayId})
	require.NoError(t, err)
	assert.Equal(t, s.Id, res.Context.SessionId)

	ended := h.session(s.DisplayId)
	assert.Equal(t, "inactive", ended.Status)
	assert.Equal(t, int64(1), ended.Counters.ContextsCreated)
	assert.Equal(t, int64(0), h.activeCount(), "explicit attribution never starts a session")
}

func TestStoreContext_UnknownProject(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	missing := uuid.New()

	_, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "x", Type: "code", ProjectId: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSearchContext_RanksBySimilarity(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	store := func(content string, vec []float32) uuid.UUID {
		res, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: content, Type: "code", Embedding: vec})
		require.NoError(t, err)
		h.clock.Advance(time.Second)
		return res.Context.Id
	}

	mixed := make([]float32, testDimension)
	mixed[0], mixed[1] = 0.8, 0.6
	exact := store("exact", unit(0, 3))
	near := store("near", mixed)
	store("orthogonal", unit(1, 1))

	res, err := h.contexts.Search(h.ctx, &dto.SearchContextRequest{Embedding: unit(0, 1), Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, exact, res.Results[0].Id)
	assert.InDelta(t, 1.0, res.Results[0].Similarity, 1e-6)
	assert.Equal(t, near, res.Results[1].Id)
	assert.InDelta(t, 0.8, res.Results[1].Similarity, 1e-6)

	threshold := 0.9
	filtered, err := h.contexts.Search(h.ctx, &dto.SearchContextRequest{Embedding: unit(0, 1), MinSimilarity: &threshold})
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Count)
}

func TestSearchContext_TieBreaksOnRecency(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	older, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "first", Type: "code", Embedding: unit(4, 1)})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	newer, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "second", Type: "code", Embedding: unit(4, 1)})
	require.NoError(t, err)

	res, err := h.contexts.Search(h.ctx, &dto.SearchContextRequest{Embedding: unit(4, 1)})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, newer.Context.Id, res.Results[0].Id)
	assert.Equal(t, older.Context.Id, res.Results[1].Id)
}

func TestSearchContext_QueryTextFindsItself(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	// Odd word counts keep hashed vectors away from zero.
	target := h.storeContext("retry failed payment webhooks with exponential backoff", "")
	h.storeContext("render the settings page sidebar", "")

	res, err := h.contexts.Search(h.ctx, &dto.SearchContextRequest{Query: "retry failed payment webhooks with exponential backoff"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, target.Context.Id, res.Results[0].Id)
	assert.InDelta(t, 1.0, res.Results[0].Similarity, 1e-5)
}

func TestSearchContext_Filters(t *testing.T) {
	h := newHarness(t)
	alpha := h.project("alpha")
	first := h.active().Session

	_, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "in alpha", Type: "code", Embedding: unit(0, 1)})
	require.NoError(t, err)

	beta := h.project("beta")
	_, err = h.sessions.StartSession(h.ctx, &dto.StartSessionRequest{ProjectId: &beta})
	require.NoError(t, err)
	_, err = h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "in beta", Type: "error", Embedding: unit(0, 1)})
	require.NoError(t, err)

	byProject, err := h.contexts.Search(h.ctx, &dto.SearchContextRequest{Embedding: unit(0, 1), ProjectId: &alpha})
	require.NoError(t, err)
	require.Equal(t, 1, byProject.Count)
	assert.Equal(t, "in alpha", byProject.Results[0].Content)

	bySession, err := h.contexts.Search(h.ctx, &dto.SearchContextRequest{Embedding: unit(0, 1), SessionId: first.DisplayId})
	require.NoError(t, err)
	require.Equal(t, 1, bySession.Count)

	byType, err := h.contexts.Search(h.ctx, &dto.SearchContextRequest{Embedding: unit(0, 1), Type: "error"})
	require.NoError(t, err)
	require.Equal(t, 1, byType.Count)
	assert.Equal(t, "in beta", byType.Results[0].Content)

	_, err = h.contexts.Search(h.ctx, &dto.SearchContextRequest{Embedding: unit(0, 1), Limit: 101})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestContextCounterMatchesRows(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")

	for _, content := range []string{"one", "two three four", "five six seven"} {
		h.storeContext(content, "")
	}
	session := h.active().Session

	count, err := h.uow.NewUnitOfWork(h.ctx).ContextRepository().CountBySession(h.ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, count, session.Counters.ContextsCreated)
	assert.Equal(t, int64(3), count)
}

func TestGetContext(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	stored := h.storeContext("keep it safe", "")

	got, err := h.contexts.Get(h.ctx, stored.Context.Id)
	require.NoError(t, err)
	assert.Equal(t, "keep it safe", got.Content)

	_, err = h.contexts.Get(h.ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStoreContext_ExplicitStaleSessionIsDemotedFirst(t *testing.T) {
	h := newHarness(t)
	h.project("alpha")
	s := h.active().Session

	h.clock.Advance(2*time.Hour + 5*time.Minute)
	res := h.storeContext("a late note", s.DisplayId)
	assert.Equal(t, s.Id, res.Context.SessionId)

	ended := h.session(s.DisplayId)
	assert.Equal(t, "inactive", ended.Status)
	assert.Equal(t, entity.EndReasonTimeout, ended.EndReason)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, ended.EndedAt.Equal(testStart), "ends at the real last activity")
	assert.True(t, ended.LastActivityAt.Equal(testStart), "a late write never revives the session")
	assert.Equal(t, int64(1), ended.Counters.ContextsCreated)

	demoted, err := h.monitor.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, demoted)
	assert.Equal(t, int64(0), h.activeCount())
}
