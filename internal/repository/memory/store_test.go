package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func activeSession(displayId string, lastActivity time.Time) *entity.Session {
	return &entity.Session{
		DisplayId:      displayId,
		Status:         entity.SessionStatusActive,
		StartedAt:      lastActivity,
		LastActivityAt: lastActivity,
	}
}

func TestUnitOfWork_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	factory := NewRepositoryFactory(NewStore())

	uow := factory.NewUnitOfWork(ctx)
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.SessionRepository().Create(ctx, activeSession("S0001", base)))
	require.NoError(t, uow.ProjectRepository().Create(ctx, &entity.Project{Name: "alpha"}))
	require.NoError(t, uow.Rollback())

	reader := factory.NewUnitOfWork(ctx)
	active, err := reader.SessionRepository().FindActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
	projects, err := reader.ProjectRepository().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	assert.Error(t, uow.Rollback(), "rollback twice")
	assert.Error(t, uow.Commit(), "commit without a transaction")
}

func TestUnitOfWork_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	factory := NewRepositoryFactory(NewStore())

	uow := factory.NewUnitOfWork(ctx)
	require.NoError(t, uow.Begin(ctx))
	assert.Error(t, uow.Begin(ctx), "nested begin")
	require.NoError(t, uow.SessionRepository().Create(ctx, activeSession("S0001", base)))
	require.NoError(t, uow.Commit())

	active, err := factory.NewUnitOfWork(ctx).SessionRepository().FindActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "S0001", active.DisplayId)
}

func TestUnitOfWork_BeginHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uow := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx)
	assert.ErrorIs(t, uow.Begin(ctx), context.Canceled)
}

func TestSessionRepository_SingleActiveSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx).SessionRepository()

	first := activeSession("S0001", base)
	require.NoError(t, repo.Create(ctx, first))
	err := repo.Create(ctx, activeSession("S0002", base))
	assert.True(t, errors.Is(err, contract.ErrActiveSessionExists))

	ended, err := repo.Deactivate(ctx, first.Id, base, "manual")
	require.NoError(t, err)
	assert.True(t, ended)
	again, err := repo.Deactivate(ctx, first.Id, base, "manual")
	require.NoError(t, err)
	assert.False(t, again, "only an active session can be deactivated")

	require.NoError(t, repo.Create(ctx, activeSession("S0002", base)))
	assert.ErrorIs(t, repo.Create(ctx, &entity.Session{DisplayId: "S0002", Status: entity.SessionStatusInactive}), contract.ErrDuplicate)
}

func TestSessionRepository_DeactivateIfStale(t *testing.T) {
	ctx := context.Background()
	repo := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx).SessionRepository()
	s := activeSession("S0001", base)
	require.NoError(t, repo.Create(ctx, s))

	demoted, err := repo.DeactivateIfStale(ctx, s.Id, base, "timeout")
	require.NoError(t, err)
	assert.Nil(t, demoted, "last activity equal to the cutoff is not stale")

	demoted, err = repo.DeactivateIfStale(ctx, s.Id, base.Add(time.Nanosecond), "timeout")
	require.NoError(t, err)
	require.NotNil(t, demoted)
	assert.Equal(t, entity.SessionStatusInactive, demoted.Status)
	assert.True(t, demoted.EndedAt.Equal(base))
	assert.Equal(t, "timeout", demoted.EndReason)
}

func TestSessionRepository_TouchNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	repo := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx).SessionRepository()
	s := activeSession("S0001", base)
	require.NoError(t, repo.Create(ctx, s))

	ok, err := repo.Touch(ctx, s.Id, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = repo.Touch(ctx, s.Id, base)
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, s.Id)
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.Equal(base.Add(time.Minute)))
}

func TestSessionRepository_IncrementCounters(t *testing.T) {
	ctx := context.Background()
	repo := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx).SessionRepository()
	s := activeSession("S0001", base)
	require.NoError(t, repo.Create(ctx, s))
	_, err := repo.Deactivate(ctx, s.Id, base, "manual")
	require.NoError(t, err)

	touchAt := base.Add(time.Hour)
	ok, err := repo.IncrementCounters(ctx, s.Id, contract.CounterDelta{Contexts: 1}, &touchAt, true)
	require.NoError(t, err)
	assert.False(t, ok, "requireActive skips an ended session")

	ok, err = repo.IncrementCounters(ctx, s.Id, contract.CounterDelta{Contexts: 1}, &touchAt, false)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, s.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ContextsCreated)
	assert.True(t, got.LastActivityAt.Equal(base), "an ended session keeps its last activity")
}

func TestContextRepository_SearchSimilarOrdering(t *testing.T) {
	ctx := context.Background()
	uow := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx)
	s := activeSession("S0001", base)
	require.NoError(t, uow.SessionRepository().Create(ctx, s))

	contexts := uow.ContextRepository()
	older := &entity.ContextEntry{SessionId: s.Id, Type: entity.ContextTypeCode, Embedding: []float32{1, 0}, CreatedAt: base}
	newer := &entity.ContextEntry{SessionId: s.Id, Type: entity.ContextTypeCode, Embedding: []float32{1, 0}, CreatedAt: base.Add(time.Minute)}
	orthogonal := &entity.ContextEntry{SessionId: s.Id, Type: entity.ContextTypeError, Embedding: []float32{0, 1}, CreatedAt: base}
	pending := &entity.ContextEntry{SessionId: s.Id, Type: entity.ContextTypeCode, CreatedAt: base}
	for _, e := range []*entity.ContextEntry{older, newer, orthogonal, pending} {
		require.NoError(t, contexts.Create(ctx, e))
	}

	results, err := contexts.SearchSimilar(ctx, []float32{1, 0}, contract.SimilarityQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 3, "entries without a vector are not searchable")
	assert.Equal(t, newer.Id, results[0].Entry.Id)
	assert.Equal(t, older.Id, results[1].Entry.Id)
	assert.Equal(t, orthogonal.Id, results[2].Entry.Id)

	threshold := 0.5
	codeType := entity.ContextTypeCode
	results, err = contexts.SearchSimilar(ctx, []float32{1, 0}, contract.SimilarityQuery{Limit: 1, MinSimilarity: &threshold, Type: &codeType})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, newer.Id, results[0].Entry.Id)

	missing, err := contexts.ListIDsForReembed(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pending.Id}, missing)

	require.NoError(t, contexts.ResetEmbeddings(ctx, 2))
	all, err := contexts.ListIDsForReembed(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestContextRepository_RejectsUnknownSession(t *testing.T) {
	ctx := context.Background()
	contexts := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx).ContextRepository()

	err := contexts.Create(ctx, &entity.ContextEntry{SessionId: uuid.New(), Type: entity.ContextTypeCode})
	assert.Error(t, err)
}

func TestProjectRepository(t *testing.T) {
	ctx := context.Background()
	projects := NewRepositoryFactory(NewStore()).NewUnitOfWork(ctx).ProjectRepository()

	latest, err := projects.MostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, projects.Create(ctx, &entity.Project{Name: "beta", CreatedAt: base}))
	require.NoError(t, projects.Create(ctx, &entity.Project{Name: "alpha", CreatedAt: base.Add(time.Hour)}))
	assert.ErrorIs(t, projects.Create(ctx, &entity.Project{Name: "alpha"}), contract.ErrDuplicate)

	latest, err = projects.MostRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", latest.Name)

	listed, err := projects.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "alpha", listed[0].Name)

	found, err := projects.FindByName(ctx, "beta")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.CreatedAt.Equal(base))
}
