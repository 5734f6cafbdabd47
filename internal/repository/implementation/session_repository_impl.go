package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/mapper"
	"devmemory-be/internal/model"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/scope"
	"devmemory-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SessionMapper
}

func NewSessionRepository(db *gorm.DB) contract.SessionRepository {
	return &SessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewSessionMapper(),
	}
}

func (r *SessionRepositoryImpl) Create(ctx context.Context, session *entity.Session) error {
	m := r.mapper.ToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	*session = *r.mapper.ToEntity(m)
	return nil
}

func (r *SessionRepositoryImpl) findOne(ctx context.Context, specs ...specification.Specification) (*entity.Session, error) {
	var m model.Session
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *SessionRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	return r.findOne(ctx, specification.ByID{ID: id})
}

func (r *SessionRepositoryImpl) FindByDisplayID(ctx context.Context, displayId string) (*entity.Session, error) {
	return r.findOne(ctx, specification.Filter("display_id", displayId))
}

func (r *SessionRepositoryImpl) FindActive(ctx context.Context) (*entity.Session, error) {
	return r.findOne(ctx, specification.ActiveSession{})
}

func (r *SessionRepositoryImpl) List(ctx context.Context, filter contract.SessionFilter) ([]*entity.Session, int64, error) {
	specs := []specification.Specification{specification.SessionSearch{Query: filter.Search}}
	if filter.ProjectId != nil {
		specs = append(specs, specification.ByProject{ProjectID: *filter.ProjectId})
	}
	if filter.Status != nil {
		specs = append(specs, specification.ByStatus{Status: string(*filter.Status)})
	}

	var total int64
	if err := specification.Apply(r.db.WithContext(ctx).Model(&model.Session{}), specs...).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []*model.Session
	query := specification.Apply(r.db.WithContext(ctx), specs...).
		Scopes(scope.OrderByLastActivityDesc)
	query = specification.Pagination{Limit: filter.Limit, Offset: filter.Offset}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return r.mapper.ToEntities(models), total, nil
}

func (r *SessionRepositoryImpl) NextDisplaySeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT nextval('%s')", model.SessionDisplaySequence)).
		Scan(&seq).Error
	return seq, err
}

func (r *SessionRepositoryImpl) Touch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Where("status = ?", string(entity.SessionStatusActive)).
		Updates(map[string]interface{}{
			"last_activity_at": gorm.Expr("GREATEST(last_activity_at, ?)", at),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *SessionRepositoryImpl) Deactivate(ctx context.Context, id uuid.UUID, endedAt time.Time, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Where("status = ?", string(entity.SessionStatusActive)).
		Updates(map[string]interface{}{
			"status":     string(entity.SessionStatusInactive),
			"ended_at":   endedAt,
			"end_reason": reason,
		})
	return res.RowsAffected > 0, res.Error
}

// demoteStale is one UPDATE ... RETURNING: the idle predicate is re-checked
// on the locked row, so a concurrent Touch that commits first wins.
func (r *SessionRepositoryImpl) demoteStale(ctx context.Context, cutoff time.Time, reason string, specs ...specification.Specification) ([]*entity.Session, error) {
	var rows []*model.Session
	query := r.db.WithContext(ctx).Model(&rows).Clauses(clause.Returning{})
	specs = append(specs, specification.ActiveSession{}, specification.IdleSince{Cutoff: cutoff})
	res := specification.Apply(query, specs...).
		Updates(map[string]interface{}{
			"status":     string(entity.SessionStatusInactive),
			"ended_at":   gorm.Expr("last_activity_at"),
			"end_reason": reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	return r.mapper.ToEntities(rows), nil
}

func (r *SessionRepositoryImpl) DeactivateIfStale(ctx context.Context, id uuid.UUID, cutoff time.Time, reason string) (*entity.Session, error) {
	demoted, err := r.demoteStale(ctx, cutoff, reason, specification.ByID{ID: id})
	if err != nil || len(demoted) == 0 {
		return nil, err
	}
	return demoted[0], nil
}

func (r *SessionRepositoryImpl) SweepStale(ctx context.Context, cutoff time.Time, reason string) ([]*entity.Session, error) {
	return r.demoteStale(ctx, cutoff, reason)
}

func (r *SessionRepositoryImpl) IncrementCounters(ctx context.Context, id uuid.UUID, delta contract.CounterDelta, touchAt *time.Time, requireActive bool) (bool, error) {
	updates := map[string]interface{}{}
	addCounter(updates, "contexts_created", delta.Contexts)
	addCounter(updates, "decisions_created", delta.Decisions)
	addCounter(updates, "tasks_created", delta.TasksCreated)
	addCounter(updates, "tasks_completed", delta.TasksCompleted)
	addCounter(updates, "token_input", delta.TokenInput)
	addCounter(updates, "token_output", delta.TokenOutput)
	if touchAt != nil {
		updates["last_activity_at"] = gorm.Expr(
			"CASE WHEN status = ? THEN GREATEST(last_activity_at, ?) ELSE last_activity_at END",
			string(entity.SessionStatusActive), *touchAt,
		)
	}

	query := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", id)
	if requireActive {
		query = query.Where("status = ?", string(entity.SessionStatusActive))
	}

	if len(updates) == 0 {
		var count int64
		err := query.Count(&count).Error
		return count > 0, err
	}

	res := query.Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func addCounter(updates map[string]interface{}, column string, n int64) {
	if n != 0 {
		updates[column] = gorm.Expr(column+" + ?", n)
	}
}

func (r *SessionRepositoryImpl) SetCounters(ctx context.Context, id uuid.UUID, counters entity.Counters) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"contexts_created":  counters.ContextsCreated,
			"decisions_created": counters.DecisionsCreated,
			"tasks_created":     counters.TasksCreated,
			"tasks_completed":   counters.TasksCompleted,
		}).Error
}

func (r *SessionRepositoryImpl) Update(ctx context.Context, id uuid.UUID, patch contract.SessionPatch) (bool, error) {
	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Goal != nil {
		updates["goal"] = *patch.Goal
	}
	if patch.Tags != nil {
		updates["tags"] = datatypes.NewJSONSlice(*patch.Tags)
	}
	if patch.Rating != nil {
		updates["rating"] = mapper.RatingJSON(patch.Rating)
	}
	if patch.ProjectId != nil {
		updates["project_id"] = *patch.ProjectId
	}
	if len(updates) == 0 {
		s, err := r.FindByID(ctx, id)
		return s != nil, err
	}

	res := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", id).Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *SessionRepositoryImpl) Aggregate(ctx context.Context, projectId *uuid.UUID) (*contract.SessionAggregate, error) {
	var agg contract.SessionAggregate
	query := r.db.WithContext(ctx).Model(&model.Session{}).Select(`
		COUNT(*) AS sessions,
		COUNT(*) FILTER (WHERE status = 'active') AS active_sessions,
		COALESCE(SUM(contexts_created), 0) AS contexts_created,
		COALESCE(SUM(decisions_created), 0) AS decisions_created,
		COALESCE(SUM(tasks_created), 0) AS tasks_created,
		COALESCE(SUM(tasks_completed), 0) AS tasks_completed,
		COALESCE(SUM(token_input), 0) AS token_input,
		COALESCE(SUM(token_output), 0) AS token_output,
		COALESCE(SUM(EXTRACT(EPOCH FROM (COALESCE(ended_at, last_activity_at) - started_at))), 0) AS total_seconds`)
	if projectId != nil {
		query = specification.ByProject{ProjectID: *projectId}.Apply(query)
	}
	if err := query.Scan(&agg).Error; err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *SessionRepositoryImpl) LastUsedProjectID(ctx context.Context) (*uuid.UUID, error) {
	var m model.Session
	err := r.db.WithContext(ctx).
		Where("project_id IS NOT NULL").
		Scopes(scope.OrderByLastActivityDesc).
		Limit(1).
		Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.Id == uuid.Nil {
		return nil, nil
	}
	return m.ProjectId, nil
}
