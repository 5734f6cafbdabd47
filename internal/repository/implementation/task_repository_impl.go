package implementation

import (
	"context"
	"errors"
	"time"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/mapper"
	"devmemory-be/internal/model"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/scope"
	"devmemory-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.TaskMapper
}

func NewTaskRepository(db *gorm.DB) contract.TaskRepository {
	return &TaskRepositoryImpl{
		db:     db,
		mapper: mapper.NewTaskMapper(),
	}
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, task *entity.Task) error {
	m := r.mapper.ToModel(task)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	*task = *r.mapper.ToEntity(m)
	return nil
}

func (r *TaskRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.Task, error) {
	var m model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *TaskRepositoryImpl) List(ctx context.Context, filter contract.ArtifactFilter) ([]*entity.Task, error) {
	var models []*model.Task
	query := specification.Apply(r.db.WithContext(ctx), artifactSpecs(filter)...).
		Scopes(scope.OrderByCreatedDesc)
	query = specification.Pagination{Limit: filter.Limit, Offset: filter.Offset}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	tasks := make([]*entity.Task, len(models))
	for i, m := range models {
		tasks[i] = r.mapper.ToEntity(m)
	}
	return tasks, nil
}

func (r *TaskRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.TaskStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": at,
	}
	if status == entity.TaskStatusCompleted {
		updates["completed_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", id).
		Where("status <> ?", string(entity.TaskStatusCompleted)).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *TaskRepositoryImpl) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("session_id = ?", sessionId).
		Count(&count).Error
	return count, err
}

func (r *TaskRepositoryImpl) CountCompletedBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("session_id = ?", sessionId).
		Where("status = ?", string(entity.TaskStatusCompleted)).
		Count(&count).Error
	return count, err
}

func (r *TaskRepositoryImpl) ListCreatedEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	return r.listEvents(ctx, "created_at", query)
}

// ListCompletedEvents is keyed on completed_at, so a task created in one
// session window and completed in another shows up in both.
func (r *TaskRepositoryImpl) ListCompletedEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	return r.listEvents(ctx, "completed_at", query)
}

func (r *TaskRepositoryImpl) listEvents(ctx context.Context, column string, query contract.EventQuery) ([]*contract.EventRow, error) {
	var rows []*contract.EventRow
	q := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("id, " + column + " AS at, title AS summary").
		Where(column + " IS NOT NULL")
	q = specification.Apply(q,
		specification.BySession{SessionID: query.SessionId},
		specification.EventWindow{Column: column, From: query.From, Until: query.Until},
		specification.EventAfter{Column: column, Bound: query.After},
	)
	err := q.Scopes(scope.TimelineOrder(column), limitTo(query.Limit)).Scan(&rows).Error
	return rows, err
}
