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

type DecisionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DecisionMapper
}

func NewDecisionRepository(db *gorm.DB) contract.DecisionRepository {
	return &DecisionRepositoryImpl{
		db:     db,
		mapper: mapper.NewDecisionMapper(),
	}
}

func (r *DecisionRepositoryImpl) Create(ctx context.Context, decision *entity.Decision) error {
	m := r.mapper.ToModel(decision)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	*decision = *r.mapper.ToEntity(m)
	return nil
}

func (r *DecisionRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.Decision, error) {
	var m model.Decision
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *DecisionRepositoryImpl) List(ctx context.Context, filter contract.ArtifactFilter) ([]*entity.Decision, error) {
	var models []*model.Decision
	query := specification.Apply(r.db.WithContext(ctx), artifactSpecs(filter)...).
		Scopes(scope.OrderByCreatedDesc)
	query = specification.Pagination{Limit: filter.Limit, Offset: filter.Offset}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	decisions := make([]*entity.Decision, len(models))
	for i, m := range models {
		decisions[i] = r.mapper.ToEntity(m)
	}
	return decisions, nil
}

func (r *DecisionRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.DecisionStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Decision{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *DecisionRepositoryImpl) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Decision{}).
		Where("session_id = ?", sessionId).
		Count(&count).Error
	return count, err
}

func (r *DecisionRepositoryImpl) ListEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	var rows []*contract.EventRow
	q := r.db.WithContext(ctx).Model(&model.Decision{}).
		Select("id, created_at AS at, title AS summary")
	q = specification.Apply(q,
		specification.BySession{SessionID: query.SessionId},
		specification.EventWindow{Column: "created_at", From: query.From, Until: query.Until},
		specification.EventAfter{Column: "created_at", Bound: query.After},
	)
	err := q.Scopes(scope.TimelineOrder("created_at"), limitTo(query.Limit)).Scan(&rows).Error
	return rows, err
}

func artifactSpecs(filter contract.ArtifactFilter) []specification.Specification {
	var specs []specification.Specification
	if filter.SessionId != nil {
		specs = append(specs, specification.BySession{SessionID: *filter.SessionId})
	}
	if filter.ProjectId != nil {
		specs = append(specs, specification.ByProject{ProjectID: *filter.ProjectId})
	}
	if filter.Status != "" {
		specs = append(specs, specification.Filter("status", filter.Status))
	}
	return specs
}
