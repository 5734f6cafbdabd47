package implementation

import (
	"context"
	"errors"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/mapper"
	"devmemory-be/internal/model"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/scope"
	"devmemory-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type ContextRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ContextEntryMapper
}

func NewContextRepository(db *gorm.DB) contract.ContextRepository {
	return &ContextRepositoryImpl{
		db:     db,
		mapper: mapper.NewContextEntryMapper(),
	}
}

func (r *ContextRepositoryImpl) Create(ctx context.Context, entry *entity.ContextEntry) error {
	m := r.mapper.ToModel(entry)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	*entry = *r.mapper.ToEntity(m)
	return nil
}

func (r *ContextRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.ContextEntry, error) {
	var m model.ContextEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func contextSpecs(sessionId, projectId *uuid.UUID, contextType *entity.ContextType) []specification.Specification {
	var specs []specification.Specification
	if sessionId != nil {
		specs = append(specs, specification.BySession{SessionID: *sessionId})
	}
	if projectId != nil {
		specs = append(specs, specification.ByProject{ProjectID: *projectId})
	}
	if contextType != nil {
		specs = append(specs, specification.Filter("type", string(*contextType)))
	}
	return specs
}

func (r *ContextRepositoryImpl) List(ctx context.Context, filter contract.ContextFilter) ([]*entity.ContextEntry, error) {
	var models []*model.ContextEntry
	query := specification.Apply(r.db.WithContext(ctx), contextSpecs(filter.SessionId, filter.ProjectId, filter.Type)...).
		Scopes(scope.OrderByCreatedDesc)
	query = specification.Pagination{Limit: filter.Limit, Offset: filter.Offset}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]*entity.ContextEntry, len(models))
	for i, m := range models {
		entries[i] = r.mapper.ToEntity(m)
	}
	return entries, nil
}

func (r *ContextRepositoryImpl) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ContextEntry{}).
		Where("session_id = ?", sessionId).
		Count(&count).Error
	return count, err
}

type scoredContextRow struct {
	model.ContextEntry
	Similarity float64
}

func (r *ContextRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, query contract.SimilarityQuery) ([]*contract.ScoredContextEntry, error) {
	vec := pgvector.NewVector(embedding)

	q := r.db.WithContext(ctx).Model(&model.ContextEntry{}).
		Select("*, 1 - (embedding <=> ?) AS similarity", vec).
		Where("embedding IS NOT NULL")
	q = specification.Apply(q, contextSpecs(query.SessionId, query.ProjectId, query.Type)...)
	if query.MinSimilarity != nil {
		q = q.Where("1 - (embedding <=> ?) >= ?", vec, *query.MinSimilarity)
	}

	var rows []scoredContextRow
	err := q.Order(gorm.Expr("embedding <=> ?", vec)).
		Order("created_at DESC").
		Scopes(limitTo(query.Limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]*contract.ScoredContextEntry, len(rows))
	for i := range rows {
		results[i] = &contract.ScoredContextEntry{
			Entry:      r.mapper.ToEntity(&rows[i].ContextEntry),
			Similarity: rows[i].Similarity,
		}
	}
	return results, nil
}

func (r *ContextRepositoryImpl) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ContextEntry{}).
		Where("id = ?", id).
		Update("embedding", pgvector.NewVector(embedding))
	return res.RowsAffected > 0, res.Error
}

func (r *ContextRepositoryImpl) ListIDsForReembed(ctx context.Context, onlyMissing bool) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&model.ContextEntry{})
	if onlyMissing {
		query = query.Where("embedding IS NULL")
	}
	err := query.Scopes(scope.OrderByCreatedAsc).Pluck("id", &ids).Error
	return ids, err
}

func (r *ContextRepositoryImpl) ResetEmbeddings(ctx context.Context, dimension int) error {
	db := r.db.WithContext(ctx)
	for _, stmt := range model.ResetEmbeddingColumnSQL(dimension) {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *ContextRepositoryImpl) ListEvents(ctx context.Context, query contract.EventQuery) ([]*contract.EventRow, error) {
	var rows []*contract.EventRow
	q := r.db.WithContext(ctx).Model(&model.ContextEntry{}).
		Select("id, created_at AS at, '[' || type || '] ' || LEFT(content, ?) AS summary", contract.SummaryLength)
	q = specification.Apply(q,
		specification.BySession{SessionID: query.SessionId},
		specification.EventWindow{Column: "created_at", From: query.From, Until: query.Until},
		specification.EventAfter{Column: "created_at", Bound: query.After},
	)
	err := q.Scopes(scope.TimelineOrder("created_at"), limitTo(query.Limit)).Scan(&rows).Error
	return rows, err
}
