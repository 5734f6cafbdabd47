package implementation

import (
	"context"
	"errors"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/mapper"
	"devmemory-be/internal/model"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NamingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.NamingMapper
}

func NewNamingRepository(db *gorm.DB) contract.NamingRepository {
	return &NamingRepositoryImpl{
		db:     db,
		mapper: mapper.NewNamingMapper(),
	}
}

func (r *NamingRepositoryImpl) Create(ctx context.Context, entry *entity.NamingEntry) error {
	m := r.mapper.ToModel(entry)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	*entry = *r.mapper.ToEntity(m)
	return nil
}

func (r *NamingRepositoryImpl) FindByName(ctx context.Context, projectId *uuid.UUID, canonicalName string) (*entity.NamingEntry, error) {
	var m model.NamingEntry
	query := r.db.WithContext(ctx).Where("canonical_name = ?", canonicalName)
	if projectId != nil {
		query = query.Where("project_id = ?", *projectId)
	} else {
		query = query.Where("project_id IS NULL")
	}
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *NamingRepositoryImpl) List(ctx context.Context, filter contract.ArtifactFilter) ([]*entity.NamingEntry, error) {
	var models []*model.NamingEntry
	query := specification.Apply(r.db.WithContext(ctx), artifactSpecs(filter)...).
		Order("canonical_name ASC")
	query = specification.Pagination{Limit: filter.Limit, Offset: filter.Offset}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]*entity.NamingEntry, len(models))
	for i, m := range models {
		entries[i] = r.mapper.ToEntity(m)
	}
	return entries, nil
}
