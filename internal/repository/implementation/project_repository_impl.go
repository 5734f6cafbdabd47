package implementation

import (
	"context"
	"errors"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/mapper"
	"devmemory-be/internal/model"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/scope"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ProjectMapper
}

func NewProjectRepository(db *gorm.DB) contract.ProjectRepository {
	return &ProjectRepositoryImpl{
		db:     db,
		mapper: mapper.NewProjectMapper(),
	}
}

func (r *ProjectRepositoryImpl) Create(ctx context.Context, project *entity.Project) error {
	m := r.mapper.ToModel(project)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	*project = *r.mapper.ToEntity(m)
	return nil
}

func (r *ProjectRepositoryImpl) first(query *gorm.DB) (*entity.Project, error) {
	var m model.Project
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ProjectRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *ProjectRepositoryImpl) FindByName(ctx context.Context, name string) (*entity.Project, error) {
	return r.first(r.db.WithContext(ctx).Where("name = ?", name))
}

func (r *ProjectRepositoryImpl) List(ctx context.Context) ([]*entity.Project, error) {
	var models []*model.Project
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	projects := make([]*entity.Project, len(models))
	for i, m := range models {
		projects[i] = r.mapper.ToEntity(m)
	}
	return projects, nil
}

func (r *ProjectRepositoryImpl) MostRecent(ctx context.Context) (*entity.Project, error) {
	return r.first(r.db.WithContext(ctx).Scopes(scope.OrderByCreatedDesc))
}
