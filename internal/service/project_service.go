package service

import (
	"context"
	"errors"
	"strings"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// IProjectRegistry is the project lookup consumed by session resolution.
type IProjectRegistry interface {
	Exists(ctx context.Context, projectId uuid.UUID) (bool, error)
	// GetDefault returns the project of the most recently active session,
	// falling back to the newest project.
	GetDefault(ctx context.Context) (uuid.UUID, error)
	Create(ctx context.Context, req *dto.CreateProjectRequest) (*dto.ProjectResponse, error)
	List(ctx context.Context) ([]*dto.ProjectResponse, error)
}

type projectRegistry struct {
	uowFactory unitofwork.RepositoryFactory
	clock      clock.Clock
}

func NewProjectRegistry(uowFactory unitofwork.RepositoryFactory, clk clock.Clock) IProjectRegistry {
	return &projectRegistry{
		uowFactory: uowFactory,
		clock:      clk,
	}
}

func (r *projectRegistry) Exists(ctx context.Context, projectId uuid.UUID) (bool, error) {
	uow := r.uowFactory.NewUnitOfWork(ctx)
	project, err := uow.ProjectRepository().FindByID(ctx, projectId)
	if err != nil {
		return false, err
	}
	return project != nil, nil
}

func (r *projectRegistry) GetDefault(ctx context.Context) (uuid.UUID, error) {
	uow := r.uowFactory.NewUnitOfWork(ctx)

	lastUsed, err := uow.SessionRepository().LastUsedProjectID(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if lastUsed != nil {
		return *lastUsed, nil
	}

	recent, err := uow.ProjectRepository().MostRecent(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if recent == nil {
		return uuid.Nil, apperr.NoDefaultProject()
	}
	return recent.Id, nil
}

func (r *projectRegistry) Create(ctx context.Context, req *dto.CreateProjectRequest) (*dto.ProjectResponse, error) {
	uow := r.uowFactory.NewUnitOfWork(ctx)
	now := r.clock.Now()
	project := &entity.Project{
		Id:          uuid.New(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if project.Name == "" {
		return nil, apperr.ValidationField("name", "is required")
	}

	if err := uow.ProjectRepository().Create(ctx, project); err != nil {
		if errors.Is(err, contract.ErrDuplicate) {
			return nil, apperr.ValidationField("name", "already exists")
		}
		return nil, err
	}
	return toProjectResponse(project), nil
}

func (r *projectRegistry) List(ctx context.Context) ([]*dto.ProjectResponse, error) {
	uow := r.uowFactory.NewUnitOfWork(ctx)
	projects, err := uow.ProjectRepository().List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*dto.ProjectResponse, 0, len(projects))
	for _, p := range projects {
		result = append(result, toProjectResponse(p))
	}
	return result, nil
}
