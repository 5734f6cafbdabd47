package service

import (
	"context"
	"errors"
	"strings"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/events"

	"github.com/google/uuid"
)

type INamingService interface {
	Register(ctx context.Context, req *dto.RegisterNamingRequest) (*dto.NamingResponse, error)
	List(ctx context.Context, req *dto.ListArtifactsRequest) ([]*dto.NamingResponse, error)
}

type namingService struct {
	uowFactory     unitofwork.RepositoryFactory
	sessions       ISessionService
	correlation    ICorrelationService
	clock          clock.Clock
	eventPublisher IEventPublisher
	logger         logger.ILogger
}

func NewNamingService(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	correlation ICorrelationService,
	clk clock.Clock,
	eventPublisher IEventPublisher,
	log logger.ILogger,
) INamingService {
	return &namingService{
		uowFactory:     uowFactory,
		sessions:       sessions,
		correlation:    correlation,
		clock:          clk,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (s *namingService) Register(ctx context.Context, req *dto.RegisterNamingRequest) (*dto.NamingResponse, error) {
	name := strings.TrimSpace(req.CanonicalName)
	entityType := strings.TrimSpace(req.EntityType)
	if name == "" {
		return nil, apperr.ValidationField("canonical_name", "is required")
	}
	if entityType == "" {
		return nil, apperr.ValidationField("entity_type", "is required")
	}
	if err := checkProject(ctx, s.uowFactory, req.ProjectId); err != nil {
		return nil, err
	}

	var entry *entity.NamingEntry
	_, err := writeAttributed(ctx, s.uowFactory, s.sessions, req.SessionId,
		func(uow unitofwork.UnitOfWork, session *entity.Session, requireActive bool) error {
			projectId := projectOrSession(req.ProjectId, session)
			existing, err := uow.NamingRepository().FindByName(ctx, projectId, name)
			if err != nil {
				return err
			}
			if existing != nil {
				return apperr.ValidationField("canonical_name", "is already registered in this project")
			}

			now := s.clock.Now()
			entry = &entity.NamingEntry{
				Id:            uuid.New(),
				SessionId:     session.Id,
				ProjectId:     projectId,
				EntityType:    entityType,
				CanonicalName: name,
				Description:   req.Description,
				Status:        entity.NamingStatusActive,
				CreatedAt:     now,
			}
			if err := uow.NamingRepository().Create(ctx, entry); err != nil {
				if errors.Is(err, contract.ErrDuplicate) {
					return apperr.ValidationField("canonical_name", "is already registered in this project")
				}
				return err
			}
			return s.correlation.Record(ctx, uow, ArtifactEvent{
				Kind:          ArtifactNaming,
				SessionId:     session.Id,
				At:            now,
				RequireActive: requireActive,
			})
		})
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.eventPublisher, s.logger, correlationModule, events.New(events.NamingRegistered, entry.CreatedAt, map[string]interface{}{
		"naming_id":      entry.Id.String(),
		"canonical_name": entry.CanonicalName,
	}))
	return toNamingResponse(entry), nil
}

func (s *namingService) List(ctx context.Context, req *dto.ListArtifactsRequest) ([]*dto.NamingResponse, error) {
	filter, err := artifactFilter(ctx, s.sessions, req)
	if err != nil {
		return nil, err
	}
	entries, err := s.uowFactory.NewUnitOfWork(ctx).NamingRepository().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]*dto.NamingResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, toNamingResponse(e))
	}
	return result, nil
}
