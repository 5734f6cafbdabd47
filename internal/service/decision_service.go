package service

import (
	"context"
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

type IDecisionService interface {
	Record(ctx context.Context, req *dto.RecordDecisionRequest) (*dto.DecisionResponse, error)
	List(ctx context.Context, req *dto.ListArtifactsRequest) ([]*dto.DecisionResponse, error)
	UpdateStatus(ctx context.Context, req *dto.UpdateDecisionStatusRequest) (*dto.DecisionResponse, error)
}

type decisionService struct {
	uowFactory     unitofwork.RepositoryFactory
	sessions       ISessionService
	correlation    ICorrelationService
	clock          clock.Clock
	eventPublisher IEventPublisher
	logger         logger.ILogger
}

func NewDecisionService(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	correlation ICorrelationService,
	clk clock.Clock,
	eventPublisher IEventPublisher,
	log logger.ILogger,
) IDecisionService {
	return &decisionService{
		uowFactory:     uowFactory,
		sessions:       sessions,
		correlation:    correlation,
		clock:          clk,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (s *decisionService) Record(ctx context.Context, req *dto.RecordDecisionRequest) (*dto.DecisionResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.ValidationField("title", "is required")
	}
	status := entity.DecisionStatusAccepted
	if req.Status != "" {
		status = entity.DecisionStatus(req.Status)
	}
	if err := checkProject(ctx, s.uowFactory, req.ProjectId); err != nil {
		return nil, err
	}

	var decision *entity.Decision
	_, err := writeAttributed(ctx, s.uowFactory, s.sessions, req.SessionId,
		func(uow unitofwork.UnitOfWork, session *entity.Session, requireActive bool) error {
			now := s.clock.Now()
			decision = &entity.Decision{
				Id:           uuid.New(),
				SessionId:    session.Id,
				ProjectId:    projectOrSession(req.ProjectId, session),
				Title:        title,
				Description:  req.Description,
				Rationale:    req.Rationale,
				DecisionType: req.DecisionType,
				Status:       status,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := uow.DecisionRepository().Create(ctx, decision); err != nil {
				return err
			}
			return s.correlation.Record(ctx, uow, ArtifactEvent{
				Kind:          ArtifactDecision,
				SessionId:     session.Id,
				At:            now,
				RequireActive: requireActive,
			})
		})
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.eventPublisher, s.logger, correlationModule, events.New(events.DecisionRecorded, decision.CreatedAt, map[string]interface{}{
		"decision_id": decision.Id.String(),
		"session_id":  decision.SessionId.String(),
	}))
	return toDecisionResponse(decision), nil
}

func (s *decisionService) List(ctx context.Context, req *dto.ListArtifactsRequest) ([]*dto.DecisionResponse, error) {
	filter, err := artifactFilter(ctx, s.sessions, req)
	if err != nil {
		return nil, err
	}
	decisions, err := s.uowFactory.NewUnitOfWork(ctx).DecisionRepository().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]*dto.DecisionResponse, 0, len(decisions))
	for _, d := range decisions {
		result = append(result, toDecisionResponse(d))
	}
	return result, nil
}

func (s *decisionService) UpdateStatus(ctx context.Context, req *dto.UpdateDecisionStatusRequest) (*dto.DecisionResponse, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).DecisionRepository()
	ok, err := repo.UpdateStatus(ctx, req.Id, entity.DecisionStatus(req.Status), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("decision", req.Id)
	}
	decision, err := repo.FindByID(ctx, req.Id)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, apperr.NotFound("decision", req.Id)
	}
	return toDecisionResponse(decision), nil
}

// checkProject verifies an explicit project reference.
func checkProject(ctx context.Context, uowFactory unitofwork.RepositoryFactory, projectId *uuid.UUID) error {
	if projectId == nil {
		return nil
	}
	project, err := uowFactory.NewUnitOfWork(ctx).ProjectRepository().FindByID(ctx, *projectId)
	if err != nil {
		return err
	}
	if project == nil {
		return apperr.NotFound("project", *projectId)
	}
	return nil
}

func projectOrSession(projectId *uuid.UUID, session *entity.Session) *uuid.UUID {
	if projectId != nil {
		return projectId
	}
	return session.ProjectId
}

func artifactFilter(ctx context.Context, sessions ISessionService, req *dto.ListArtifactsRequest) (contract.ArtifactFilter, error) {
	filter := contract.ArtifactFilter{
		ProjectId: req.ProjectId,
		Status:    req.Status,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if strings.TrimSpace(req.SessionId) != "" {
		session, err := sessions.LookupSession(ctx, req.SessionId)
		if err != nil {
			return filter, err
		}
		filter.SessionId = &session.Id
	}
	return filter, nil
}
