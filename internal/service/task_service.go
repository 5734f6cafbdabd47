package service

import (
	"context"
	"strings"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/events"

	"github.com/google/uuid"
)

type ITaskService interface {
	Create(ctx context.Context, req *dto.CreateTaskRequest) (*dto.TaskResponse, error)
	List(ctx context.Context, req *dto.ListArtifactsRequest) ([]*dto.TaskResponse, error)
	// UpdateStatus moves a task between states. Completion is terminal and is
	// counted once, against the session that owns the task.
	UpdateStatus(ctx context.Context, req *dto.UpdateTaskStatusRequest) (*dto.TaskResponse, error)
}

type taskService struct {
	uowFactory     unitofwork.RepositoryFactory
	sessions       ISessionService
	correlation    ICorrelationService
	clock          clock.Clock
	eventPublisher IEventPublisher
	logger         logger.ILogger
}

func NewTaskService(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	correlation ICorrelationService,
	clk clock.Clock,
	eventPublisher IEventPublisher,
	log logger.ILogger,
) ITaskService {
	return &taskService{
		uowFactory:     uowFactory,
		sessions:       sessions,
		correlation:    correlation,
		clock:          clk,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (s *taskService) Create(ctx context.Context, req *dto.CreateTaskRequest) (*dto.TaskResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.ValidationField("title", "is required")
	}
	status := entity.TaskStatusTodo
	if req.Status != "" {
		status = entity.TaskStatus(req.Status)
	}
	if status == entity.TaskStatusCompleted {
		return nil, apperr.ValidationField("status", "a task cannot be created completed")
	}
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	if err := checkProject(ctx, s.uowFactory, req.ProjectId); err != nil {
		return nil, err
	}

	var task *entity.Task
	_, err := writeAttributed(ctx, s.uowFactory, s.sessions, req.SessionId,
		func(uow unitofwork.UnitOfWork, session *entity.Session, requireActive bool) error {
			now := s.clock.Now()
			task = &entity.Task{
				Id:          uuid.New(),
				SessionId:   session.Id,
				ProjectId:   projectOrSession(req.ProjectId, session),
				Title:       title,
				Description: req.Description,
				Priority:    priority,
				Status:      status,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := uow.TaskRepository().Create(ctx, task); err != nil {
				return err
			}
			return s.correlation.Record(ctx, uow, ArtifactEvent{
				Kind:          ArtifactTask,
				SessionId:     session.Id,
				At:            now,
				RequireActive: requireActive,
			})
		})
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.eventPublisher, s.logger, correlationModule, events.New(events.TaskCreated, task.CreatedAt, map[string]interface{}{
		"task_id":    task.Id.String(),
		"session_id": task.SessionId.String(),
	}))
	return toTaskResponse(task), nil
}

func (s *taskService) List(ctx context.Context, req *dto.ListArtifactsRequest) ([]*dto.TaskResponse, error) {
	filter, err := artifactFilter(ctx, s.sessions, req)
	if err != nil {
		return nil, err
	}
	tasks, err := s.uowFactory.NewUnitOfWork(ctx).TaskRepository().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]*dto.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, toTaskResponse(t))
	}
	return result, nil
}

func (s *taskService) UpdateStatus(ctx context.Context, req *dto.UpdateTaskStatusRequest) (*dto.TaskResponse, error) {
	status := entity.TaskStatus(req.Status)
	existing, err := s.uowFactory.NewUnitOfWork(ctx).TaskRepository().FindByID(ctx, req.Id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.NotFound("task", req.Id)
	}
	if existing.Status == entity.TaskStatusCompleted {
		if status == entity.TaskStatusCompleted {
			return toTaskResponse(existing), nil
		}
		return nil, apperr.ValidationField("status", "a completed task cannot change status")
	}

	if status == entity.TaskStatusCompleted {
		owner, err := s.sessions.LookupSession(ctx, existing.SessionId.String())
		if err != nil {
			return nil, err
		}
		if _, err := s.sessions.SettleStale(ctx, owner); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	var transitioned bool
	err = inTx(ctx, s.uowFactory, func(uow unitofwork.UnitOfWork) error {
		ok, err := uow.TaskRepository().UpdateStatus(ctx, req.Id, status, now)
		if err != nil {
			return err
		}
		transitioned = ok
		if !ok || status != entity.TaskStatusCompleted {
			return nil
		}
		return s.correlation.Record(ctx, uow, ArtifactEvent{
			Kind:      ArtifactTaskCompleted,
			SessionId: existing.SessionId,
			At:        now,
		})
	})
	if err != nil {
		return nil, err
	}

	task, err := s.uowFactory.NewUnitOfWork(ctx).TaskRepository().FindByID(ctx, req.Id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task", req.Id)
	}
	if !transitioned && task.Status != status {
		// Completed concurrently by another caller.
		return nil, apperr.ValidationField("status", "a completed task cannot change status")
	}
	if transitioned && status == entity.TaskStatusCompleted {
		publishEvent(ctx, s.eventPublisher, s.logger, correlationModule, events.New(events.TaskCompleted, now, map[string]interface{}{
			"task_id":    task.Id.String(),
			"session_id": task.SessionId.String(),
		}))
	}
	return toTaskResponse(task), nil
}
