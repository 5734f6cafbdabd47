package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/pkg/validation"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/events"
	"devmemory-be/pkg/tokens"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	sessionModule = "SESSION"

	// resolveAttempts bounds the demote/create loop of active-session
	// resolution when it keeps losing races to other writers.
	resolveAttempts = 3

	defaultListSessionsLimit = 20
	maxListSessionsLimit     = 100
)

type ISessionService interface {
	GetActiveSession(ctx context.Context) (*dto.GetActiveSessionResponse, error)
	StartSession(ctx context.Context, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error)
	RecordActivity(ctx context.Context, req *dto.RecordActivityRequest) (*dto.RecordActivityResponse, error)
	RenameSession(ctx context.Context, req *dto.RenameSessionRequest) (*dto.SessionResponse, error)
	ReassignProject(ctx context.Context, req *dto.ReassignProjectRequest) (*dto.ReassignProjectResponse, error)
	EndSession(ctx context.Context, req *dto.EndSessionRequest) (*dto.EndSessionResponse, error)

	GetSession(ctx context.Context, ref string) (*dto.SessionResponse, error)
	ListSessions(ctx context.Context, req *dto.ListSessionsRequest) (*dto.ListSessionsResponse, error)
	UpdateDetails(ctx context.Context, req *dto.UpdateSessionRequest) (*dto.SessionResponse, error)
	RateSession(ctx context.Context, req *dto.RateSessionRequest) (*dto.SessionResponse, error)
	RecordTokenUsage(ctx context.Context, req *dto.RecordTokensRequest) (*dto.RecordTokensResponse, error)

	// TouchActive bumps the active session if there is a live one. It never
	// creates a session.
	TouchActive(ctx context.Context) error
	// LookupSession resolves an internal id or display id.
	LookupSession(ctx context.Context, ref string) (*entity.Session, error)
	// CurrentSession returns the active session, creating one lazily.
	CurrentSession(ctx context.Context) (*entity.Session, error)
	// LiveSession returns the active session unless it is stale. It never
	// demotes or creates a session.
	LiveSession(ctx context.Context) (*entity.Session, error)
	// SettleStale demotes session if it is active but idle past the timeout
	// and returns its current state.
	SettleStale(ctx context.Context, session *entity.Session) (*entity.Session, error)
}

type sessionService struct {
	uowFactory     unitofwork.RepositoryFactory
	projects       IProjectRegistry
	clock          clock.Clock
	timeout        time.Duration
	eventPublisher IEventPublisher
	estimator      *tokens.Estimator
	logger         logger.ILogger
	group          singleflight.Group
}

func NewSessionService(
	uowFactory unitofwork.RepositoryFactory,
	projects IProjectRegistry,
	clk clock.Clock,
	timeout time.Duration,
	eventPublisher IEventPublisher,
	estimator *tokens.Estimator,
	log logger.ILogger,
) ISessionService {
	return &sessionService{
		uowFactory:     uowFactory,
		projects:       projects,
		clock:          clk,
		timeout:        timeout,
		eventPublisher: eventPublisher,
		estimator:      estimator,
		logger:         log,
	}
}

type activeResolution struct {
	session *entity.Session
	created bool
	demoted *entity.Session
}

func (s *sessionService) GetActiveSession(ctx context.Context) (*dto.GetActiveSessionResponse, error) {
	res, err := s.resolveShared(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.GetActiveSessionResponse{
		Session: toSessionResponse(res.session),
		Created: res.created,
		Demoted: toSessionResponse(res.demoted),
	}, nil
}

func (s *sessionService) CurrentSession(ctx context.Context) (*entity.Session, error) {
	res, err := s.resolveShared(ctx)
	if err != nil {
		return nil, err
	}
	return res.session, nil
}

// resolveShared collapses concurrent in-process resolutions onto one call.
// Across processes the single-active index does the same job.
func (s *sessionService) resolveShared(ctx context.Context) (*activeResolution, error) {
	v, err, _ := s.group.Do("active", func() (interface{}, error) {
		return s.resolveActive(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.(*activeResolution), nil
}

func (s *sessionService) resolveActive(ctx context.Context) (*activeResolution, error) {
	res := &activeResolution{}
	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()

	for attempt := 0; attempt < resolveAttempts; attempt++ {
		now := s.clock.Now()
		active, err := repo.FindActive(ctx)
		if err != nil {
			return nil, err
		}

		if active != nil {
			if !active.IsStale(now, s.timeout) {
				res.session = active
				return res, nil
			}
			demoted, err := repo.DeactivateIfStale(ctx, active.Id, now.Add(-s.timeout), entity.EndReasonTimeout)
			if err != nil {
				return nil, err
			}
			if demoted != nil {
				res.demoted = demoted
				s.publishEnded(ctx, demoted)
			}
			continue
		}

		projectId, err := s.projects.GetDefault(ctx)
		if err != nil {
			return nil, err
		}
		session, err := s.createSession(ctx, repo, &projectId, now, nil)
		if errors.Is(err, contract.ErrActiveSessionExists) {
			// Another writer created it first; reuse theirs.
			continue
		}
		if err != nil {
			return nil, err
		}
		res.session = session
		res.created = true
		return res, nil
	}

	return nil, apperr.TimeoutRace("active session kept changing during resolution")
}

func (s *sessionService) newSession(seq int64, projectId *uuid.UUID, now time.Time, req *dto.StartSessionRequest) *entity.Session {
	displayId := fmt.Sprintf("S%04d", seq)
	session := &entity.Session{
		Id:             uuid.New(),
		DisplayId:      displayId,
		ProjectId:      projectId,
		Title:          "Session " + displayId,
		Status:         entity.SessionStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
		Tags:           []string{},
	}
	if req != nil {
		if t := strings.TrimSpace(req.Title); t != "" {
			session.Title = t
		}
		session.Description = req.Description
		session.Goal = req.Goal
		if req.Tags != nil {
			session.Tags = req.Tags
		}
	}
	return session
}

func (s *sessionService) createSession(ctx context.Context, repo contract.SessionRepository, projectId *uuid.UUID, now time.Time, req *dto.StartSessionRequest) (*entity.Session, error) {
	seq, err := repo.NextDisplaySeq(ctx)
	if err != nil {
		return nil, err
	}
	session := s.newSession(seq, projectId, now, req)
	if err := repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info(sessionModule, "Session started", map[string]interface{}{
		"session_id": session.Id,
		"display_id": session.DisplayId,
		"project_id": projectId,
	})
	publishEvent(ctx, s.eventPublisher, s.logger, sessionModule, events.New(events.SessionStarted, now, map[string]interface{}{
		"session_id": session.Id.String(),
		"display_id": session.DisplayId,
	}))
	return session, nil
}

func (s *sessionService) StartSession(ctx context.Context, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	if req.Title != "" {
		if err := validation.DisplayName(req.Title); err != nil {
			return nil, err
		}
	}

	var projectId uuid.UUID
	if req.ProjectId != nil {
		exists, err := s.projects.Exists(ctx, *req.ProjectId)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperr.NotFound("project", *req.ProjectId)
		}
		projectId = *req.ProjectId
	} else {
		id, err := s.projects.GetDefault(ctx)
		if err != nil {
			return nil, err
		}
		projectId = id
	}

	for attempt := 0; attempt < resolveAttempts; attempt++ {
		res, err := s.startOnce(ctx, projectId, req)
		if errors.Is(err, contract.ErrActiveSessionExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, apperr.TimeoutRace("another session kept taking the active slot")
}

func (s *sessionService) startOnce(ctx context.Context, projectId uuid.UUID, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	seq, err := uow.SessionRepository().NextDisplaySeq(ctx)
	if err != nil {
		return nil, err
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	repo := uow.SessionRepository()
	now := s.clock.Now()

	var superseded *entity.Session
	current, err := repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		endedAt, reason := now, entity.EndReasonSuperseded
		if current.IsStale(now, s.timeout) {
			endedAt, reason = current.LastActivityAt, entity.EndReasonTimeout
		}
		if _, err := repo.Deactivate(ctx, current.Id, endedAt, reason); err != nil {
			return nil, err
		}
		current.Status = entity.SessionStatusInactive
		current.EndedAt = &endedAt
		current.EndReason = reason
		superseded = current
	}

	session := s.newSession(seq, &projectId, now, req)
	if err := repo.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	if superseded != nil {
		s.publishEnded(ctx, superseded)
	}
	s.logger.Info(sessionModule, "Session started", map[string]interface{}{
		"session_id": session.Id,
		"display_id": session.DisplayId,
		"project_id": projectId,
	})
	publishEvent(ctx, s.eventPublisher, s.logger, sessionModule, events.New(events.SessionStarted, now, map[string]interface{}{
		"session_id": session.Id.String(),
		"display_id": session.DisplayId,
	}))

	return &dto.StartSessionResponse{
		Session:    toSessionResponse(session),
		Superseded: toSessionResponse(superseded),
	}, nil
}

func (s *sessionService) publishEnded(ctx context.Context, session *entity.Session) {
	s.logger.Info(sessionModule, "Session ended", map[string]interface{}{
		"session_id": session.Id,
		"display_id": session.DisplayId,
		"reason":     session.EndReason,
	})
	at := s.clock.Now()
	if session.EndedAt != nil {
		at = *session.EndedAt
	}
	publishEvent(ctx, s.eventPublisher, s.logger, sessionModule, events.New(events.SessionEnded, at, map[string]interface{}{
		"session_id": session.Id.String(),
		"display_id": session.DisplayId,
		"reason":     session.EndReason,
	}))
}

func (s *sessionService) LookupSession(ctx context.Context, ref string) (*entity.Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperr.ValidationField("session_id", "is required")
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	var (
		session *entity.Session
		err     error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		session, err = repo.FindByID(ctx, id)
	} else {
		session, err = repo.FindByDisplayID(ctx, strings.ToUpper(ref))
	}
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.NotFound("session", ref)
	}
	return session, nil
}

// touch bumps an explicit session. A stale but not yet swept session is
// demoted instead, so activity never revives it.
func (s *sessionService) touch(ctx context.Context, session *entity.Session) (*entity.Session, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	now := s.clock.Now()

	if !session.IsActive() {
		return nil, apperr.TimeoutRace("session %s is no longer active", session.DisplayId)
	}
	settled, err := s.SettleStale(ctx, session)
	if err != nil {
		return nil, err
	}
	if !settled.IsActive() {
		return nil, apperr.TimeoutRace("session %s timed out", session.DisplayId)
	}

	ok, err := repo.Touch(ctx, session.Id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.TimeoutRace("session %s is no longer active", session.DisplayId)
	}
	if now.After(session.LastActivityAt) {
		session.LastActivityAt = now
	}
	return session, nil
}

func (s *sessionService) RecordActivity(ctx context.Context, req *dto.RecordActivityRequest) (*dto.RecordActivityResponse, error) {
	implicit := strings.TrimSpace(req.SessionId) == ""

	var touched *entity.Session
	for attempt := 0; attempt < 2; attempt++ {
		var (
			session *entity.Session
			err     error
		)
		if implicit {
			session, err = s.CurrentSession(ctx)
		} else {
			session, err = s.LookupSession(ctx, req.SessionId)
		}
		if err != nil {
			return nil, err
		}

		touched, err = s.touch(ctx, session)
		if errors.Is(err, apperr.ErrTimeoutRace) && implicit && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	return &dto.RecordActivityResponse{
		SessionId:      touched.Id,
		DisplayId:      touched.DisplayId,
		LastActivityAt: touched.LastActivityAt,
	}, nil
}

func (s *sessionService) SettleStale(ctx context.Context, session *entity.Session) (*entity.Session, error) {
	now := s.clock.Now()
	if !session.IsActive() || !session.IsStale(now, s.timeout) {
		return session, nil
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	demoted, err := repo.DeactivateIfStale(ctx, session.Id, now.Add(-s.timeout), entity.EndReasonTimeout)
	if err != nil {
		return nil, err
	}
	if demoted != nil {
		s.publishEnded(ctx, demoted)
		return demoted, nil
	}

	// Touched or ended by someone else in the meantime.
	current, err := repo.FindByID(ctx, session.Id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.NotFound("session", session.Id)
	}
	return current, nil
}

func (s *sessionService) LiveSession(ctx context.Context) (*entity.Session, error) {
	active, err := s.uowFactory.NewUnitOfWork(ctx).SessionRepository().FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil || active.IsStale(s.clock.Now(), s.timeout) {
		return nil, apperr.NotFound("session", "active")
	}
	return active, nil
}

func (s *sessionService) TouchActive(ctx context.Context) error {
	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	active, err := repo.FindActive(ctx)
	if err != nil || active == nil {
		return err
	}
	now := s.clock.Now()
	if active.IsStale(now, s.timeout) {
		return nil
	}
	_, err = repo.Touch(ctx, active.Id, now)
	return err
}

func (s *sessionService) RenameSession(ctx context.Context, req *dto.RenameSessionRequest) (*dto.SessionResponse, error) {
	name := strings.TrimSpace(req.Name)
	if err := validation.DisplayName(name); err != nil {
		return nil, err
	}
	session, err := s.LookupSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}

	updated, err := s.patch(ctx, session.Id, contract.SessionPatch{Title: &name})
	if err != nil {
		return nil, err
	}
	publishEvent(ctx, s.eventPublisher, s.logger, sessionModule, events.New(events.SessionRenamed, s.clock.Now(), map[string]interface{}{
		"session_id": session.Id.String(),
		"old_title":  session.Title,
		"new_title":  name,
	}))
	return toSessionResponse(updated), nil
}

func (s *sessionService) patch(ctx context.Context, id uuid.UUID, patch contract.SessionPatch) (*entity.Session, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	ok, err := repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	session, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.NotFound("session", id)
	}
	return session, nil
}

func (s *sessionService) ReassignProject(ctx context.Context, req *dto.ReassignProjectRequest) (*dto.ReassignProjectResponse, error) {
	session, err := s.LookupSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	exists, err := s.projects.Exists(ctx, req.ProjectId)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("project", req.ProjectId)
	}

	if !req.Confirm {
		details := map[string]interface{}{
			"session_id":        session.Id,
			"display_id":        session.DisplayId,
			"current_project":   session.ProjectId,
			"new_project":       req.ProjectId,
			"contexts_created":  session.ContextsCreated,
			"decisions_created": session.DecisionsCreated,
			"tasks_created":     session.TasksCreated,
		}
		return nil, &apperr.ConfirmationRequiredError{
			Action: "session.reassignProject",
			Warning: fmt.Sprintf("session %s will move to project %s; its existing artifacts keep their current project",
				session.DisplayId, req.ProjectId),
			Details: details,
		}
	}

	projectId := req.ProjectId
	updated, err := s.patch(ctx, session.Id, contract.SessionPatch{ProjectId: &projectId})
	if err != nil {
		return nil, err
	}

	s.logger.Info(sessionModule, "Session project reassigned", map[string]interface{}{
		"session_id":  session.Id,
		"old_project": session.ProjectId,
		"new_project": projectId,
	})
	publishEvent(ctx, s.eventPublisher, s.logger, sessionModule, events.New(events.SessionProjectChanged, s.clock.Now(), map[string]interface{}{
		"session_id":  session.Id.String(),
		"new_project": projectId.String(),
	}))
	return &dto.ReassignProjectResponse{
		Session:           toSessionResponse(updated),
		PreviousProjectId: session.ProjectId,
	}, nil
}

func (s *sessionService) EndSession(ctx context.Context, req *dto.EndSessionRequest) (*dto.EndSessionResponse, error) {
	session, err := s.LookupSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return &dto.EndSessionResponse{Session: toSessionResponse(session), AlreadyEnded: true}, nil
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = entity.EndReasonExplicit
	}
	endedAt := s.clock.Now()
	if session.IsStale(endedAt, s.timeout) {
		endedAt = session.LastActivityAt
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	ok, err := repo.Deactivate(ctx, session.Id, endedAt, reason)
	if err != nil {
		return nil, err
	}

	current, err := repo.FindByID(ctx, session.Id)
	if err != nil {
		return nil, err
	}
	if ok {
		s.publishEnded(ctx, current)
	}
	return &dto.EndSessionResponse{Session: toSessionResponse(current), AlreadyEnded: !ok}, nil
}

func (s *sessionService) GetSession(ctx context.Context, ref string) (*dto.SessionResponse, error) {
	session, err := s.LookupSession(ctx, ref)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

func (s *sessionService) ListSessions(ctx context.Context, req *dto.ListSessionsRequest) (*dto.ListSessionsResponse, error) {
	filter := contract.SessionFilter{
		ProjectId: req.ProjectId,
		Search:    req.Search,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListSessionsLimit
	}
	if filter.Limit > maxListSessionsLimit {
		return nil, apperr.ValidationField("limit", "must be at most 100")
	}
	if req.Status != "" {
		status := entity.SessionStatus(req.Status)
		filter.Status = &status
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, total, err := uow.SessionRepository().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]*dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, toSessionResponse(session))
	}
	return &dto.ListSessionsResponse{Sessions: result, Total: total}, nil
}

func (s *sessionService) UpdateDetails(ctx context.Context, req *dto.UpdateSessionRequest) (*dto.SessionResponse, error) {
	session, err := s.LookupSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	if req.Description != nil && len([]rune(*req.Description)) > 2000 {
		return nil, apperr.ValidationField("description", "must be at most 2000")
	}

	patch := contract.SessionPatch{
		Description: req.Description,
		Goal:        req.Goal,
		Tags:        req.Tags,
	}
	updated, err := s.patch(ctx, session.Id, patch)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(updated), nil
}

func (s *sessionService) RateSession(ctx context.Context, req *dto.RateSessionRequest) (*dto.SessionResponse, error) {
	if req.Score < 1 || req.Score > 5 {
		return nil, apperr.ValidationField("score", "must be between 1 and 5")
	}
	session, err := s.LookupSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}

	rating := entity.SessionRating{Score: req.Score, Comment: req.Comment}
	updated, err := s.patch(ctx, session.Id, contract.SessionPatch{Rating: &rating})
	if err != nil {
		return nil, err
	}
	return toSessionResponse(updated), nil
}

func (s *sessionService) RecordTokenUsage(ctx context.Context, req *dto.RecordTokensRequest) (*dto.RecordTokensResponse, error) {
	var (
		session *entity.Session
		err     error
	)
	if strings.TrimSpace(req.SessionId) == "" {
		session, err = s.CurrentSession(ctx)
	} else {
		session, err = s.LookupSession(ctx, req.SessionId)
		if err == nil {
			session, err = s.SettleStale(ctx, session)
		}
	}
	if err != nil {
		return nil, err
	}

	input, output, estimated := req.Input, req.Output, false
	if input == 0 && req.InputText != "" {
		input = int64(s.estimator.Count(req.InputText))
		estimated = true
	}
	if output == 0 && req.OutputText != "" {
		output = int64(s.estimator.Count(req.OutputText))
		estimated = true
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).SessionRepository()
	if input != 0 || output != 0 {
		now := s.clock.Now()
		delta := contract.CounterDelta{TokenInput: input, TokenOutput: output}
		ok, err := repo.IncrementCounters(ctx, session.Id, delta, &now, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("session", session.Id)
		}
	}

	current, err := repo.FindByID(ctx, session.Id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.NotFound("session", session.Id)
	}
	return &dto.RecordTokensResponse{
		SessionId:   current.Id,
		AddedInput:  input,
		AddedOutput: output,
		TokenInput:  current.TokenInput,
		TokenOutput: current.TokenOutput,
		Estimated:   estimated,
	}, nil
}
