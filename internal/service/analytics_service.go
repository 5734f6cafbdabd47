package service

import (
	"context"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/repository/unitofwork"
)

type IAnalyticsService interface {
	ProjectSummary(ctx context.Context, req *dto.ProjectSummaryRequest) (*dto.ProjectSummaryResponse, error)
	SessionSummary(ctx context.Context, req *dto.SessionRefRequest) (*dto.SessionSummaryResponse, error)
}

type analyticsService struct {
	uowFactory  unitofwork.RepositoryFactory
	sessions    ISessionService
	correlation ICorrelationService
}

func NewAnalyticsService(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	correlation ICorrelationService,
) IAnalyticsService {
	return &analyticsService{
		uowFactory:  uowFactory,
		sessions:    sessions,
		correlation: correlation,
	}
}

func (s *analyticsService) ProjectSummary(ctx context.Context, req *dto.ProjectSummaryRequest) (*dto.ProjectSummaryResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if req.ProjectId != nil {
		project, err := uow.ProjectRepository().FindByID(ctx, *req.ProjectId)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, apperr.NotFound("project", *req.ProjectId)
		}
	}

	agg, err := uow.SessionRepository().Aggregate(ctx, req.ProjectId)
	if err != nil {
		return nil, err
	}
	res := &dto.ProjectSummaryResponse{
		ProjectId:      req.ProjectId,
		Sessions:       agg.Sessions,
		ActiveSessions: agg.ActiveSessions,
		Counters: dto.SessionCountersResponse{
			ContextsCreated:  agg.ContextsCreated,
			DecisionsCreated: agg.DecisionsCreated,
			TasksCreated:     agg.TasksCreated,
			TasksCompleted:   agg.TasksCompleted,
		},
		TokenInput:   agg.TokenInput,
		TokenOutput:  agg.TokenOutput,
		TotalSeconds: agg.TotalSeconds,
	}
	if agg.Sessions > 0 {
		res.AverageSessionSeconds = agg.TotalSeconds / float64(agg.Sessions)
	}
	return res, nil
}

func (s *analyticsService) SessionSummary(ctx context.Context, req *dto.SessionRefRequest) (*dto.SessionSummaryResponse, error) {
	session, err := s.sessions.LookupSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	counters, err := s.correlation.Counters(ctx, &dto.CountersRequest{SessionId: session.Id.String()})
	if err != nil {
		return nil, err
	}

	res := &dto.SessionSummaryResponse{
		Session:  toSessionResponse(session),
		Counters: counters,
	}
	var first, last time.Time
	for ev, err := range s.correlation.TimelineSeq(ctx, session.Id) {
		if err != nil {
			return nil, err
		}
		if res.EventCount == 0 {
			first = ev.At
		}
		last = ev.At
		res.EventCount++
	}
	if res.EventCount > 0 {
		res.FirstEventAt = &first
		res.LastEventAt = &last
	}
	return res, nil
}

