package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/repository/contract"

	"github.com/google/uuid"
)

type SessionRepository struct {
	access access
}

func cloneSession(s *entity.Session) *entity.Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ProjectId != nil {
		id := *s.ProjectId
		cp.ProjectId = &id
	}
	if s.Goal != nil {
		goal := *s.Goal
		cp.Goal = &goal
	}
	if s.EndedAt != nil {
		at := *s.EndedAt
		cp.EndedAt = &at
	}
	if s.Rating != nil {
		rating := *s.Rating
		cp.Rating = &rating
	}
	cp.Tags = append([]string{}, s.Tags...)
	return &cp
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	return r.access.run(func(d *dataset) error {
		for _, existing := range d.sessions {
			if session.IsActive() && existing.IsActive() {
				return contract.ErrActiveSessionExists
			}
			if existing.DisplayId == session.DisplayId {
				return contract.ErrDuplicate
			}
		}
		if session.Id == uuid.Nil {
			session.Id = uuid.New()
		}
		if session.Tags == nil {
			session.Tags = []string{}
		}
		session.UpdatedAt = time.Now().UTC()
		d.sessions[session.Id] = cloneSession(session)
		return nil
	})
}

func (r *SessionRepository) find(match func(s *entity.Session) bool) (*entity.Session, error) {
	var found *entity.Session
	err := r.access.run(func(d *dataset) error {
		for _, s := range d.sessions {
			if match(s) {
				found = cloneSession(s)
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var found *entity.Session
	err := r.access.run(func(d *dataset) error {
		found = cloneSession(d.sessions[id])
		return nil
	})
	return found, err
}

func (r *SessionRepository) FindByDisplayID(ctx context.Context, displayId string) (*entity.Session, error) {
	return r.find(func(s *entity.Session) bool { return s.DisplayId == displayId })
}

func (r *SessionRepository) FindActive(ctx context.Context) (*entity.Session, error) {
	return r.find(func(s *entity.Session) bool { return s.IsActive() })
}

func (r *SessionRepository) List(ctx context.Context, filter contract.SessionFilter) ([]*entity.Session, int64, error) {
	var matched []*entity.Session
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	err := r.access.run(func(d *dataset) error {
		for _, s := range d.sessions {
			if filter.ProjectId != nil && (s.ProjectId == nil || *s.ProjectId != *filter.ProjectId) {
				continue
			}
			if filter.Status != nil && s.Status != *filter.Status {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(s.DisplayId), search) &&
				!strings.Contains(strings.ToLower(s.Title), search) {
				continue
			}
			matched = append(matched, cloneSession(s))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastActivityAt.After(matched[j].LastActivityAt)
	})
	return paginate(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (r *SessionRepository) NextDisplaySeq(ctx context.Context) (int64, error) {
	return r.access.store.nextSeq(), nil
}

// update replaces the stored session with a mutated copy when match holds.
func (r *SessionRepository) update(id uuid.UUID, match func(s *entity.Session) bool, mutate func(s *entity.Session)) (*entity.Session, error) {
	var updated *entity.Session
	err := r.access.run(func(d *dataset) error {
		current, ok := d.sessions[id]
		if !ok || !match(current) {
			return nil
		}
		cp := cloneSession(current)
		mutate(cp)
		cp.UpdatedAt = time.Now().UTC()
		d.sessions[id] = cp
		updated = cloneSession(cp)
		return nil
	})
	return updated, err
}

func isActive(s *entity.Session) bool { return s.IsActive() }

func anySession(*entity.Session) bool { return true }

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	updated, err := r.update(id, isActive, func(s *entity.Session) {
		if at.After(s.LastActivityAt) {
			s.LastActivityAt = at
		}
	})
	return updated != nil, err
}

func (r *SessionRepository) Deactivate(ctx context.Context, id uuid.UUID, endedAt time.Time, reason string) (bool, error) {
	updated, err := r.update(id, isActive, func(s *entity.Session) {
		s.Status = entity.SessionStatusInactive
		s.EndedAt = &endedAt
		s.EndReason = reason
	})
	return updated != nil, err
}

func demote(s *entity.Session, reason string) {
	endedAt := s.LastActivityAt
	s.Status = entity.SessionStatusInactive
	s.EndedAt = &endedAt
	s.EndReason = reason
}

func (r *SessionRepository) DeactivateIfStale(ctx context.Context, id uuid.UUID, cutoff time.Time, reason string) (*entity.Session, error) {
	return r.update(id,
		func(s *entity.Session) bool { return s.IsActive() && s.LastActivityAt.Before(cutoff) },
		func(s *entity.Session) { demote(s, reason) },
	)
}

func (r *SessionRepository) SweepStale(ctx context.Context, cutoff time.Time, reason string) ([]*entity.Session, error) {
	var demoted []*entity.Session
	err := r.access.run(func(d *dataset) error {
		for id, s := range d.sessions {
			if !s.IsActive() || !s.LastActivityAt.Before(cutoff) {
				continue
			}
			cp := cloneSession(s)
			demote(cp, reason)
			cp.UpdatedAt = time.Now().UTC()
			d.sessions[id] = cp
			demoted = append(demoted, cloneSession(cp))
		}
		return nil
	})
	return demoted, err
}

func (r *SessionRepository) IncrementCounters(ctx context.Context, id uuid.UUID, delta contract.CounterDelta, touchAt *time.Time, requireActive bool) (bool, error) {
	match := anySession
	if requireActive {
		match = isActive
	}
	updated, err := r.update(id, match, func(s *entity.Session) {
		s.ContextsCreated += delta.Contexts
		s.DecisionsCreated += delta.Decisions
		s.TasksCreated += delta.TasksCreated
		s.TasksCompleted += delta.TasksCompleted
		s.TokenInput += delta.TokenInput
		s.TokenOutput += delta.TokenOutput
		if touchAt != nil && s.IsActive() && touchAt.After(s.LastActivityAt) {
			s.LastActivityAt = *touchAt
		}
	})
	return updated != nil, err
}

func (r *SessionRepository) SetCounters(ctx context.Context, id uuid.UUID, counters entity.Counters) error {
	_, err := r.update(id, anySession, func(s *entity.Session) {
		s.ContextsCreated = counters.ContextsCreated
		s.DecisionsCreated = counters.DecisionsCreated
		s.TasksCreated = counters.TasksCreated
		s.TasksCompleted = counters.TasksCompleted
	})
	return err
}

func (r *SessionRepository) Update(ctx context.Context, id uuid.UUID, patch contract.SessionPatch) (bool, error) {
	updated, err := r.update(id, anySession, func(s *entity.Session) {
		if patch.Title != nil {
			s.Title = *patch.Title
		}
		if patch.Description != nil {
			s.Description = *patch.Description
		}
		if patch.Goal != nil {
			goal := *patch.Goal
			s.Goal = &goal
		}
		if patch.Tags != nil {
			s.Tags = append([]string{}, (*patch.Tags)...)
		}
		if patch.Rating != nil {
			rating := *patch.Rating
			s.Rating = &rating
		}
		if patch.ProjectId != nil {
			projectId := *patch.ProjectId
			s.ProjectId = &projectId
		}
	})
	return updated != nil, err
}

func (r *SessionRepository) Aggregate(ctx context.Context, projectId *uuid.UUID) (*contract.SessionAggregate, error) {
	agg := &contract.SessionAggregate{}
	err := r.access.run(func(d *dataset) error {
		for _, s := range d.sessions {
			if projectId != nil && (s.ProjectId == nil || *s.ProjectId != *projectId) {
				continue
			}
			agg.Sessions++
			if s.IsActive() {
				agg.ActiveSessions++
			}
			agg.ContextsCreated += s.ContextsCreated
			agg.DecisionsCreated += s.DecisionsCreated
			agg.TasksCreated += s.TasksCreated
			agg.TasksCompleted += s.TasksCompleted
			agg.TokenInput += s.TokenInput
			agg.TokenOutput += s.TokenOutput

			end := s.LastActivityAt
			if s.EndedAt != nil {
				end = *s.EndedAt
			}
			agg.TotalSeconds += end.Sub(s.StartedAt).Seconds()
		}
		return nil
	})
	return agg, err
}

func (r *SessionRepository) LastUsedProjectID(ctx context.Context) (*uuid.UUID, error) {
	var latest *entity.Session
	err := r.access.run(func(d *dataset) error {
		for _, s := range d.sessions {
			if s.ProjectId == nil {
				continue
			}
			if latest == nil || s.LastActivityAt.After(latest.LastActivityAt) {
				latest = s
			}
		}
		return nil
	})
	if err != nil || latest == nil {
		return nil, err
	}
	id := *latest.ProjectId
	return &id, nil
}
