package service

import (
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
)

func toCountersResponse(s *entity.Session) dto.SessionCountersResponse {
	return dto.SessionCountersResponse{
		ContextsCreated:  s.ContextsCreated,
		DecisionsCreated: s.DecisionsCreated,
		TasksCreated:     s.TasksCreated,
		TasksCompleted:   s.TasksCompleted,
	}
}

func toSessionResponse(s *entity.Session) *dto.SessionResponse {
	if s == nil {
		return nil
	}
	res := &dto.SessionResponse{
		Id:             s.Id,
		DisplayId:      s.DisplayId,
		ProjectId:      s.ProjectId,
		Title:          s.Title,
		Description:    s.Description,
		Goal:           s.Goal,
		Status:         string(s.Status),
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
		EndedAt:        s.EndedAt,
		EndReason:      s.EndReason,
		TokenInput:     s.TokenInput,
		TokenOutput:    s.TokenOutput,
		Counters:       toCountersResponse(s),
		Tags:           s.Tags,
	}
	if res.Tags == nil {
		res.Tags = []string{}
	}
	if s.Rating != nil {
		res.Rating = &dto.SessionRatingResponse{Score: s.Rating.Score, Comment: s.Rating.Comment}
	}
	return res
}

func toContextResponse(c *entity.ContextEntry) *dto.ContextResponse {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return &dto.ContextResponse{
		Id:           c.Id,
		SessionId:    c.SessionId,
		ProjectId:    c.ProjectId,
		Content:      c.Content,
		Type:         string(c.Type),
		Tags:         tags,
		HasEmbedding: len(c.Embedding) > 0,
		CreatedAt:    c.CreatedAt,
	}
}

func toDecisionResponse(d *entity.Decision) *dto.DecisionResponse {
	return &dto.DecisionResponse{
		Id:           d.Id,
		SessionId:    d.SessionId,
		ProjectId:    d.ProjectId,
		Title:        d.Title,
		Description:  d.Description,
		Rationale:    d.Rationale,
		DecisionType: d.DecisionType,
		Status:       string(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func toTaskResponse(t *entity.Task) *dto.TaskResponse {
	return &dto.TaskResponse{
		Id:          t.Id,
		SessionId:   t.SessionId,
		ProjectId:   t.ProjectId,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func toNamingResponse(n *entity.NamingEntry) *dto.NamingResponse {
	return &dto.NamingResponse{
		Id:            n.Id,
		SessionId:     n.SessionId,
		ProjectId:     n.ProjectId,
		EntityType:    n.EntityType,
		CanonicalName: n.CanonicalName,
		Description:   n.Description,
		Status:        string(n.Status),
		CreatedAt:     n.CreatedAt,
	}
}

func toProjectResponse(p *entity.Project) *dto.ProjectResponse {
	return &dto.ProjectResponse{
		Id:          p.Id,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}
