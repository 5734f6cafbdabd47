package mapper

import (
	"encoding/json"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/model"

	"gorm.io/datatypes"
)

type SessionMapper struct{}

func NewSessionMapper() *SessionMapper {
	return &SessionMapper{}
}

func (m *SessionMapper) ToEntity(s *model.Session) *entity.Session {
	if s == nil {
		return nil
	}

	var rating *entity.SessionRating
	if len(s.Rating) > 0 && string(s.Rating) != "null" {
		var r entity.SessionRating
		if err := json.Unmarshal(s.Rating, &r); err == nil {
			rating = &r
		}
	}

	return &entity.Session{
		Id:               s.Id,
		DisplayId:        s.DisplayId,
		ProjectId:        s.ProjectId,
		Title:            s.Title,
		Description:      s.Description,
		Goal:             s.Goal,
		Status:           entity.SessionStatus(s.Status),
		StartedAt:        s.StartedAt,
		LastActivityAt:   s.LastActivityAt,
		EndedAt:          s.EndedAt,
		EndReason:        s.EndReason,
		TokenInput:       s.TokenInput,
		TokenOutput:      s.TokenOutput,
		ContextsCreated:  s.ContextsCreated,
		DecisionsCreated: s.DecisionsCreated,
		TasksCreated:     s.TasksCreated,
		TasksCompleted:   s.TasksCompleted,
		Tags:             []string(s.Tags),
		Rating:           rating,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (m *SessionMapper) ToModel(s *entity.Session) *model.Session {
	if s == nil {
		return nil
	}

	return &model.Session{
		Id:               s.Id,
		DisplayId:        s.DisplayId,
		ProjectId:        s.ProjectId,
		Title:            s.Title,
		Description:      s.Description,
		Goal:             s.Goal,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt,
		LastActivityAt:   s.LastActivityAt,
		EndedAt:          s.EndedAt,
		EndReason:        s.EndReason,
		TokenInput:       s.TokenInput,
		TokenOutput:      s.TokenOutput,
		ContextsCreated:  s.ContextsCreated,
		DecisionsCreated: s.DecisionsCreated,
		TasksCreated:     s.TasksCreated,
		TasksCompleted:   s.TasksCompleted,
		Tags:             datatypes.NewJSONSlice(nonNilTags(s.Tags)),
		Rating:           RatingJSON(s.Rating),
		UpdatedAt:        s.UpdatedAt,
	}
}

func (m *SessionMapper) ToEntities(sessions []*model.Session) []*entity.Session {
	entities := make([]*entity.Session, len(sessions))
	for i, s := range sessions {
		entities[i] = m.ToEntity(s)
	}
	return entities
}

// RatingJSON encodes a rating for a jsonb column; nil stays SQL NULL.
func RatingJSON(r *entity.SessionRating) datatypes.JSON {
	if r == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

type ProjectMapper struct{}

func NewProjectMapper() *ProjectMapper {
	return &ProjectMapper{}
}

func (m *ProjectMapper) ToEntity(p *model.Project) *entity.Project {
	if p == nil {
		return nil
	}
	return &entity.Project{
		Id:          p.Id,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (m *ProjectMapper) ToModel(p *entity.Project) *model.Project {
	if p == nil {
		return nil
	}
	return &model.Project{
		Id:          p.Id,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
