package mapper

import (
	"devmemory-be/internal/entity"
	"devmemory-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type ContextEntryMapper struct{}

func NewContextEntryMapper() *ContextEntryMapper {
	return &ContextEntryMapper{}
}

func (m *ContextEntryMapper) ToEntity(e *model.ContextEntry) *entity.ContextEntry {
	if e == nil {
		return nil
	}

	var embedding []float32
	if e.Embedding != nil {
		embedding = e.Embedding.Slice()
	}

	return &entity.ContextEntry{
		Id:        e.Id,
		SessionId: e.SessionId,
		ProjectId: e.ProjectId,
		Content:   e.Content,
		Type:      entity.ContextType(e.Type),
		Tags:      []string(e.Tags),
		Embedding: embedding,
		CreatedAt: e.CreatedAt,
	}
}

func (m *ContextEntryMapper) ToModel(e *entity.ContextEntry) *model.ContextEntry {
	if e == nil {
		return nil
	}

	var embedding *pgvector.Vector
	if e.Embedding != nil {
		v := pgvector.NewVector(e.Embedding)
		embedding = &v
	}

	return &model.ContextEntry{
		Id:        e.Id,
		SessionId: e.SessionId,
		ProjectId: e.ProjectId,
		Content:   e.Content,
		Type:      string(e.Type),
		Tags:      datatypes.NewJSONSlice(nonNilTags(e.Tags)),
		Embedding: embedding,
		CreatedAt: e.CreatedAt,
	}
}

type DecisionMapper struct{}

func NewDecisionMapper() *DecisionMapper {
	return &DecisionMapper{}
}

func (m *DecisionMapper) ToEntity(d *model.Decision) *entity.Decision {
	if d == nil {
		return nil
	}
	return &entity.Decision{
		Id:           d.Id,
		SessionId:    d.SessionId,
		ProjectId:    d.ProjectId,
		Title:        d.Title,
		Description:  d.Description,
		Rationale:    d.Rationale,
		DecisionType: d.DecisionType,
		Status:       entity.DecisionStatus(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (m *DecisionMapper) ToModel(d *entity.Decision) *model.Decision {
	if d == nil {
		return nil
	}
	return &model.Decision{
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

type TaskMapper struct{}

func NewTaskMapper() *TaskMapper {
	return &TaskMapper{}
}

func (m *TaskMapper) ToEntity(t *model.Task) *entity.Task {
	if t == nil {
		return nil
	}
	return &entity.Task{
		Id:          t.Id,
		SessionId:   t.SessionId,
		ProjectId:   t.ProjectId,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      entity.TaskStatus(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (m *TaskMapper) ToModel(t *entity.Task) *model.Task {
	if t == nil {
		return nil
	}
	return &model.Task{
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

type NamingMapper struct{}

func NewNamingMapper() *NamingMapper {
	return &NamingMapper{}
}

func (m *NamingMapper) ToEntity(n *model.NamingEntry) *entity.NamingEntry {
	if n == nil {
		return nil
	}
	return &entity.NamingEntry{
		Id:            n.Id,
		SessionId:     n.SessionId,
		ProjectId:     n.ProjectId,
		EntityType:    n.EntityType,
		CanonicalName: n.CanonicalName,
		Description:   n.Description,
		Status:        entity.NamingStatus(n.Status),
		CreatedAt:     n.CreatedAt,
	}
}

func (m *NamingMapper) ToModel(n *entity.NamingEntry) *model.NamingEntry {
	if n == nil {
		return nil
	}
	return &model.NamingEntry{
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
