package dto

import (
	"time"

	"github.com/google/uuid"
)

type ListArtifactsRequest struct {
	SessionId string     `json:"session_id" validate:"max=64"`
	ProjectId *uuid.UUID `json:"project_id"`
	Status    string     `json:"status" validate:"max=32"`
	Limit     int        `json:"limit" validate:"gte=0,lte=200"`
	Offset    int        `json:"offset" validate:"gte=0"`
}

type RecordDecisionRequest struct {
	Title        string     `json:"title" validate:"required,max=300"`
	Description  string     `json:"description" validate:"max=5000"`
	Rationale    string     `json:"rationale" validate:"max=5000"`
	DecisionType string     `json:"decision_type" validate:"max=64"`
	Status       string     `json:"status" validate:"omitempty,oneof=proposed accepted rejected superseded"`
	SessionId    string     `json:"session_id" validate:"max=64"`
	ProjectId    *uuid.UUID `json:"project_id"`
}

type DecisionResponse struct {
	Id           uuid.UUID  `json:"id"`
	SessionId    uuid.UUID  `json:"session_id"`
	ProjectId    *uuid.UUID `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Rationale    string     `json:"rationale"`
	DecisionType string     `json:"decision_type"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type UpdateDecisionStatusRequest struct {
	Id     uuid.UUID `json:"id" validate:"required"`
	Status string    `json:"status" validate:"required,oneof=proposed accepted rejected superseded"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=300"`
	Description string     `json:"description" validate:"max=5000"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress blocked"`
	SessionId   string     `json:"session_id" validate:"max=64"`
	ProjectId   *uuid.UUID `json:"project_id"`
}

type TaskResponse struct {
	Id          uuid.UUID  `json:"id"`
	SessionId   uuid.UUID  `json:"session_id"`
	ProjectId   *uuid.UUID `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

type UpdateTaskStatusRequest struct {
	Id     uuid.UUID `json:"id" validate:"required"`
	Status string    `json:"status" validate:"required,oneof=todo in_progress blocked completed cancelled"`
}

type RegisterNamingRequest struct {
	EntityType    string     `json:"entity_type" validate:"required,max=64"`
	CanonicalName string     `json:"canonical_name" validate:"required,max=200"`
	Description   string     `json:"description" validate:"max=2000"`
	SessionId     string     `json:"session_id" validate:"max=64"`
	ProjectId     *uuid.UUID `json:"project_id"`
}

type NamingResponse struct {
	Id            uuid.UUID  `json:"id"`
	SessionId     uuid.UUID  `json:"session_id"`
	ProjectId     *uuid.UUID `json:"project_id"`
	EntityType    string     `json:"entity_type"`
	CanonicalName string     `json:"canonical_name"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}
