package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type ProjectResponse struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProjectSummaryRequest struct {
	ProjectId *uuid.UUID `json:"project_id"`
}

type ProjectSummaryResponse struct {
	ProjectId             *uuid.UUID              `json:"project_id"`
	Sessions              int64                   `json:"sessions"`
	ActiveSessions        int64                   `json:"active_sessions"`
	Counters              SessionCountersResponse `json:"counters"`
	TokenInput            int64                   `json:"token_input"`
	TokenOutput           int64                   `json:"token_output"`
	TotalSeconds          float64                 `json:"total_seconds"`
	AverageSessionSeconds float64                 `json:"average_session_seconds"`
}

type SessionSummaryResponse struct {
	Session      *SessionResponse  `json:"session"`
	Counters     *CountersResponse `json:"counters"`
	EventCount   int               `json:"event_count"`
	FirstEventAt *time.Time        `json:"first_event_at"`
	LastEventAt  *time.Time        `json:"last_event_at"`
}
