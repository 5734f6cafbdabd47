package dto

import (
	"time"

	"github.com/google/uuid"
)

type SessionRatingResponse struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

type SessionCountersResponse struct {
	ContextsCreated  int64 `json:"contexts_created"`
	DecisionsCreated int64 `json:"decisions_created"`
	TasksCreated     int64 `json:"tasks_created"`
	TasksCompleted   int64 `json:"tasks_completed"`
}

type SessionResponse struct {
	Id             uuid.UUID               `json:"id"`
	DisplayId      string                  `json:"display_id"`
	ProjectId      *uuid.UUID              `json:"project_id"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Goal           *string                 `json:"goal"`
	Status         string                  `json:"status"`
	StartedAt      time.Time               `json:"started_at"`
	LastActivityAt time.Time               `json:"last_activity_at"`
	EndedAt        *time.Time              `json:"ended_at"`
	EndReason      string                  `json:"end_reason,omitempty"`
	TokenInput     int64                   `json:"token_input"`
	TokenOutput    int64                   `json:"token_output"`
	Counters       SessionCountersResponse `json:"counters"`
	Tags           []string                `json:"tags"`
	Rating         *SessionRatingResponse  `json:"rating"`
}

type StartSessionRequest struct {
	ProjectId   *uuid.UUID `json:"project_id"`
	Title       string     `json:"title" validate:"omitempty,displayname"`
	Description string     `json:"description" validate:"max=2000"`
	Goal        *string    `json:"goal" validate:"omitempty,max=500"`
	Tags        []string   `json:"tags" validate:"max=20,dive,min=1,max=64"`
}

type StartSessionResponse struct {
	Session    *SessionResponse `json:"session"`
	Superseded *SessionResponse `json:"superseded,omitempty"`
}

type GetActiveSessionResponse struct {
	Session *SessionResponse `json:"session"`
	Created bool             `json:"created"`
	Demoted *SessionResponse `json:"demoted,omitempty"`
}

// SessionRefRequest addresses a session by internal id or display id.
type SessionRefRequest struct {
	SessionId string `json:"session_id" validate:"required,max=64"`
}

type ListSessionsRequest struct {
	ProjectId *uuid.UUID `json:"project_id"`
	Status    string     `json:"status" validate:"omitempty,oneof=active inactive"`
	Search    string     `json:"search" validate:"max=120"`
	Limit     int        `json:"limit" validate:"gte=0,lte=100"`
	Offset    int        `json:"offset" validate:"gte=0"`
}

type ListSessionsResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int64              `json:"total"`
}

type EndSessionRequest struct {
	SessionId string `json:"session_id" validate:"required,max=64"`
	Reason    string `json:"reason" validate:"max=200"`
}

type EndSessionResponse struct {
	Session      *SessionResponse `json:"session"`
	AlreadyEnded bool             `json:"already_ended"`
}

type RenameSessionRequest struct {
	SessionId string `json:"session_id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,displayname"`
}

type ReassignProjectRequest struct {
	SessionId string    `json:"session_id" validate:"required,max=64"`
	ProjectId uuid.UUID `json:"project_id" validate:"required"`
	Confirm   bool      `json:"confirm"`
}

type ReassignProjectResponse struct {
	Session           *SessionResponse `json:"session"`
	PreviousProjectId *uuid.UUID       `json:"previous_project_id"`
}

// RecordActivityRequest with an empty SessionId targets the active session.
type RecordActivityRequest struct {
	SessionId string `json:"session_id" validate:"max=64"`
}

type RecordActivityResponse struct {
	SessionId      uuid.UUID `json:"session_id"`
	DisplayId      string    `json:"display_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type UpdateSessionRequest struct {
	SessionId   string    `json:"session_id" validate:"required,max=64"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Goal        *string   `json:"goal" validate:"omitempty,max=500"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=20,dive,min=1,max=64"`
}

type RateSessionRequest struct {
	SessionId string `json:"session_id" validate:"required,max=64"`
	Score     int    `json:"score" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"max=1000"`
}

// RecordTokensRequest adds token usage. When a count is zero and the matching
// text is set, the count is estimated from the text.
type RecordTokensRequest struct {
	SessionId  string `json:"session_id" validate:"max=64"`
	Input      int64  `json:"input" validate:"gte=0"`
	Output     int64  `json:"output" validate:"gte=0"`
	InputText  string `json:"input_text"`
	OutputText string `json:"output_text"`
}

type RecordTokensResponse struct {
	SessionId   uuid.UUID `json:"session_id"`
	AddedInput  int64     `json:"added_input"`
	AddedOutput int64     `json:"added_output"`
	TokenInput  int64     `json:"token_input"`
	TokenOutput int64     `json:"token_output"`
	Estimated   bool      `json:"estimated"`
}
