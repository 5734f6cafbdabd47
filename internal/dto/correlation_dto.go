package dto

import (
	"time"

	"github.com/google/uuid"
)

type ArtifactCreatedRequest struct {
	Kind       string     `json:"kind" validate:"required,oneof=context decision task task_completed naming"`
	SessionId  string     `json:"session_id" validate:"max=64"`
	ArtifactId *uuid.UUID `json:"artifact_id"`
}

type TimelineRequest struct {
	SessionId string `json:"session_id" validate:"max=64"`
	Cursor    string `json:"cursor" validate:"max=512"`
	Limit     int    `json:"limit" validate:"gte=0,lte=500"`
}

type TimelineEvent struct {
	Kind    string    `json:"kind"`
	Id      uuid.UUID `json:"id"`
	At      time.Time `json:"at"`
	Summary string    `json:"summary"`
}

type TimelineResponse struct {
	SessionId   uuid.UUID        `json:"session_id"`
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Events      []*TimelineEvent `json:"events"`
	NextCursor  string           `json:"next_cursor,omitempty"`
}

type CountersRequest struct {
	SessionId string `json:"session_id" validate:"max=64"`
}

type CountersResponse struct {
	SessionId         uuid.UUID               `json:"session_id"`
	DisplayId         string                  `json:"display_id"`
	Status            string                  `json:"status"`
	Counters          SessionCountersResponse `json:"counters"`
	TokenInput        int64                   `json:"token_input"`
	TokenOutput       int64                   `json:"token_output"`
	ElapsedSeconds    float64                 `json:"elapsed_seconds"`
	ProductivityScore float64                 `json:"productivity_score"`
	Scorer            string                  `json:"scorer"`
}

type ReconcileRequest struct {
	SessionId string `json:"session_id" validate:"required,max=64"`
}

type ReconcileResponse struct {
	SessionId uuid.UUID               `json:"session_id"`
	Before    SessionCountersResponse `json:"before"`
	After     SessionCountersResponse `json:"after"`
	Changed   bool                    `json:"changed"`
}
