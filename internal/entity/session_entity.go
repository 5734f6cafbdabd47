package entity

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
)

// End reasons recorded on demotion.
const (
	EndReasonTimeout    = "timeout"
	EndReasonExplicit   = "explicit"
	EndReasonSuperseded = "superseded"
)

type SessionRating struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

// Session is the aggregation root for correlation. It never holds its
// artifacts; they are always queried by session id.
type Session struct {
	Id               uuid.UUID
	DisplayId        string
	ProjectId        *uuid.UUID
	Title            string
	Description      string
	Goal             *string
	Status           SessionStatus
	StartedAt        time.Time
	LastActivityAt   time.Time
	EndedAt          *time.Time
	EndReason        string
	TokenInput       int64
	TokenOutput      int64
	ContextsCreated  int64
	DecisionsCreated int64
	TasksCreated     int64
	TasksCompleted   int64
	Tags             []string
	Rating           *SessionRating
	UpdatedAt        time.Time
}

func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// IsStale reports whether the session has been idle for strictly longer
// than timeout at now.
func (s *Session) IsStale(now time.Time, timeout time.Duration) bool {
	return s.LastActivityAt.Before(now.Add(-timeout))
}

// WindowEnd is the upper bound of the session's event window.
func (s *Session) WindowEnd(now time.Time) time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return now
}

// Counters is the correlated counter block of a session.
type Counters struct {
	ContextsCreated  int64
	DecisionsCreated int64
	TasksCreated     int64
	TasksCompleted   int64
}
