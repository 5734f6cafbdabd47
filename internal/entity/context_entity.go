package entity

import (
	"time"

	"github.com/google/uuid"
)

type ContextType string

const (
	ContextTypeCode       ContextType = "code"
	ContextTypeDecision   ContextType = "decision"
	ContextTypeError      ContextType = "error"
	ContextTypeDiscussion ContextType = "discussion"
	ContextTypePlanning   ContextType = "planning"
	ContextTypeCompletion ContextType = "completion"
	ContextTypeMilestone  ContextType = "milestone"
)

func (t ContextType) Valid() bool {
	switch t {
	case ContextTypeCode, ContextTypeDecision, ContextTypeError, ContextTypeDiscussion,
		ContextTypePlanning, ContextTypeCompletion, ContextTypeMilestone:
		return true
	}
	return false
}

// ContextEntry is a stored knowledge unit. Embedding is nil only when the
// write was accepted under the null-embedding policy.
type ContextEntry struct {
	Id        uuid.UUID
	SessionId uuid.UUID
	ProjectId *uuid.UUID
	Content   string
	Type      ContextType
	Tags      []string
	Embedding []float32
	CreatedAt time.Time
}
