package dto

import (
	"time"

	"github.com/google/uuid"
)

type StoreContextRequest struct {
	Content   string     `json:"content" validate:"required,max=100000"`
	Type      string     `json:"type" validate:"required,oneof=code decision error discussion planning completion milestone"`
	Tags      []string   `json:"tags" validate:"max=20,dive,min=1,max=64"`
	SessionId string     `json:"session_id" validate:"max=64"`
	ProjectId *uuid.UUID `json:"project_id"`
	Embedding []float32  `json:"embedding"`
}

type ContextResponse struct {
	Id           uuid.UUID  `json:"id"`
	SessionId    uuid.UUID  `json:"session_id"`
	ProjectId    *uuid.UUID `json:"project_id"`
	Content      string     `json:"content"`
	Type         string     `json:"type"`
	Tags         []string   `json:"tags"`
	HasEmbedding bool       `json:"has_embedding"`
	CreatedAt    time.Time  `json:"created_at"`
}

type StoreContextResponse struct {
	Context          *ContextResponse `json:"context"`
	SessionDisplayId string           `json:"session_display_id"`
	EmbeddingPending bool             `json:"embedding_pending"`
}

// SearchContextRequest takes either a query text or a ready embedding.
type SearchContextRequest struct {
	Query         string     `json:"query" validate:"required_without=Embedding,max=100000"`
	Embedding     []float32  `json:"embedding"`
	Limit         int        `json:"limit" validate:"gte=0,lte=100"`
	ProjectId     *uuid.UUID `json:"project_id"`
	SessionId     string     `json:"session_id" validate:"max=64"`
	Type          string     `json:"type" validate:"omitempty,oneof=code decision error discussion planning completion milestone"`
	MinSimilarity *float64   `json:"min_similarity" validate:"omitempty,gte=-1,lte=1"`
}

type SearchContextResult struct {
	ContextResponse
	Similarity float64 `json:"similarity"`
}

type SearchContextResponse struct {
	Results []*SearchContextResult `json:"results"`
	Count   int                    `json:"count"`
}

type GetContextRequest struct {
	Id uuid.UUID `json:"id" validate:"required"`
}

type ReembedRequest struct {
	Mode      string `json:"mode" validate:"omitempty,oneof=missing all"`
	Dimension int    `json:"dimension" validate:"gte=0,lte=16000"`
}

type ReembedResponse struct {
	Mode      string `json:"mode"`
	Dimension int    `json:"dimension"`
	Enqueued  int    `json:"enqueued"`
}

// ReembedContextMessage is the payload of one re-embedding job.
type ReembedContextMessage struct {
	ContextId uuid.UUID `json:"context_id"`
}
