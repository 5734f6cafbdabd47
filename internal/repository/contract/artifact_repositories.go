package contract

import (
	"context"
	"time"

	"devmemory-be/internal/entity"

	"github.com/google/uuid"
)

// EventBound restricts a timeline query to rows strictly after a cursor.
// With TieId set: at > At OR (at = At AND id > TieId). Otherwise at >= At
// when Inclusive, at > At when not.
type EventBound struct {
	At        time.Time
	Inclusive bool
	TieId     *uuid.UUID
}

type EventQuery struct {
	SessionId uuid.UUID
	From      time.Time
	Until     time.Time
	After     *EventBound
	Limit     int
}

type EventRow struct {
	Id      uuid.UUID
	At      time.Time
	Summary string
}

type ArtifactFilter struct {
	SessionId *uuid.UUID
	ProjectId *uuid.UUID
	Status    string
	Limit     int
	Offset    int
}

type ContextFilter struct {
	SessionId *uuid.UUID
	ProjectId *uuid.UUID
	Type      *entity.ContextType
	Limit     int
	Offset    int
}

type SimilarityQuery struct {
	ProjectId     *uuid.UUID
	SessionId     *uuid.UUID
	Type          *entity.ContextType
	MinSimilarity *float64
	Limit         int
}

// ScoredContextEntry wraps a ContextEntry with its cosine similarity.
type ScoredContextEntry struct {
	Entry      *entity.ContextEntry
	Similarity float64
}

type ContextRepository interface {
	Create(ctx context.Context, entry *entity.ContextEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ContextEntry, error)
	List(ctx context.Context, filter ContextFilter) ([]*entity.ContextEntry, error)
	CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error)
	// SearchSimilar ranks by cosine similarity descending, ties by
	// created_at descending. Rows without an embedding are skipped.
	SearchSimilar(ctx context.Context, embedding []float32, query SimilarityQuery) ([]*ScoredContextEntry, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) (bool, error)
	ListIDsForReembed(ctx context.Context, onlyMissing bool) ([]uuid.UUID, error)
	// ResetEmbeddings drops every stored vector and re-types the column.
	ResetEmbeddings(ctx context.Context, dimension int) error
	ListEvents(ctx context.Context, query EventQuery) ([]*EventRow, error)
}

type DecisionRepository interface {
	Create(ctx context.Context, decision *entity.Decision) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Decision, error)
	List(ctx context.Context, filter ArtifactFilter) ([]*entity.Decision, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.DecisionStatus, at time.Time) (bool, error)
	CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error)
	ListEvents(ctx context.Context, query EventQuery) ([]*EventRow, error)
}

type TaskRepository interface {
	Create(ctx context.Context, task *entity.Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Task, error)
	List(ctx context.Context, filter ArtifactFilter) ([]*entity.Task, error)
	// UpdateStatus changes the status of a task that is not completed.
	// Moving to completed stamps completed_at. Returns false when the task
	// was already completed (or does not exist).
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.TaskStatus, at time.Time) (bool, error)
	CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error)
	CountCompletedBySession(ctx context.Context, sessionId uuid.UUID) (int64, error)
	ListCreatedEvents(ctx context.Context, query EventQuery) ([]*EventRow, error)
	ListCompletedEvents(ctx context.Context, query EventQuery) ([]*EventRow, error)
}

type NamingRepository interface {
	Create(ctx context.Context, entry *entity.NamingEntry) error
	FindByName(ctx context.Context, projectId *uuid.UUID, canonicalName string) (*entity.NamingEntry, error)
	List(ctx context.Context, filter ArtifactFilter) ([]*entity.NamingEntry, error)
}

type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Project, error)
	FindByName(ctx context.Context, name string) (*entity.Project, error)
	List(ctx context.Context) ([]*entity.Project, error)
	MostRecent(ctx context.Context) (*entity.Project, error)
}

// SummaryLength caps the content excerpt of a timeline event.
const SummaryLength = 160

// ContextSummary renders the timeline summary of a context entry.
func ContextSummary(contextType entity.ContextType, content string) string {
	runes := []rune(content)
	if len(runes) > SummaryLength {
		runes = runes[:SummaryLength]
	}
	return "[" + string(contextType) + "] " + string(runes)
}
