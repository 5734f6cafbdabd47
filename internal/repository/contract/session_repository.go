package contract

import (
	"context"
	"errors"
	"time"

	"devmemory-be/internal/entity"

	"github.com/google/uuid"
)

// ErrActiveSessionExists is returned by Create when another session already
// holds the single active slot.
var ErrActiveSessionExists = errors.New("an active session already exists")

// ErrDuplicate is returned when a unique key other than the active slot is hit.
var ErrDuplicate = errors.New("duplicate key")

type CounterDelta struct {
	Contexts       int64
	Decisions      int64
	TasksCreated   int64
	TasksCompleted int64
	TokenInput     int64
	TokenOutput    int64
}

func (d CounterDelta) IsZero() bool {
	return d == CounterDelta{}
}

// SessionPatch updates only the non-nil fields.
type SessionPatch struct {
	Title       *string
	Description *string
	Goal        *string
	Tags        *[]string
	Rating      *entity.SessionRating
	ProjectId   *uuid.UUID
}

type SessionFilter struct {
	ProjectId *uuid.UUID
	Status    *entity.SessionStatus
	Search    string // matches display id or title
	Limit     int
	Offset    int
}

type SessionAggregate struct {
	Sessions         int64
	ActiveSessions   int64
	ContextsCreated  int64
	DecisionsCreated int64
	TasksCreated     int64
	TasksCompleted   int64
	TokenInput       int64
	TokenOutput      int64
	TotalSeconds     float64
}

type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	FindByDisplayID(ctx context.Context, displayId string) (*entity.Session, error)
	FindActive(ctx context.Context) (*entity.Session, error)
	List(ctx context.Context, filter SessionFilter) ([]*entity.Session, int64, error)
	NextDisplaySeq(ctx context.Context) (int64, error)

	// Touch moves last_activity_at forward (never backward) on an active
	// session. Returns false when no active row matched.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// Deactivate flips an active session to inactive. Returns false when the
	// session was not active.
	Deactivate(ctx context.Context, id uuid.UUID, endedAt time.Time, reason string) (bool, error)
	// DeactivateIfStale demotes the session only if it is still active and
	// idle since before cutoff, in a single statement. ended_at is set to
	// last_activity_at. Returns nil when the predicate no longer holds.
	DeactivateIfStale(ctx context.Context, id uuid.UUID, cutoff time.Time, reason string) (*entity.Session, error)
	// SweepStale demotes every stale active session.
	SweepStale(ctx context.Context, cutoff time.Time, reason string) ([]*entity.Session, error)

	// IncrementCounters applies delta as an in-store increment. touchAt, when
	// set, also moves last_activity_at forward if the session is active. With
	// requireActive the update only matches an active session.
	IncrementCounters(ctx context.Context, id uuid.UUID, delta CounterDelta, touchAt *time.Time, requireActive bool) (bool, error)
	SetCounters(ctx context.Context, id uuid.UUID, counters entity.Counters) error
	Update(ctx context.Context, id uuid.UUID, patch SessionPatch) (bool, error)

	Aggregate(ctx context.Context, projectId *uuid.UUID) (*SessionAggregate, error)
	// LastUsedProjectID returns the project of the most recently active
	// session that has one.
	LastUsedProjectID(ctx context.Context) (*uuid.UUID, error)
}
