package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"iter"
	"sort"
	"strings"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/events"

	"github.com/google/uuid"
)

const correlationModule = "CORRELATION"

type ArtifactKind string

const (
	ArtifactContext       ArtifactKind = "context"
	ArtifactDecision      ArtifactKind = "decision"
	ArtifactTask          ArtifactKind = "task"
	ArtifactTaskCompleted ArtifactKind = "task_completed"
	ArtifactNaming        ArtifactKind = "naming"
)

// ArtifactEvent attributes one artifact write to its owning session.
type ArtifactEvent struct {
	Kind      ArtifactKind
	SessionId uuid.UUID
	At        time.Time
	// RequireActive makes the increment fail with a timeout race when the
	// session was demoted after it was resolved.
	RequireActive bool
}

func (e ArtifactEvent) delta() (contract.CounterDelta, error) {
	switch e.Kind {
	case ArtifactContext:
		return contract.CounterDelta{Contexts: 1}, nil
	case ArtifactDecision:
		return contract.CounterDelta{Decisions: 1}, nil
	case ArtifactTask:
		return contract.CounterDelta{TasksCreated: 1}, nil
	case ArtifactTaskCompleted:
		return contract.CounterDelta{TasksCompleted: 1}, nil
	case ArtifactNaming:
		return contract.CounterDelta{}, nil
	}
	return contract.CounterDelta{}, apperr.ValidationField("kind", "unknown artifact kind "+string(e.Kind))
}

// Timeline event kinds, in tie-break rank order.
const (
	EventContextStored    = "context_stored"
	EventDecisionRecorded = "decision_recorded"
	EventTaskCreated      = "task_created"
	EventTaskCompleted    = "task_completed"
)

const (
	defaultTimelineLimit = 50
	maxTimelineLimit     = 500
	timelineSeqPageSize  = 100
)

type ICorrelationService interface {
	// Record increments the session counter for one artifact inside the
	// caller's unit of work.
	Record(ctx context.Context, uow unitofwork.UnitOfWork, event ArtifactEvent) error
	OnArtifactCreated(ctx context.Context, req *dto.ArtifactCreatedRequest) (*dto.CountersResponse, error)
	Timeline(ctx context.Context, req *dto.TimelineRequest) (*dto.TimelineResponse, error)
	TimelineSeq(ctx context.Context, sessionId uuid.UUID) iter.Seq2[*dto.TimelineEvent, error]
	Counters(ctx context.Context, req *dto.CountersRequest) (*dto.CountersResponse, error)
	Reconcile(ctx context.Context, req *dto.ReconcileRequest) (*dto.ReconcileResponse, error)
}

type correlationService struct {
	uowFactory     unitofwork.RepositoryFactory
	sessions       ISessionService
	scorer         Scorer
	clock          clock.Clock
	eventPublisher IEventPublisher
	logger         logger.ILogger
}

func NewCorrelationService(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	scorer Scorer,
	clk clock.Clock,
	eventPublisher IEventPublisher,
	log logger.ILogger,
) ICorrelationService {
	if scorer == nil {
		scorer = NewWeightedActivityScorer()
	}
	return &correlationService{
		uowFactory:     uowFactory,
		sessions:       sessions,
		scorer:         scorer,
		clock:          clk,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (c *correlationService) Record(ctx context.Context, uow unitofwork.UnitOfWork, event ArtifactEvent) error {
	delta, err := event.delta()
	if err != nil {
		return err
	}
	at := event.At
	ok, err := uow.SessionRepository().IncrementCounters(ctx, event.SessionId, delta, &at, event.RequireActive)
	if err != nil {
		return err
	}
	if !ok {
		if event.RequireActive {
			return apperr.TimeoutRace("session %s was demoted before the %s was recorded", event.SessionId, event.Kind)
		}
		return apperr.NotFound("session", event.SessionId)
	}
	return nil
}

func (c *correlationService) OnArtifactCreated(ctx context.Context, req *dto.ArtifactCreatedRequest) (*dto.CountersResponse, error) {
	kind := ArtifactKind(req.Kind)
	switch kind {
	case ArtifactDecision, ArtifactTask, ArtifactTaskCompleted, ArtifactNaming:
	case ArtifactContext:
		return nil, apperr.ValidationField("kind", "context entries are correlated by context.store")
	default:
		return nil, apperr.ValidationField("kind", "unknown artifact kind")
	}

	sessionRef := strings.TrimSpace(req.SessionId)
	if sessionRef == "" && req.ArtifactId != nil {
		owner, err := c.artifactOwner(ctx, kind, *req.ArtifactId)
		if err != nil {
			return nil, err
		}
		sessionRef = owner.String()
	}
	session, err := writeAttributed(ctx, c.uowFactory, c.sessions, sessionRef,
		func(uow unitofwork.UnitOfWork, session *entity.Session, requireActive bool) error {
			return c.Record(ctx, uow, ArtifactEvent{
				Kind:          kind,
				SessionId:     session.Id,
				At:            c.clock.Now(),
				RequireActive: requireActive,
			})
		})
	if err != nil {
		return nil, err
	}

	return c.countersFor(ctx, session.Id)
}

// artifactOwner returns the session an existing artifact was attributed to.
func (c *correlationService) artifactOwner(ctx context.Context, kind ArtifactKind, id uuid.UUID) (uuid.UUID, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	switch kind {
	case ArtifactDecision:
		d, err := uow.DecisionRepository().FindByID(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if d == nil {
			return uuid.Nil, apperr.NotFound("decision", id)
		}
		return d.SessionId, nil
	case ArtifactTask, ArtifactTaskCompleted:
		t, err := uow.TaskRepository().FindByID(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if t == nil {
			return uuid.Nil, apperr.NotFound("task", id)
		}
		return t.SessionId, nil
	}
	return uuid.Nil, apperr.ValidationField("artifact_id", "not supported for kind "+string(kind))
}

type timelineCursor struct {
	At   time.Time `json:"at"`
	Rank int       `json:"rank"`
	Id   uuid.UUID `json:"id"`
}

func encodeCursor(cur timelineCursor) string {
	raw, _ := json.Marshal(cur)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (*timelineCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperr.ValidationField("cursor", "is malformed")
	}
	var cur timelineCursor
	if err := json.Unmarshal(raw, &cur); err != nil || cur.Rank < 0 || cur.Rank >= len(timelineSources) {
		return nil, apperr.ValidationField("cursor", "is malformed")
	}
	return &cur, nil
}

type timelineSource struct {
	kind string
	list func(ctx context.Context, uow unitofwork.UnitOfWork, q contract.EventQuery) ([]*contract.EventRow, error)
}

// timelineSources is ordered by rank.
var timelineSources = []timelineSource{
	{EventContextStored, func(ctx context.Context, uow unitofwork.UnitOfWork, q contract.EventQuery) ([]*contract.EventRow, error) {
		return uow.ContextRepository().ListEvents(ctx, q)
	}},
	{EventDecisionRecorded, func(ctx context.Context, uow unitofwork.UnitOfWork, q contract.EventQuery) ([]*contract.EventRow, error) {
		return uow.DecisionRepository().ListEvents(ctx, q)
	}},
	{EventTaskCreated, func(ctx context.Context, uow unitofwork.UnitOfWork, q contract.EventQuery) ([]*contract.EventRow, error) {
		return uow.TaskRepository().ListCreatedEvents(ctx, q)
	}},
	{EventTaskCompleted, func(ctx context.Context, uow unitofwork.UnitOfWork, q contract.EventQuery) ([]*contract.EventRow, error) {
		return uow.TaskRepository().ListCompletedEvents(ctx, q)
	}},
}

// boundFor converts the (at, rank, id) cursor into a per-source predicate.
func boundFor(cur *timelineCursor, rank int) *contract.EventBound {
	if cur == nil {
		return nil
	}
	switch {
	case rank > cur.Rank:
		return &contract.EventBound{At: cur.At, Inclusive: true}
	case rank < cur.Rank:
		return &contract.EventBound{At: cur.At}
	default:
		id := cur.Id
		return &contract.EventBound{At: cur.At, TieId: &id}
	}
}

type rankedEvent struct {
	rank int
	row  *contract.EventRow
}

func eventLess(a, b rankedEvent) bool {
	if !a.row.At.Equal(b.row.At) {
		return a.row.At.Before(b.row.At)
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return bytes.Compare(a.row.Id[:], b.row.Id[:]) < 0
}

type timelinePage struct {
	events []*dto.TimelineEvent
	next   *timelineCursor
	from   time.Time
	until  time.Time
}

func (c *correlationService) page(ctx context.Context, session *entity.Session, cur *timelineCursor, limit int) (*timelinePage, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	page := &timelinePage{from: session.StartedAt, until: session.WindowEnd(c.clock.Now())}

	var merged []rankedEvent
	for rank, src := range timelineSources {
		rows, err := src.list(ctx, uow, contract.EventQuery{
			SessionId: session.Id,
			From:      page.from,
			Until:     page.until,
			After:     boundFor(cur, rank),
			Limit:     limit + 1,
		})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			merged = append(merged, rankedEvent{rank: rank, row: row})
		}
	}
	sort.Slice(merged, func(i, j int) bool { return eventLess(merged[i], merged[j]) })

	hasMore := len(merged) > limit
	if hasMore {
		merged = merged[:limit]
	}
	page.events = make([]*dto.TimelineEvent, 0, len(merged))
	for _, ev := range merged {
		page.events = append(page.events, &dto.TimelineEvent{
			Kind:    timelineSources[ev.rank].kind,
			Id:      ev.row.Id,
			At:      ev.row.At,
			Summary: ev.row.Summary,
		})
	}
	if hasMore {
		last := merged[len(merged)-1]
		page.next = &timelineCursor{At: last.row.At, Rank: last.rank, Id: last.row.Id}
	}
	return page, nil
}

func (c *correlationService) sessionFor(ctx context.Context, ref string) (*entity.Session, error) {
	if strings.TrimSpace(ref) == "" {
		return c.sessions.LiveSession(ctx)
	}
	return c.sessions.LookupSession(ctx, ref)
}

func (c *correlationService) Timeline(ctx context.Context, req *dto.TimelineRequest) (*dto.TimelineResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTimelineLimit
	}
	if limit > maxTimelineLimit {
		return nil, apperr.ValidationField("limit", "must be at most 500")
	}
	cur, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	session, err := c.sessionFor(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}

	page, err := c.page(ctx, session, cur, limit)
	if err != nil {
		return nil, err
	}
	res := &dto.TimelineResponse{
		SessionId:   session.Id,
		WindowStart: page.from,
		WindowEnd:   page.until,
		Events:      page.events,
	}
	if page.next != nil {
		res.NextCursor = encodeCursor(*page.next)
	}
	return res, nil
}

func (c *correlationService) TimelineSeq(ctx context.Context, sessionId uuid.UUID) iter.Seq2[*dto.TimelineEvent, error] {
	return func(yield func(*dto.TimelineEvent, error) bool) {
		session, err := c.sessions.LookupSession(ctx, sessionId.String())
		if err != nil {
			yield(nil, err)
			return
		}

		var cur *timelineCursor
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := c.page(ctx, session, cur, timelineSeqPageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, ev := range page.events {
				if !yield(ev, nil) {
					return
				}
			}
			if page.next == nil {
				return
			}
			cur = page.next
		}
	}
}

func (c *correlationService) Counters(ctx context.Context, req *dto.CountersRequest) (*dto.CountersResponse, error) {
	session, err := c.sessionFor(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	return c.countersOf(session), nil
}

func (c *correlationService) countersFor(ctx context.Context, sessionId uuid.UUID) (*dto.CountersResponse, error) {
	session, err := c.sessions.LookupSession(ctx, sessionId.String())
	if err != nil {
		return nil, err
	}
	return c.countersOf(session), nil
}

func (c *correlationService) countersOf(session *entity.Session) *dto.CountersResponse {
	elapsed := session.WindowEnd(c.clock.Now()).Sub(session.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	score := c.scorer.Score(ScoreInput{
		Counters: entity.Counters{
			ContextsCreated:  session.ContextsCreated,
			DecisionsCreated: session.DecisionsCreated,
			TasksCreated:     session.TasksCreated,
			TasksCompleted:   session.TasksCompleted,
		},
		TokenInput:  session.TokenInput,
		TokenOutput: session.TokenOutput,
		Elapsed:     elapsed,
	})
	return &dto.CountersResponse{
		SessionId:         session.Id,
		DisplayId:         session.DisplayId,
		Status:            string(session.Status),
		Counters:          toCountersResponse(session),
		TokenInput:        session.TokenInput,
		TokenOutput:       session.TokenOutput,
		ElapsedSeconds:    elapsed.Seconds(),
		ProductivityScore: score,
		Scorer:            c.scorer.Name(),
	}
}

func (c *correlationService) Reconcile(ctx context.Context, req *dto.ReconcileRequest) (*dto.ReconcileResponse, error) {
	session, err := c.sessions.LookupSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	current, err := uow.SessionRepository().FindByID(ctx, session.Id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.NotFound("session", session.Id)
	}

	var counters entity.Counters
	if counters.ContextsCreated, err = uow.ContextRepository().CountBySession(ctx, session.Id); err != nil {
		return nil, err
	}
	if counters.DecisionsCreated, err = uow.DecisionRepository().CountBySession(ctx, session.Id); err != nil {
		return nil, err
	}
	if counters.TasksCreated, err = uow.TaskRepository().CountBySession(ctx, session.Id); err != nil {
		return nil, err
	}
	if counters.TasksCompleted, err = uow.TaskRepository().CountCompletedBySession(ctx, session.Id); err != nil {
		return nil, err
	}

	before := toCountersResponse(current)
	after := dto.SessionCountersResponse{
		ContextsCreated:  counters.ContextsCreated,
		DecisionsCreated: counters.DecisionsCreated,
		TasksCreated:     counters.TasksCreated,
		TasksCompleted:   counters.TasksCompleted,
	}
	changed := before != after
	if changed {
		if err := uow.SessionRepository().SetCounters(ctx, session.Id, counters); err != nil {
			return nil, err
		}
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	if changed {
		c.logger.Warn(correlationModule, "Session counters drifted and were reconciled", map[string]interface{}{
			"session_id": session.Id,
			"before":     before,
			"after":      after,
		})
		publishEvent(ctx, c.eventPublisher, c.logger, correlationModule, events.New(events.CountersReconciled, c.clock.Now(), map[string]interface{}{
			"session_id": session.Id.String(),
		}))
	}
	return &dto.ReconcileResponse{
		SessionId: session.Id,
		Before:    before,
		After:     after,
		Changed:   changed,
	}, nil
}
