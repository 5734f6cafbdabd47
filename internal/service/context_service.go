package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/embedding"
	"devmemory-be/pkg/events"
	"devmemory-be/pkg/vector"

	"github.com/google/uuid"
)

const (
	contextModule = "CONTEXT"

	MaxContentLength   = 100000
	MaxTags            = 20
	MaxTagLength       = 64
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

type IContextService interface {
	Store(ctx context.Context, req *dto.StoreContextRequest) (*dto.StoreContextResponse, error)
	Search(ctx context.Context, req *dto.SearchContextRequest) (*dto.SearchContextResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.ContextResponse, error)
}

type ContextStoreOptions struct {
	Dimension          int
	EmbedTimeout       time.Duration
	AllowNullOnFailure bool
}

type contextService struct {
	uowFactory     unitofwork.RepositoryFactory
	sessions       ISessionService
	correlation    ICorrelationService
	embedder       *embedder
	allowNull      bool
	clock          clock.Clock
	eventPublisher IEventPublisher
	logger         logger.ILogger
}

func NewContextService(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	correlation ICorrelationService,
	provider embedding.Provider,
	opts ContextStoreOptions,
	clk clock.Clock,
	eventPublisher IEventPublisher,
	log logger.ILogger,
) IContextService {
	return &contextService{
		uowFactory:     uowFactory,
		sessions:       sessions,
		correlation:    correlation,
		embedder:       newEmbedder(provider, opts.Dimension, opts.EmbedTimeout),
		allowNull:      opts.AllowNullOnFailure,
		clock:          clk,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

// embedder calls the provider under a deadline and enforces the configured
// dimension on everything that reaches the index.
type embedder struct {
	provider  embedding.Provider
	dimension int
	timeout   time.Duration
}

func newEmbedder(provider embedding.Provider, dimension int, timeout time.Duration) *embedder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &embedder{provider: provider, dimension: dimension, timeout: timeout}
}

func (e *embedder) embed(ctx context.Context, text string) ([]float32, error) {
	if e.provider == nil {
		return nil, apperr.Provider("none", errors.New("no embedding provider configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, apperr.Provider(e.provider.Name(), err)
	}
	if len(vec) != e.dimension {
		return nil, apperr.SchemaViolation("provider %s returned %d dimensions, index expects %d",
			e.provider.Name(), len(vec), e.dimension)
	}
	if !vector.IsFinite(vec) || vector.Norm(vec) == 0 {
		return nil, apperr.Provider(e.provider.Name(), errors.New("provider returned a degenerate vector"))
	}
	return vector.Normalize(vec), nil
}

// supplied checks a caller-provided vector.
func (e *embedder) supplied(vec []float32) ([]float32, error) {
	if len(vec) != e.dimension {
		return nil, apperr.SchemaViolation("embedding has %d dimensions, index expects %d", len(vec), e.dimension)
	}
	if !vector.IsFinite(vec) {
		return nil, apperr.ValidationField("embedding", "must contain only finite numbers")
	}
	if vector.Norm(vec) == 0 {
		return nil, apperr.ValidationField("embedding", "must not be the zero vector")
	}
	return vector.Normalize(vec), nil
}

func normalizeTags(tags []string) ([]string, error) {
	if len(tags) > MaxTags {
		return nil, apperr.ValidationField("tags", fmt.Sprintf("must be at most %d", MaxTags))
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, apperr.ValidationField("tags", fmt.Sprintf("each tag must be 1-%d characters", MaxTagLength))
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

func (s *contextService) Store(ctx context.Context, req *dto.StoreContextRequest) (*dto.StoreContextResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.ValidationField("content", "is required")
	}
	if utf8.RuneCountInString(req.Content) > MaxContentLength {
		return nil, apperr.ValidationField("content", fmt.Sprintf("must be at most %d characters", MaxContentLength))
	}
	contextType := entity.ContextType(req.Type)
	if !contextType.Valid() {
		return nil, apperr.ValidationField("type", "unknown context type")
	}
	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}

	if req.ProjectId != nil {
		project, err := s.uowFactory.NewUnitOfWork(ctx).ProjectRepository().FindByID(ctx, *req.ProjectId)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, apperr.NotFound("project", *req.ProjectId)
		}
	}

	// The provider is called before any transaction is opened.
	var (
		vec     []float32
		pending bool
	)
	if len(req.Embedding) > 0 {
		if vec, err = s.embedder.supplied(req.Embedding); err != nil {
			return nil, err
		}
	} else {
		vec, err = s.embedder.embed(ctx, req.Content)
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrProvider) && s.allowNull:
			pending = true
			s.logger.Warn(contextModule, "Embedding failed, storing without vector", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			return nil, err
		}
	}

	var entry *entity.ContextEntry
	session, err := writeAttributed(ctx, s.uowFactory, s.sessions, req.SessionId,
		func(uow unitofwork.UnitOfWork, session *entity.Session, requireActive bool) error {
			projectId := req.ProjectId
			if projectId == nil {
				projectId = session.ProjectId
			}
			entry = &entity.ContextEntry{
				Id:        uuid.New(),
				SessionId: session.Id,
				ProjectId: projectId,
				Content:   req.Content,
				Type:      contextType,
				Tags:      tags,
				Embedding: vec,
				CreatedAt: s.clock.Now(),
			}
			if err := uow.ContextRepository().Create(ctx, entry); err != nil {
				return err
			}
			return s.correlation.Record(ctx, uow, ArtifactEvent{
				Kind:          ArtifactContext,
				SessionId:     session.Id,
				At:            entry.CreatedAt,
				RequireActive: requireActive,
			})
		})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(contextModule, "Context stored", map[string]interface{}{
		"context_id": entry.Id,
		"session_id": entry.SessionId,
		"type":       entry.Type,
		"pending":    pending,
	})
	eventType := events.ContextStored
	if pending {
		eventType = events.ContextEmbeddingFailed
	}
	publishEvent(ctx, s.eventPublisher, s.logger, contextModule, events.New(eventType, entry.CreatedAt, map[string]interface{}{
		"context_id": entry.Id.String(),
		"session_id": entry.SessionId.String(),
		"type":       string(entry.Type),
	}))

	return &dto.StoreContextResponse{
		Context:          toContextResponse(entry),
		SessionDisplayId: session.DisplayId,
		EmbeddingPending: pending,
	}, nil
}

func (s *contextService) Search(ctx context.Context, req *dto.SearchContextRequest) (*dto.SearchContextResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return nil, apperr.ValidationField("limit", fmt.Sprintf("must be at most %d", MaxSearchLimit))
	}

	query := contract.SimilarityQuery{
		ProjectId:     req.ProjectId,
		MinSimilarity: req.MinSimilarity,
		Limit:         limit,
	}
	if req.Type != "" {
		contextType := entity.ContextType(req.Type)
		if !contextType.Valid() {
			return nil, apperr.ValidationField("type", "unknown context type")
		}
		query.Type = &contextType
	}
	if strings.TrimSpace(req.SessionId) != "" {
		session, err := s.sessions.LookupSession(ctx, req.SessionId)
		if err != nil {
			return nil, err
		}
		query.SessionId = &session.Id
	}

	var (
		vec []float32
		err error
	)
	switch {
	case len(req.Embedding) > 0:
		vec, err = s.embedder.supplied(req.Embedding)
	case strings.TrimSpace(req.Query) != "":
		vec, err = s.embedder.embed(ctx, req.Query)
	default:
		err = apperr.ValidationField("query", "query or embedding is required")
	}
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.ContextRepository().SearchSimilar(ctx, vec, query)
	if err != nil {
		return nil, err
	}

	results := make([]*dto.SearchContextResult, 0, len(scored))
	for _, item := range scored {
		results = append(results, &dto.SearchContextResult{
			ContextResponse: *toContextResponse(item.Entry),
			Similarity:      item.Similarity,
		})
	}
	return &dto.SearchContextResponse{Results: results, Count: len(results)}, nil
}

func (s *contextService) Get(ctx context.Context, id uuid.UUID) (*dto.ContextResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	entry, err := uow.ContextRepository().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperr.NotFound("context", id)
	}
	return toContextResponse(entry), nil
}
