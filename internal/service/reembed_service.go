package service

import (
	"context"
	"encoding/json"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/embedding"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	reembedModule = "REEMBED"

	ReembedModeMissing = "missing"
	ReembedModeAll     = "all"
)

// IReembedService is the explicit bulk re-embedding path. Normal reads and
// writes never trigger it.
type IReembedService interface {
	Enqueue(ctx context.Context, req *dto.ReembedRequest) (*dto.ReembedResponse, error)
	// Consume subscribes to the job topic and processes jobs until ctx ends.
	Consume(ctx context.Context) error
	ProcessOne(ctx context.Context, contextId uuid.UUID) error
}

type reembedService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
	subscriber       message.Subscriber
	topicName        string
	embedder         *embedder
	logger           logger.ILogger
}

func NewReembedService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	subscriber message.Subscriber,
	topicName string,
	provider embedding.Provider,
	dimension int,
	embedTimeout time.Duration,
	log logger.ILogger,
) IReembedService {
	return &reembedService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
		subscriber:       subscriber,
		topicName:        topicName,
		embedder:         newEmbedder(provider, dimension, embedTimeout),
		logger:           log,
	}
}

func (s *reembedService) Enqueue(ctx context.Context, req *dto.ReembedRequest) (*dto.ReembedResponse, error) {
	mode := req.Mode
	if mode == "" {
		mode = ReembedModeMissing
	}
	if mode != ReembedModeMissing && mode != ReembedModeAll {
		return nil, apperr.ValidationField("mode", "must be one of: missing all")
	}
	dimension := s.embedder.dimension
	if req.Dimension != 0 && req.Dimension != dimension {
		return nil, apperr.SchemaViolation("requested dimension %d does not match the configured dimension %d; change EMBEDDING_DIMENSION and restart first",
			req.Dimension, dimension)
	}

	// A full run or an explicit dimension migration re-types the column,
	// which drops every stored vector in the same transaction.
	if mode == ReembedModeAll || req.Dimension != 0 {
		err := inTx(ctx, s.uowFactory, func(uow unitofwork.UnitOfWork) error {
			return uow.ContextRepository().ResetEmbeddings(ctx, dimension)
		})
		if err != nil {
			return nil, err
		}
		s.logger.Warn(reembedModule, "Embedding column reset", map[string]interface{}{"dimension": dimension})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	ids, err := uow.ContextRepository().ListIDsForReembed(ctx, true)
	if err != nil {
		return nil, err
	}

	enqueued := 0
	for _, id := range ids {
		payload, err := json.Marshal(dto.ReembedContextMessage{ContextId: id})
		if err != nil {
			return nil, err
		}
		if err := s.publisherService.Publish(ctx, payload); err != nil {
			s.logger.Error(reembedModule, "Failed to enqueue job", map[string]interface{}{
				"context_id": id,
				"error":      err.Error(),
			})
			return nil, err
		}
		enqueued++
	}

	s.logger.Info(reembedModule, "Re-embedding enqueued", map[string]interface{}{
		"mode":     mode,
		"enqueued": enqueued,
	})
	return &dto.ReembedResponse{Mode: mode, Dimension: dimension, Enqueued: enqueued}, nil
}

func (s *reembedService) Consume(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()
	return nil
}

func (s *reembedService) processMessage(ctx context.Context, msg *message.Message) {
	// Failed jobs are acked and logged; the next "missing" run picks them up.
	defer msg.Ack()

	var payload dto.ReembedContextMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Error(reembedModule, "Malformed job payload", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := s.ProcessOne(ctx, payload.ContextId); err != nil {
		s.logger.Error(reembedModule, "Failed to re-embed context", map[string]interface{}{
			"context_id": payload.ContextId,
			"error":      err.Error(),
		})
	}
}

func (s *reembedService) ProcessOne(ctx context.Context, contextId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	entry, err := uow.ContextRepository().FindByID(ctx, contextId)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperr.NotFound("context", contextId)
	}
	if len(entry.Embedding) > 0 {
		return nil
	}

	vec, err := s.embedder.embed(ctx, entry.Content)
	if err != nil {
		return err
	}
	ok, err := uow.ContextRepository().UpdateEmbedding(ctx, contextId, vec)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("context", contextId)
	}
	s.logger.Debug(reembedModule, "Context re-embedded", map[string]interface{}{"context_id": contextId})
	return nil
}
