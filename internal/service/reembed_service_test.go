package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/dto"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/pkg/embedding"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *capturingPublisher) Publish(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *capturingPublisher) ids(t *testing.T) []uuid.UUID {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uuid.UUID, 0, len(p.payloads))
	for _, raw := range p.payloads {
		var msg dto.ReembedContextMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		out = append(out, msg.ContextId)
	}
	return out
}

// pendingHarness stores one context whose embedding failed and one that
// embedded normally.
func pendingHarness(t *testing.T) (*harness, uuid.UUID, uuid.UUID) {
	t.Helper()
	failing := &stubProvider{dim: testDimension, err: errors.New("rate limited")}
	h := newHarness(t, withProvider(failing), withNullOnFailure())
	h.project("alpha")

	pending, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "needs a vector much later", Type: "code"})
	require.NoError(t, err)
	require.True(t, pending.EmbeddingPending)

	embedded, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{Content: "already embedded", Type: "code", Embedding: unit(3, 1)})
	require.NoError(t, err)
	return h, pending.Context.Id, embedded.Context.Id
}

func TestReembed_EnqueueMissingThenProcess(t *testing.T) {
	h, pendingId, _ := pendingHarness(t)
	jobs := &capturingPublisher{}
	svc := NewReembedService(h.uow, jobs, nil, "reembed", embedding.NewHashProvider(testDimension), testDimension, time.Second, logger.NewNopLogger())

	res, err := svc.Enqueue(h.ctx, &dto.ReembedRequest{})
	require.NoError(t, err)
	assert.Equal(t, ReembedModeMissing, res.Mode)
	assert.Equal(t, 1, res.Enqueued)
	assert.Equal(t, []uuid.UUID{pendingId}, jobs.ids(t))

	require.NoError(t, svc.ProcessOne(h.ctx, pendingId))
	got, err := h.contexts.Get(h.ctx, pendingId)
	require.NoError(t, err)
	assert.True(t, got.HasEmbedding)

	// Already embedded entries are left alone.
	require.NoError(t, svc.ProcessOne(h.ctx, pendingId))
	assert.ErrorIs(t, svc.ProcessOne(h.ctx, uuid.New()), apperr.ErrNotFound)
}

func TestReembed_AllResetsEveryVector(t *testing.T) {
	h, pendingId, embeddedId := pendingHarness(t)
	jobs := &capturingPublisher{}
	svc := NewReembedService(h.uow, jobs, nil, "reembed", embedding.NewHashProvider(testDimension), testDimension, time.Second, logger.NewNopLogger())

	res, err := svc.Enqueue(h.ctx, &dto.ReembedRequest{Mode: ReembedModeAll})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enqueued)
	assert.ElementsMatch(t, []uuid.UUID{pendingId, embeddedId}, jobs.ids(t))

	got, err := h.contexts.Get(h.ctx, embeddedId)
	require.NoError(t, err)
	assert.False(t, got.HasEmbedding)
}

func TestReembed_RejectsOtherDimension(t *testing.T) {
	h, _, embeddedId := pendingHarness(t)
	svc := NewReembedService(h.uow, &capturingPublisher{}, nil, "reembed", embedding.NewHashProvider(testDimension), testDimension, time.Second, logger.NewNopLogger())

	_, err := svc.Enqueue(h.ctx, &dto.ReembedRequest{Dimension: 768})
	assert.ErrorIs(t, err, apperr.ErrSchemaViolation)

	got, err := h.contexts.Get(h.ctx, embeddedId)
	require.NoError(t, err)
	assert.True(t, got.HasEmbedding, "a rejected migration keeps existing vectors")
}

func TestReembed_ConsumeProcessesJobs(t *testing.T) {
	h, pendingId, _ := pendingHarness(t)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	svc := NewReembedService(
		h.uow,
		NewPublisherService("reembed", pubSub),
		pubSub,
		"reembed",
		embedding.NewHashProvider(testDimension),
		testDimension,
		time.Second,
		logger.NewNopLogger(),
	)

	ctx, cancel := context.WithCancel(h.ctx)
	t.Cleanup(cancel)
	require.NoError(t, svc.Consume(ctx))

	_, err := svc.Enqueue(h.ctx, &dto.ReembedRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := h.contexts.Get(h.ctx, pendingId)
		return err == nil && got.HasEmbedding
	}, 2*time.Second, 10*time.Millisecond)
}
