package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"devmemory-be/internal/dto"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/memory"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/pkg/embedding"
	"devmemory-be/pkg/events"
	"devmemory-be/pkg/tokens"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout   = 2 * time.Hour
	testDimension = 16
)

var testStart = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// stubProvider returns a fixed vector or error.
type stubProvider struct {
	dim int
	vec []float32
	err error

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string   { return "stub" }
func (p *stubProvider) Model() string  { return "stub-model" }
func (p *stubProvider) Dimension() int { return p.dim }

func (p *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return append([]float32{}, p.vec...), nil
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *clock.Fake
	store *memory.Store
	uow   unitofwork.RepositoryFactory

	events      *recordingPublisher
	projects    IProjectRegistry
	sessions    ISessionService
	correlation ICorrelationService
	contexts    IContextService
	decisions   IDecisionService
	tasks       ITaskService
	naming      INamingService
	analytics   IAnalyticsService
	monitor     ITimeoutMonitor
}

type harnessOptions struct {
	provider  embedding.Provider
	allowNull bool
}

func withProvider(p embedding.Provider) func(*harnessOptions) {
	return func(o *harnessOptions) { o.provider = p }
}

func withNullOnFailure() func(*harnessOptions) {
	return func(o *harnessOptions) { o.allowNull = true }
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	o := harnessOptions{provider: embedding.NewHashProvider(testDimension)}
	for _, opt := range opts {
		opt(&o)
	}

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  clock.NewFake(testStart),
		store:  memory.NewStore(),
		events: &recordingPublisher{},
	}
	h.uow = memory.NewRepositoryFactory(h.store)
	h.wire(o)
	return h
}

func (h *harness) wire(o harnessOptions) {
	log := logger.NewNopLogger()
	h.projects = NewProjectRegistry(h.uow, h.clock)
	h.sessions = NewSessionService(h.uow, h.projects, h.clock, testTimeout, h.events, tokens.NewEstimator(), log)
	h.correlation = NewCorrelationService(h.uow, h.sessions, nil, h.clock, h.events, log)
	h.contexts = NewContextService(h.uow, h.sessions, h.correlation, o.provider, ContextStoreOptions{
		Dimension:          testDimension,
		EmbedTimeout:       time.Second,
		AllowNullOnFailure: o.allowNull,
	}, h.clock, h.events, log)
	h.decisions = NewDecisionService(h.uow, h.sessions, h.correlation, h.clock, h.events, log)
	h.tasks = NewTaskService(h.uow, h.sessions, h.correlation, h.clock, h.events, log)
	h.naming = NewNamingService(h.uow, h.sessions, h.correlation, h.clock, h.events, log)
	h.analytics = NewAnalyticsService(h.uow, h.sessions, h.correlation)
	h.monitor = NewTimeoutMonitor(h.uow, h.sessions, h.clock, TimeoutMonitorOptions{
		Timeout:       testTimeout,
		Interval:      time.Minute,
		RestartPolicy: RestartPolicyLazy,
	}, h.events, log)
}

func (h *harness) project(name string) uuid.UUID {
	h.t.Helper()
	res, err := h.projects.Create(h.ctx, &dto.CreateProjectRequest{Name: name})
	require.NoError(h.t, err)
	return res.Id
}

func (h *harness) active() *dto.GetActiveSessionResponse {
	h.t.Helper()
	res, err := h.sessions.GetActiveSession(h.ctx)
	require.NoError(h.t, err)
	return res
}

func (h *harness) session(ref string) *dto.SessionResponse {
	h.t.Helper()
	res, err := h.sessions.GetSession(h.ctx, ref)
	require.NoError(h.t, err)
	return res
}

func (h *harness) activeCount() int64 {
	h.t.Helper()
	res, err := h.sessions.ListSessions(h.ctx, &dto.ListSessionsRequest{Status: "active"})
	require.NoError(h.t, err)
	return res.Total
}

func (h *harness) storeContext(content string, sessionRef string) *dto.StoreContextResponse {
	h.t.Helper()
	res, err := h.contexts.Store(h.ctx, &dto.StoreContextRequest{
		Content:   content,
		Type:      "code",
		SessionId: sessionRef,
	})
	require.NoError(h.t, err)
	return res
}

// unit returns a unit vector of testDimension with v at index i.
func unit(i int, v float32) []float32 {
	vec := make([]float32, testDimension)
	vec[i] = v
	return vec
}
