package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"devmemory-be/internal/config"
	"devmemory-be/internal/controller"
	"devmemory-be/internal/operation"
	"devmemory-be/internal/pkg/clock"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/repository/memory"
	"devmemory-be/internal/repository/unitofwork"
	"devmemory-be/internal/service"
	"devmemory-be/pkg/embedding"
	pktNats "devmemory-be/pkg/nats"
	"devmemory-be/pkg/tokens"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	OperationController controller.IOperationController
	HealthController    controller.IHealthController

	Registry *operation.Registry
	Services operation.Services

	// Background Services (Exposed for main.go to run)
	TimeoutMonitor service.ITimeoutMonitor
	ReembedService service.IReembedService

	closers []func()
}

type Options struct {
	// DB is nil when the in-memory store is used.
	DB     *gorm.DB
	Clock  clock.Clock
	Logger logger.ILogger
	// Provider overrides the configured embedding provider (tests).
	Provider embedding.Provider
	// SyncJobs makes job publishing block until the consumer acks, for
	// one-shot CLI runs.
	SyncJobs bool
}

func NewContainer(cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{}
	sysLogger := opts.Logger
	if sysLogger == nil {
		sysLogger = logger.NewNopLogger()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}

	// 1. Core Facades
	var uowFactory unitofwork.RepositoryFactory
	if opts.DB != nil {
		uowFactory = unitofwork.NewRepositoryFactory(opts.DB)
	} else {
		uowFactory = memory.NewRepositoryFactory(memory.NewStore())
		sysLogger.Warn("BOOTSTRAP", "Using in-memory store, data is lost on exit", nil)
	}

	// 2. Event Bus
	var eventPublisher service.IEventPublisher = service.NewNoopEventPublisher()
	if cfg.Infra.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.Infra.NatsURL)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to NATS, domain events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: opts.SyncJobs,
		},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Embedding provider
	provider := opts.Provider
	if provider == nil {
		p, err := embedding.New(embedding.Options{
			Provider:        cfg.Embedding.Provider,
			Model:           cfg.Embedding.Model,
			BaseURL:         cfg.Embedding.BaseURL,
			APIKey:          cfg.Embedding.APIKey,
			AzureEndpoint:   cfg.Embedding.AzureEndpoint,
			AzureDeployment: cfg.Embedding.AzureDeployment,
			Dimension:       cfg.Embedding.Dimension,
			Timeout:         cfg.Embedding.Timeout,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		provider = p
	}

	var rdb *redis.Client
	if cfg.Infra.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Infra.RedisURL)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.Infra.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to Redis, using local cache only", map[string]interface{}{"error": err.Error()})
			_ = rdb.Close()
			rdb = nil
		} else {
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
	}
	cached := embedding.NewCachedProvider(provider, rdb, cfg.Embedding.CacheTTL)
	cached.OnCacheError = func(err error) {
		sysLogger.Warn("EMBEDDING", "Embedding cache unavailable", map[string]interface{}{"error": err.Error()})
	}
	sysLogger.Info("BOOTSTRAP", "Embedding provider ready", map[string]interface{}{
		"provider":  provider.Name(),
		"model":     provider.Model(),
		"dimension": cfg.Embedding.Dimension,
	})

	// 4. Services
	projectRegistry := service.NewProjectRegistry(uowFactory, clk)
	sessionService := service.NewSessionService(
		uowFactory,
		projectRegistry,
		clk,
		cfg.Session.Timeout,
		eventPublisher,
		tokens.NewEstimator(),
		sysLogger,
	)
	correlationService := service.NewCorrelationService(uowFactory, sessionService, service.NewWeightedActivityScorer(), clk, eventPublisher, sysLogger)
	contextService := service.NewContextService(
		uowFactory,
		sessionService,
		correlationService,
		cached,
		service.ContextStoreOptions{
			Dimension:          cfg.Embedding.Dimension,
			EmbedTimeout:       cfg.Embedding.Timeout,
			AllowNullOnFailure: cfg.Embedding.AllowNullOnFailure,
		},
		clk,
		eventPublisher,
		sysLogger,
	)
	publisherService := service.NewPublisherService(cfg.Embedding.ReembedTopic, pubSub)
	reembedService := service.NewReembedService(
		uowFactory,
		publisherService,
		pubSub,
		cfg.Embedding.ReembedTopic,
		cached,
		cfg.Embedding.Dimension,
		cfg.Embedding.Timeout,
		sysLogger,
	)

	c.Services = operation.Services{
		Sessions:    sessionService,
		Projects:    projectRegistry,
		Contexts:    contextService,
		Reembed:     reembedService,
		Correlation: correlationService,
		Analytics:   service.NewAnalyticsService(uowFactory, sessionService, correlationService),
		Decisions:   service.NewDecisionService(uowFactory, sessionService, correlationService, clk, eventPublisher, sysLogger),
		Tasks:       service.NewTaskService(uowFactory, sessionService, correlationService, clk, eventPublisher, sysLogger),
		Naming:      service.NewNamingService(uowFactory, sessionService, correlationService, clk, eventPublisher, sysLogger),
	}
	c.ReembedService = reembedService
	c.TimeoutMonitor = service.NewTimeoutMonitor(uowFactory, sessionService, clk, service.TimeoutMonitorOptions{
		Timeout:       cfg.Session.Timeout,
		Interval:      cfg.Session.SweepInterval,
		RestartPolicy: cfg.Session.RestartPolicy,
	}, eventPublisher, sysLogger)

	// 5. Protocol bridge
	c.Registry = operation.NewRegistry(sysLogger, sessionService, operation.Catalog(c.Services)...)
	c.OperationController = controller.NewOperationController(c.Registry)

	checks := map[string]controller.HealthChecker{}
	if opts.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := opts.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	checks["embedding"] = func(ctx context.Context) error {
		if provider.Dimension() != cfg.Embedding.Dimension {
			return errors.New("provider dimension does not match the configured dimension")
		}
		return nil
	}
	c.HealthController = controller.NewHealthController(checks)

	return c, nil
}

// Close releases the connections opened by NewContainer.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
