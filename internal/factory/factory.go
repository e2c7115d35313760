package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"security-service/internal/bucketing"
	"security-service/internal/client"
	"security-service/internal/config"
	"security-service/internal/handler"
	"security-service/internal/ratelimit"
	"security-service/internal/repository/clickhouse"
	redisrepo "security-service/internal/repository/redis"
	"security-service/internal/repository/scylla"
	"security-service/internal/service"
	"security-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	bucketingManager *bucketing.Manager

	// Repositories
	eventRepository  *clickhouse.EventRepository
	breachRepository *scylla.BreachRepository
	rateLimitCache   *redisrepo.RateLimitCache

	serviceFactory *service.ServiceFactory
	rateCounter    *ratelimit.DistributedCounter

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.bucketingManager = bucketing.NewManager(cfg)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("elasticsearch_enabled", cfg.Elasticsearch.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks.
// Redis, ClickHouse and ScyllaDB are required in production; Kafka and
// Elasticsearch are optional collaborators the service degrades without.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without breach alerts", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			util.Warn("Elasticsearch initialization failed - proceeding without event search", util.ErrorField(err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) EventRepository() *clickhouse.EventRepository {
	if f.eventRepository == nil {
		f.eventRepository = clickhouse.NewEventRepository(f.clickhouseClient, util.Get())
	}
	return f.eventRepository
}

func (f *Factory) BreachRepository() *scylla.BreachRepository {
	if f.breachRepository == nil {
		f.breachRepository = scylla.NewBreachRepository(f.scyllaClient, f.BucketingManager(), util.Get())
	}
	return f.breachRepository
}

func (f *Factory) RateLimitCache() *redisrepo.RateLimitCache {
	if f.rateLimitCache == nil {
		f.rateLimitCache = redisrepo.NewRateLimitCache(f.redisClient)
	}
	return f.rateLimitCache
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		// Typed nil clients must not leak into interface fields: a non-nil
		// interface holding a nil pointer would defeat the optional-dependency
		// checks downstream.
		var publisher service.BreachPublisher
		if f.kafkaProducer != nil {
			publisher = f.kafkaProducer
		}
		var indexer service.EventIndexer
		if f.esClient != nil {
			indexer = f.esClient
		}

		f.serviceFactory = service.NewServiceFactory(
			f.EventRepository(),
			f.EventRepository(),
			f.BreachRepository(),
			f.RateLimitCache(),
			publisher,
			indexer,
			f.BucketingManager(),
			util.Get(),
		)
	}
	return f.serviceFactory
}

// RateCounter returns the distributed rate limit counter, with the security
// event recorder wired in as the sink for blocked checks.
func (f *Factory) RateCounter() *ratelimit.DistributedCounter {
	if f.rateCounter == nil {
		f.rateCounter = ratelimit.NewDistributedCounter(
			f.RateLimitCache(),
			f.ServiceFactory().Recorder(),
			util.Get(),
		)
	}
	return f.rateCounter
}

// SecurityHandler assembles the HTTP handler over the service layer.
func (f *Factory) SecurityHandler() *handler.SecurityHandler {
	var searcher handler.EventSearcher
	if f.esClient != nil {
		searcher = f.esClient
	}

	return handler.NewSecurityHandler(
		f.ServiceFactory().Recorder(),
		f.RateCounter(),
		f.BreachRepository(),
		searcher,
		util.Get(),
	)
}

// ==============================
// Health Checks
// ==============================

// HealthCheck reports each dependency as "healthy" or its failure message.
func (f *Factory) HealthCheck(ctx context.Context) map[string]string {
	checks := make(map[string]string)

	report := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
		} else {
			checks[name] = "healthy"
		}
	}

	if f.redisClient != nil {
		report("redis", f.redisClient.HealthCheck(ctx))
	} else {
		checks["redis"] = "not initialized"
	}

	if f.clickhouseClient != nil {
		report("clickhouse", f.clickhouseClient.HealthCheck(ctx))
	} else {
		checks["clickhouse"] = "not initialized"
	}

	if f.scyllaClient != nil {
		report("scylla", f.scyllaClient.HealthCheck())
	} else {
		checks["scylla"] = "not initialized"
	}

	if f.kafkaProducer != nil {
		report("kafka", f.kafkaProducer.HealthCheck(ctx))
	}

	if f.esClient != nil {
		report("elasticsearch", f.esClient.HealthCheck())
	}

	return checks
}

// IsHealthy reports whether all required dependencies are reachable. Optional
// collaborators (Kafka, Elasticsearch) do not affect readiness.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	checks := f.HealthCheck(ctx)
	delete(checks, "kafka")
	delete(checks, "elasticsearch")
	for _, state := range checks {
		if state != "healthy" {
			return false
		}
	}
	return true
}

// ==============================
// Other Utility Methods
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) BucketingManager() *bucketing.Manager {
	return f.bucketingManager
}
