package di

import (
	"context"
	"fmt"
	"time"

	"FlowPull/internal/domain/repository"
	"FlowPull/internal/handler/api"
	internalrepo "FlowPull/internal/repository"
	"FlowPull/internal/service/auth"
	"FlowPull/internal/service/progress"
	"FlowPull/internal/service/quotestream"
	"FlowPull/internal/service/upstream"
	"FlowPull/internal/usecase"
	pkgcache "FlowPull/pkg/cache"
	pkgch "FlowPull/pkg/clickhouse"
	"FlowPull/pkg/config"
	xhttp "FlowPull/pkg/http"
	pkgkafka "FlowPull/pkg/kafka"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/metrics"
	"FlowPull/pkg/queue"
	"FlowPull/pkg/server"
	"FlowPull/pkg/util"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisCache creates the shared Redis cache client.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	host, port := splitHostPort(cfg.Redis.Addr)
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
}

// ProvideCacheService layers a process-local cache over Redis.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	return pkgcache.NewLayeredCache(rc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideHTTPClient creates the outbound HTTP client.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	timeout := cfg.Upstream.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return xhttp.NewClient(xhttp.WithTimeout(timeout))
}

// ProvideAuthProvider creates the upstream token provider.
func ProvideAuthProvider(hc *xhttp.Client, cfg *config.Config, cacheSvc pkgcache.Service, lgr *logger.Logger) repository.AuthProvider {
	return auth.New(hc, cfg.Upstream.BaseURL, cfg.Upstream.AppKey, cfg.Upstream.SecretKey, cacheSvc, lgr)
}

// ProvideUpstreamClient creates the chart page client.
func ProvideUpstreamClient(hc *xhttp.Client, cfg *config.Config, ap repository.AuthProvider, lgr *logger.Logger) *upstream.Client {
	return upstream.NewClient(hc, cfg.Upstream.BaseURL, ap, lgr)
}

// ProvideCaller wraps the client with rate limiting and retry.
func ProvideCaller(client *upstream.Client, cfg *config.Config, m repository.Metrics, lgr *logger.Logger) *upstream.Caller {
	return upstream.NewCaller(client, cfg.Upstream.RatePerSecond, cfg.Upstream.Burst, lgr,
		upstream.WithCallTimeout(cfg.Upstream.RequestTimeout),
		upstream.WithRetry(cfg.Upstream.RetryMax, cfg.Upstream.RetryInitial, cfg.Upstream.RetryMaxWait),
		upstream.WithOnRetry(m.RecordRetry),
	)
}

// ProvideWalker creates the continuation walker.
func ProvideWalker(caller *upstream.Caller, cfg *config.Config, lgr *logger.Logger) *usecase.Walker {
	return usecase.NewWalker(caller, lgr,
		usecase.WithMaxPages(cfg.Upstream.MaxPages),
		usecase.WithMaxWalkTime(cfg.Upstream.MaxWalkTime),
		usecase.WithPageDelay(cfg.Upstream.PageDelay),
	)
}

// ProvideFlowStore creates the daily flow store.
func ProvideFlowStore(chClient *pkgch.Client, cfg *config.Config) repository.FlowStore {
	return internalrepo.NewClickHouseFlowStore(chClient, cfg.ClickHouse.Database+"."+internalrepo.FlowDailyTable)
}

// ProvideCumulativeStore creates the running-totals store.
func ProvideCumulativeStore(chClient *pkgch.Client, cfg *config.Config) repository.CumulativeStore {
	return internalrepo.NewClickHouseCumulativeStore(chClient, cfg.ClickHouse.Database+"."+internalrepo.FlowCumulativeTable)
}

// ProvideUniverse creates the backfill universe reader. An explicit
// instrument list in config takes precedence over the universe table.
func ProvideUniverse(chClient *pkgch.Client, cfg *config.Config) repository.InstrumentUniverse {
	if len(cfg.Backfill.Instruments) > 0 {
		return internalrepo.NewStaticUniverse(cfg.Backfill.Instruments)
	}
	return internalrepo.NewClickHouseUniverse(chClient, cfg.ClickHouse.Database+"."+internalrepo.UniverseTable)
}

// ProvideFlowPublisher creates the Kafka publisher, or a no-op one when
// Kafka is disabled.
func ProvideFlowPublisher(cfg *config.Config) (repository.FlowPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopFlowPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaFlowPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideProgressTracker creates the job progress tracker on Redis.
func ProvideProgressTracker(cacheSvc pkgcache.Service, cfg *config.Config, lgr *logger.Logger) *progress.Tracker {
	return progress.NewTracker(progress.NewRedisStore(cacheSvc), cfg.Redis.ProgressTTL, lgr)
}

// ProvideAccumulator creates the cumulative fold engine.
func ProvideAccumulator(flows repository.FlowStore, cumuls repository.CumulativeStore, cfg *config.Config, m repository.Metrics, lgr *logger.Logger) *usecase.Accumulator {
	floor := parseDate(cfg.Backfill.FloorDate, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	return usecase.NewAccumulator(flows, cumuls, floor, m, lgr)
}

// ProvideSyncService creates the orchestrator.
func ProvideSyncService(
	walker *usecase.Walker,
	caller *upstream.Caller,
	flows repository.FlowStore,
	publisher repository.FlowPublisher,
	accum *usecase.Accumulator,
	universe repository.InstrumentUniverse,
	tracker *progress.Tracker,
	m repository.Metrics,
	lgr *logger.Logger,
	cfg *config.Config,
) *usecase.SyncService {
	return usecase.NewSyncService(walker, caller, flows, publisher, accum, universe, tracker, m, lgr,
		usecase.SyncConfig{
			FlushEvery:      cfg.Backfill.FlushEvery,
			InstrumentDelay: cfg.Backfill.InstrumentDelay,
			UniverseFloor:   parseDate(cfg.Backfill.UniverseFloor, time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)),
		})
}

// ProvideQuoteCollector creates the realtime collector, or nil when the
// stream is disabled by config.
func ProvideQuoteCollector(cfg *config.Config, ap repository.AuthProvider, m repository.Metrics, lgr *logger.Logger) *usecase.QuoteCollector {
	if !cfg.QuoteStream.Enabled {
		return nil
	}
	stream := quotestream.New(
		cfg.QuoteStream.URL,
		cfg.QuoteStream.Instruments,
		ap,
		cfg.QuoteStream.ReconnectDelay,
		cfg.QuoteStream.PingInterval,
		lgr,
	)
	return usecase.NewQuoteCollector(stream, m)
}

// ProvideJobQueue creates the Redis job queue with the backfill job
// registered. The same queue serves publishing from handlers.
func ProvideJobQueue(lgr *logger.Logger, rc *pkgcache.RedisCache, service *usecase.SyncService) *queue.RedisQueue {
	q := queue.NewRedisQueue(lgr, &queue.QueueConfig{
		Workers:    1,
		RetryLimit: 1,
		RetryDelay: time.Minute,
	}, rc.Client(), queue.ModeProducerConsumer)
	q.RegisterJob(usecase.NewBackfillJob(service, lgr))
	return q
}

// ProvideFlowsHandler creates the REST handler.
func ProvideFlowsHandler(
	lgr *logger.Logger,
	service *usecase.SyncService,
	flows repository.FlowStore,
	cumuls repository.CumulativeStore,
	tracker *progress.Tracker,
	jobs *queue.RedisQueue,
) *api.FlowsHandler {
	return api.NewFlowsHandler(lgr, service, flows, cumuls, tracker, jobs)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	handler *api.FlowsHandler,
	collector *usecase.QuoteCollector,
	jobs *queue.RedisQueue,
	chClient *pkgch.Client,
	rc *pkgcache.RedisCache,
	publisher repository.FlowPublisher,
) *server.App {
	return server.New(cfg, lgr, handler, collector, jobs, chClient, rc, publisher)
}

func parseDate(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	t, err := util.ParseYMD(s)
	if err != nil {
		return def
	}
	return t
}

func splitHostPort(addr string) (string, int) {
	host := "localhost"
	port := 6379
	if addr == "" {
		return host, port
	}
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host = addr[:i]
			port = util.ParseIntDefault(addr[i+1:], port)
			return host, port
		}
	}
	return addr, port
}
