package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/internal/market-indexer/consumer"
	"github.com/radieske/hyper-market/internal/market-indexer/pubsub"
	"github.com/radieske/hyper-market/internal/market-indexer/repository"
	sharedcache "github.com/radieske/hyper-market/internal/shared/cache"
	"github.com/radieske/hyper-market/internal/shared/config"
	"github.com/radieske/hyper-market/internal/shared/db"
	"github.com/radieske/hyper-market/internal/shared/kafka"
	"github.com/radieske/hyper-market/internal/shared/logger"
	"github.com/radieske/hyper-market/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg, repository.Schema); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	redisClient, err := sharedcache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumer group do indexer + writer da DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMarketEvents, cfg.IndexerGroupID)
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketEventsDLQ)
	defer dlq.Close()

	// Métricas Prometheus para monitoramento da indexação
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_indexer_messages_consumed_total", Help: "mensagens consumidas"})
	indexed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_indexer_events_indexed_total", Help: "eventos indexados por tipo"}, []string{"kind"})
	dupes := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_indexer_duplicates_total", Help: "reentregas ignoradas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_indexer_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, indexed, dupes, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		DLQ:         dlq,
		Store:       repository.NewPostgresRepo(pg),
		Broadcaster: pubsub.NewRedisBroadcaster(redisClient, log),
		Channel:     cfg.RedisPubSubChannel,
		OnConsumed:  func() { consumed.Inc() },
		OnIndexed:   func(kind string) { indexed.WithLabelValues(kind).Inc() },
		OnDuplicate: func() { dupes.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metrics.StartMetricsServer(cfg.MetricsPort, metrics.Checks(
		pg.PingContext,
		sharedcache.Ping(redisClient),
	))

	log.Info("market-indexer started", zap.String("topic", cfg.TopicMarketEvents))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("indexer stopped with error", zap.Error(err))
	}
	log.Info("market-indexer stopped")
}
