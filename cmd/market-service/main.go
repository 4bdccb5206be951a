package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	vaultrepo "github.com/radieske/hyper-market/internal/asset-vault/repo"
	"github.com/radieske/hyper-market/internal/market"
	mcache "github.com/radieske/hyper-market/internal/market-service/cache"
	mhttp "github.com/radieske/hyper-market/internal/market-service/http"
	"github.com/radieske/hyper-market/internal/market-service/journal"
	"github.com/radieske/hyper-market/internal/market-service/producer"
	"github.com/radieske/hyper-market/internal/shared/cache"
	"github.com/radieske/hyper-market/internal/shared/config"
	"github.com/radieske/hyper-market/internal/shared/db"
	"github.com/radieske/hyper-market/internal/shared/kafka"
	"github.com/radieske/hyper-market/internal/shared/logger"
	"github.com/radieske/hyper-market/internal/shared/metrics"
	yclient "github.com/radieske/hyper-market/internal/yield-source/client"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres: journal de eventos + vault de tokens
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg, journal.Schema, journal.CursorSchema, vaultrepo.Schema); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Redis: lock distribuído por market + cache de snapshots
	rdb, err := cache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka: eventos do engine para o indexer
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketEvents)
	defer writer.Close()

	// Curvas disponíveis no yield-source-simulator
	sources, list, err := yclient.Discover(ctx, cfg.YieldSourceURL)
	if err != nil {
		log.Fatal("yield source discovery", zap.String("url", cfg.YieldSourceURL), zap.Error(err))
	}
	log.Info("yield sources discovered", zap.Int("count", len(list)))

	// Métricas do engine
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_events_committed_total", Help: "eventos gravados por tipo"}, []string{"kind"})
	rejects := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_operations_rejected_total", Help: "operações rejeitadas por classe de erro"}, []string{"op", "class"})
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_events_relayed_total", Help: "eventos publicados no kafka a partir do journal"}, []string{"kind"})
	prometheus.MustRegister(commits, rejects, relayed)

	// Relay: o tópico é alimentado pelo journal com cursor persistido
	events := journal.NewPostgres(pg)
	relay := &producer.Relay{
		Journal:     events,
		Cursors:     journal.NewPostgresCursors(pg),
		Out:         producer.NewKafkaPublisher(writer, cfg.TopicMarketEvents),
		Log:         log.With(zap.String("component", "relay")),
		OnPublished: func(kind string) { relayed.WithLabelValues(kind).Inc() },
	}

	factory := market.NewFactory(common.HexToAddress(cfg.FactoryAddress), market.Deps{
		Sources:   sources,
		Vault:     vaultrepo.NewPostgres(pg),
		Journal:   events,
		Publisher: relay,
		Log:       log,
		OnCommit:  func(kind string) { commits.WithLabelValues(kind).Inc() },
		OnReject:  func(op, class string) { rejects.WithLabelValues(op, class).Inc() },
	})
	if err := factory.Restore(ctx); err != nil {
		log.Fatal("restore markets", zap.Error(err))
	}
	// depósitos e claims interrompidos por uma queda anterior
	if err := factory.Recover(ctx); err != nil {
		log.Warn("pending intents left after recovery", zap.Error(err))
	}
	go relay.Run(ctx)

	api := &mhttp.API{
		Log:         log,
		Factory:     factory,
		Asset:       common.HexToAddress(cfg.AssetAddress),
		Cache:       mcache.New(rdb),
		SnapshotTTL: cfg.SnapshotTTL,
		Locker:      cache.NewLocker(rdb),
		LockTTL:     cfg.LockTTL,
		LockWait:    cfg.LockWait,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.Checks(
		pg.PingContext,
		cache.Ping(rdb),
	))
	apiSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router()}

	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr), zap.String("factory", factory.Address().Hex()))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer done()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("market-service stopped")
}
