package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	fhttp "github.com/radieske/hyper-market/internal/market-feed/http"
	"github.com/radieske/hyper-market/internal/market-feed/repo"
	"github.com/radieske/hyper-market/internal/market-feed/ws"
	"github.com/radieske/hyper-market/internal/shared/cache"
	"github.com/radieske/hyper-market/internal/shared/config"
	"github.com/radieske/hyper-market/internal/shared/db"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	conns := prometheus.NewGauge(prometheus.GaugeOpts{Name: "market_feed_ws_connections", Help: "conexões WebSocket ativas"})
	pushed := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_feed_ws_messages_sent_total", Help: "mensagens enviadas aos clientes"})
	prometheus.MustRegister(conns, pushed)

	hub := ws.NewHub(log, func(*http.Request) bool { return true })
	hub.OnConnect = func(delta int) { conns.Add(float64(delta)) }
	hub.OnBroadcast = func(n int) { pushed.Add(float64(n)) }
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	api := &fhttp.API{Read: &repo.ReadRepo{DB: pg}, WS: hub.HandleWS}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.Checks(
		pg.PingContext,
		cache.Ping(redisClient),
	))
	apiSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router()}

	go func() {
		log.Info("market-feed listening", zap.String("addr", apiSrv.Addr), zap.String("channel", cfg.RedisPubSubChannel))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer done()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
