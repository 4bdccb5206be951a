package main

import (
	"net/http"

	"go.uber.org/zap"

	gateway "github.com/radieske/hyper-market/internal/api-gateway"
	"github.com/radieske/hyper-market/internal/shared/config"
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

	h, err := gateway.Handler(log,
		gateway.Route{Prefix: "/api/markets", Target: cfg.MarketServiceURL}, // market-service
		gateway.Route{Prefix: "/api/wallet", Target: cfg.WalletURL},         // wallet-service
		gateway.Route{Prefix: "/api/feed", Target: cfg.FeedURL},             // market-feed-service
		gateway.Route{Prefix: "/api/yield", Target: cfg.YieldSourceURL},     // yield-source-simulator
	)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	metrics.StartMetricsServer(cfg.MetricsPort, metrics.Always)

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, h); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
