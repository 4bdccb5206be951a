package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	vaultrepo "github.com/radieske/hyper-market/internal/asset-vault/repo"
	"github.com/radieske/hyper-market/internal/shared/config"
	"github.com/radieske/hyper-market/internal/shared/db"
	"github.com/radieske/hyper-market/internal/shared/logger"
	"github.com/radieske/hyper-market/internal/shared/metrics"
	"github.com/radieske/hyper-market/internal/yield-source/curve"
	yhttp "github.com/radieske/hyper-market/internal/yield-source/http"
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

	// O simulador move PT/YT no mesmo vault que o market-service
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg, vaultrepo.Schema); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	vault := vaultrepo.NewPostgres(pg)

	terms, err := curve.ParseTerms(cfg.YieldCurves)
	if err != nil {
		log.Fatal("yield curves", zap.String("curves", cfg.YieldCurves), zap.Error(err))
	}
	asset := common.HexToAddress(cfg.AssetAddress)
	now := time.Now().UTC()
	curves := make([]*curve.Curve, 0, len(terms))
	for _, t := range terms {
		c := curve.Named(t.Name("USDY"), asset, t.RateBps, now.AddDate(0, 0, int(t.Days)), vault)
		curves = append(curves, c)
		log.Info("curve ready",
			zap.Uint32("days", t.Days),
			zap.Uint32("rate_bps", t.RateBps),
			zap.String("ref", c.Ref.Hex()),
			zap.String("pt", c.Principal.Hex()),
			zap.String("yt", c.Yield.Hex()),
		)
	}

	api := yhttp.New(log, curves...)
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, pg.PingContext)
	apiSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router()}

	go func() {
		log.Info("yield-source-simulator listening", zap.String("addr", apiSrv.Addr))
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
