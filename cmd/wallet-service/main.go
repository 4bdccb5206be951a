package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	vhttp "github.com/radieske/hyper-market/internal/asset-vault/http"
	vaultrepo "github.com/radieske/hyper-market/internal/asset-vault/repo"
	"github.com/radieske/hyper-market/internal/shared/config"
	"github.com/radieske/hyper-market/internal/shared/db"
	"github.com/radieske/hyper-market/internal/shared/logger"
	"github.com/radieske/hyper-market/internal/shared/metrics"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New("wallet-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting asset vault")

	// Conexão com Postgres para saldos e allowances
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(context.Background(), pg, vaultrepo.Schema); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Instancia repositório e servidor HTTP do vault
	repo := vaultrepo.NewPostgres(pg)
	api := vhttp.NewServer(log, repo)

	// Servidor de métricas e health check
	metrics.StartMetricsServer(cfg.MetricsPort, pg.PingContext) // ex: 9098

	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort, // ex: 8082
		Handler: api.Router(),
	}
	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api srv", zap.Error(err))
	}
}
