package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/ledger/notify"
	lrepo "github.com/radieske/arena-settlement-core/internal/ledger/repo"
	mmrepo "github.com/radieske/arena-settlement-core/internal/matchmaking/repo"
	"github.com/radieske/arena-settlement-core/internal/reaper"
	"github.com/radieske/arena-settlement-core/internal/shared/cache"
	"github.com/radieske/arena-settlement-core/internal/shared/config"
	"github.com/radieske/arena-settlement-core/internal/shared/db"
	"github.com/radieske/arena-settlement-core/internal/shared/logger"
	"github.com/radieske/arena-settlement-core/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("timeout-reaper", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Métricas Prometheus da varredura de W.O.
	forfeited := prometheus.NewCounter(prometheus.CounterOpts{Name: "reaper_forfeits_total", Help: "partidas encerradas por timeout"})
	sweepErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "reaper_errors_total", Help: "erros de varredura"})
	prometheus.MustRegister(forfeited, sweepErrors)

	r := &reaper.Reaper{
		Log:     log,
		Matches: mmrepo.NewPostgres(pg),
		Ledger:  lrepo.NewPostgres(pg),
		Notif:   notify.NewBalanceNotifier(redisClient),

		Tick:      cfg.ReaperTick,
		Window:    cfg.ReaperWindow,
		BatchSize: 200,

		OnForfeited: func() { forfeited.Inc() },
		OnError:     func() { sweepErrors.Inc() },
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	defer metricsSrv.Close()
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("timeout-reaper started",
		zap.Duration("tick", cfg.ReaperTick),
		zap.Duration("window", cfg.ReaperWindow),
	)
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("reaper stopped with error", zap.Error(err))
	}
	log.Info("timeout-reaper stopped")
}
