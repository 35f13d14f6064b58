package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go/clients/horizonclient"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/confirmation"
	cprod "github.com/radieske/arena-settlement-core/internal/confirmation/producer"
	srepo "github.com/radieske/arena-settlement-core/internal/settlement/repo"
	"github.com/radieske/arena-settlement-core/internal/shared/config"
	"github.com/radieske/arena-settlement-core/internal/shared/db"
	"github.com/radieske/arena-settlement-core/internal/shared/kafka"
	"github.com/radieske/arena-settlement-core/internal/shared/logger"
	"github.com/radieske/arena-settlement-core/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("confirmation-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	horizon := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}

	// Kafka producer: emite payout_settled quando a transação finaliza
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutSettled)
	defer settledWriter.Close()

	// Métricas Prometheus do polling de confirmação
	finalizedBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "confirm_finalized_total", Help: "transações finalizadas por status"}, []string{"status"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "confirm_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(finalizedBy, errorsBy)

	mon := &confirmation.Monitor{
		Log:     log,
		Repo:    srepo.NewPostgres(pg),
		Horizon: horizon,
		Publ:    cprod.NewKafkaPublisher(settledWriter),

		Tick:         cfg.ConfirmTick,
		InitialDelay: cfg.ConfirmInitialDelay,
		MaxDelay:     5 * time.Minute,
		MaxAttempts:  cfg.ConfirmMaxAttempts,
		BatchSize:    100,

		OnFinalized: func(status string) { finalizedBy.WithLabelValues(status).Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	defer metricsSrv.Close()
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("confirmation-worker started",
		zap.Duration("tick", cfg.ConfirmTick),
		zap.Int("maxAttempts", cfg.ConfirmMaxAttempts),
	)
	if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("monitor stopped with error", zap.Error(err))
	}
	log.Info("confirmation-worker stopped")
}
