package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	lhttp "github.com/radieske/arena-settlement-core/internal/ledger/http"
	"github.com/radieske/arena-settlement-core/internal/ledger/notify"
	"github.com/radieske/arena-settlement-core/internal/ledger/producer"
	lrepo "github.com/radieske/arena-settlement-core/internal/ledger/repo"
	"github.com/radieske/arena-settlement-core/internal/matchmaking/queue"
	"github.com/radieske/arena-settlement-core/internal/shared/cache"
	"github.com/radieske/arena-settlement-core/internal/shared/config"
	"github.com/radieske/arena-settlement-core/internal/shared/db"
	"github.com/radieske/arena-settlement-core/internal/shared/kafka"
	"github.com/radieske/arena-settlement-core/internal/shared/logger"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New("ledger-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "ledger-service"), zap.String("env", cfg.Env))

	// Conexão com Postgres para carteiras, escrows e lançamentos
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: fila de matchmaking e pub/sub de saldo
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Writer Kafka para pedidos de saque on-chain (consumidos pelo settlement-worker)
	payoutWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutRequested)
	defer payoutWriter.Close()

	// Instancia repositório, fila, produtores e servidor HTTP
	repo := lrepo.NewPostgres(pg)
	mmQueue := queue.NewRedis(redisClient)
	notifier := notify.NewBalanceNotifier(redisClient)
	payouts := producer.NewKafkaPublisher(payoutWriter)
	api := lhttp.NewServer(log, repo, mmQueue, notifier, payouts)

	// Servidor HTTP público (API do livro-razão)
	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort, // ex: 8082
		Handler: api.Router(),
	}

	// Servidor de métricas e health check
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.PingContext(ctx); err != nil {
			http.Error(w, "pg", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux} // ex: 9098

	// Inicia servidor de métricas/health em goroutine separada
	go func() {
		log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics srv", zap.Error(err))
		}
	}()

	// Inicia servidor principal da API
	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api srv", zap.Error(err))
	}
}
