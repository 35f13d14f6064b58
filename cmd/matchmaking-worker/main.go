package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	mmprod "github.com/radieske/arena-settlement-core/internal/matchmaking/producer"
	"github.com/radieske/arena-settlement-core/internal/matchmaking/queue"
	mmrepo "github.com/radieske/arena-settlement-core/internal/matchmaking/repo"
	"github.com/radieske/arena-settlement-core/internal/matchmaking/worker"
	"github.com/radieske/arena-settlement-core/internal/shared/cache"
	"github.com/radieske/arena-settlement-core/internal/shared/config"
	"github.com/radieske/arena-settlement-core/internal/shared/db"
	"github.com/radieske/arena-settlement-core/internal/shared/kafka"
	"github.com/radieske/arena-settlement-core/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("matchmaking-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres (matches) e Redis (fila)
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

	// Kafka producer: publica match_created para os serviços de jogo
	createdWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchCreated)
	defer createdWriter.Close()

	// Métricas Prometheus do loop de pareamento
	paired := prometheus.NewCounter(prometheus.CounterOpts{Name: "mm_pairs_created_total", Help: "pares formados"})
	evicted := prometheus.NewCounter(prometheus.CounterOpts{Name: "mm_evictions_total", Help: "jogadores removidos por espera excedida"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mm_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(paired, evicted, errorsBy)

	w := &worker.Worker{
		Log:     log,
		Queue:   queue.NewRedis(redisClient),
		Matches: mmrepo.NewPostgres(pg),
		Publ:    mmprod.NewKafkaPublisher(createdWriter),

		Pools:       cfg.MatchPools,
		Tick:        cfg.MatchTick,
		ScanWindow:  cfg.MatchScanWindow,
		WaitCeiling: cfg.MatchWaitCeiling,

		RadiusBase:      int(cfg.RadiusBase),
		RadiusStep:      cfg.RadiusStep,
		RadiusIncrement: int(cfg.RadiusIncrement),

		OnPaired:  func() { paired.Inc() },
		OnEvicted: func() { evicted.Inc() },
		OnError:   func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
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
		addr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("metrics/health listening", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, mux)
	}()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("matchmaking-worker started", zap.Strings("pools", cfg.MatchPools), zap.Duration("tick", cfg.MatchTick))
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("worker stopped with error", zap.Error(err))
	}
	log.Info("matchmaking-worker stopped")
}
