package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/escrow"
	eprod "github.com/radieske/arena-settlement-core/internal/escrow/producer"
	"github.com/radieske/arena-settlement-core/internal/ledger/notify"
	lrepo "github.com/radieske/arena-settlement-core/internal/ledger/repo"
	mmrepo "github.com/radieske/arena-settlement-core/internal/matchmaking/repo"
	"github.com/radieske/arena-settlement-core/internal/shared/cache"
	"github.com/radieske/arena-settlement-core/internal/shared/config"
	"github.com/radieske/arena-settlement-core/internal/shared/db"
	"github.com/radieske/arena-settlement-core/internal/shared/kafka"
	"github.com/radieske/arena-settlement-core/internal/shared/logger"
	ev "github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("escrow-resolution-worker", cfg.Env)
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

	// Kafka consumer: eventos terminais de partida
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  strings.Split(cfg.KafkaBrokers, ","),
		GroupID:  "escrow-resolution",
		Topic:    cfg.TopicMatchResolved,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	// Kafka producer: pedidos de pagamento on-chain do vencedor
	payoutWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutRequested)
	defer payoutWriter.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicMatchResolvedDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchResolvedDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus da resolução
	resolvedBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "escrow_resolutions_total", Help: "resoluções por desfecho"}, []string{"outcome"})
	payouts := prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_payout_requests_total", Help: "pedidos de prêmio on-chain"})
	dlqSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_dlq_messages_total", Help: "eventos enviados para a DLQ"})
	prometheus.MustRegister(resolvedBy, payouts, dlqSent)

	coord := &escrow.Coordinator{
		Log:     log,
		Ledger:  lrepo.NewPostgres(pg),
		Matches: mmrepo.NewPostgres(pg),
		Notif:   notify.NewBalanceNotifier(redisClient),
		Publ:    eprod.NewKafkaPublisher(payoutWriter),

		OnResolved: func(outcome string) { resolvedBy.WithLabelValues(outcome).Inc() },
		OnPayout:   func() { payouts.Inc() },
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
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		addr := ":" + cfg.MetricsPort
		log.Info("metrics/health listening", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, mux)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("escrow-resolution-worker started", zap.String("consume", cfg.TopicMatchResolved))

	// Loop principal: consome match_resolved e fecha o ciclo financeiro
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("escrow-resolution-worker stopped")
				return
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var resolved ev.MatchResolved
		if jerr := json.Unmarshal(msg.Value, &resolved); jerr != nil {
			log.Error("unmarshal match_resolved", zap.Error(jerr))
			continue
		}

		if err := coord.Resolve(ctx, resolved); err != nil {
			log.Error("resolve match", zap.String("matchId", resolved.MatchID), zap.Error(err))
			if dlqWriter != nil {
				if derr := kafka.WriteJSON(ctx, dlqWriter, resolved.MatchID, msg.Value); derr != nil {
					log.Error("dlq publish", zap.Error(derr))
				} else {
					dlqSent.Inc()
				}
			}
			// Backoff simples para evitar flood em caso de erro
			time.Sleep(500 * time.Millisecond)
		}
	}
}
