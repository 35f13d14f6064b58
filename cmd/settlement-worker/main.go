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
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"go.uber.org/zap"

	lrepo "github.com/radieske/arena-settlement-core/internal/ledger/repo"
	srepo "github.com/radieske/arena-settlement-core/internal/settlement/repo"
	"github.com/radieske/arena-settlement-core/internal/settlement/service"
	"github.com/radieske/arena-settlement-core/internal/shared/config"
	"github.com/radieske/arena-settlement-core/internal/shared/db"
	"github.com/radieske/arena-settlement-core/internal/shared/kafka"
	"github.com/radieske/arena-settlement-core/internal/shared/logger"
	"github.com/radieske/arena-settlement-core/internal/vault"
	ev "github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("settlement-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// O cofre de chaves é obrigatório: sem segredo mestre não há assinatura
	v, err := vault.New(cfg.VaultMasterKey)
	if err != nil {
		log.Fatal("vault init", zap.Error(err))
	}

	// Conta patrocinadora de fees (fee-bump); opcional
	var sponsorKP *keypair.Full
	if cfg.FeeSponsorSeed != "" {
		sponsorKP, err = keypair.ParseFull(cfg.FeeSponsorSeed)
		if err != nil {
			log.Fatal("fee sponsor seed parse", zap.Error(vault.ScrubErr(err)))
		}
	}

	// Conta tesouraria de onde saem os prêmios; sem ela, prêmios falham
	// com SigningFailed e param na DLQ
	var treasuryKP *keypair.Full
	if cfg.TreasurySeed != "" {
		treasuryKP, err = keypair.ParseFull(cfg.TreasurySeed)
		if err != nil {
			log.Fatal("treasury seed parse", zap.Error(vault.ScrubErr(err)))
		}
	}

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	horizon := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}

	// Kafka consumer: pedidos de pagamento emitidos pela resolução de escrow
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  strings.Split(cfg.KafkaBrokers, ","),
		GroupID:  "settlement",
		Topic:    cfg.TopicPayoutRequested,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicPayoutRequestedDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutRequestedDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus da liquidação
	submitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_submitted_total", Help: "transações submetidas à rede"})
	failedBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_failures_total", Help: "falhas por classe de rejeição"}, []string{"code"})
	dlqSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_dlq_messages_total", Help: "pedidos enviados para a DLQ"})
	prometheus.MustRegister(submitted, failedBy, dlqSent)

	svc := &service.Service{
		Log:        log,
		Repo:       srepo.NewPostgres(pg),
		Ledger:     lrepo.NewPostgres(pg),
		Vault:      v,
		Horizon:    horizon,
		Passphrase: cfg.NetworkPassphrase,
		TreasuryKP: treasuryKP,
		SponsorKP:  sponsorKP,
		BaseFee:    cfg.BaseFeeStroops,

		OnSubmitted: func() { submitted.Inc() },
		OnRejected:  func(code string) { failedBy.WithLabelValues(code).Inc() },
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

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicPayoutRequested),
		zap.String("horizon", cfg.HorizonURL),
		zap.Bool("sponsored", sponsorKP != nil),
		zap.Bool("treasury", treasuryKP != nil),
	)

	// Loop principal: consome payout_requested e submete à rede Stellar
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("settlement-worker stopped")
				return
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var req ev.PayoutRequested
		if jerr := json.Unmarshal(msg.Value, &req); jerr != nil {
			log.Error("unmarshal payout_requested", zap.Error(jerr))
			continue
		}

		hash, err := svc.Submit(ctx, service.SubmitRequest{
			UserID:        req.UserID,
			Destination:   req.Destination,
			AmountStroops: req.AmountStroops,
			TxType:        req.TxType,
			Sponsored:     req.Sponsored,
		})
		if err != nil {
			log.Error("settle payout",
				zap.String("requestId", req.RequestID),
				zap.String("userId", req.UserID),
				zap.Error(err),
			)
			if dlqWriter != nil {
				if derr := kafka.WriteJSON(ctx, dlqWriter, req.RequestID, msg.Value); derr != nil {
					log.Error("dlq publish", zap.Error(derr))
				} else {
					dlqSent.Inc()
				}
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		log.Info("payout submitted", zap.String("requestId", req.RequestID), zap.String("hash", hash))
	}
}
