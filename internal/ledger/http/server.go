package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/ledger/dto"
	"github.com/radieske/arena-settlement-core/internal/ledger/repo"
	"github.com/radieske/arena-settlement-core/internal/matchmaking/queue"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

// Ledger define as operações do livro-razão usadas pelo handler HTTP
type Ledger interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*repo.Wallet, error)
	Deposit(ctx context.Context, userID string, cur repo.Currency, amount int64, reference string) (*repo.BalanceUpdate, error)
	Withdraw(ctx context.Context, userID string, cur repo.Currency, amount int64, reference string) (*repo.BalanceUpdate, error)
	LockFunds(ctx context.Context, userID string, cur repo.Currency, amount int64, matchID string) (*repo.BalanceUpdate, error)
	ReleaseEscrow(ctx context.Context, matchID string) ([]repo.BalanceUpdate, error)
	SlashEscrow(ctx context.Context, matchID string) ([]repo.BalanceUpdate, error)
}

// Queue define as operações de fila de matchmaking expostas pela API
type Queue interface {
	Join(ctx context.Context, playerID string, rating int, pool string) error
	Leave(ctx context.Context, playerID string) error
}

// Notifier publica mudanças de saldo após o commit
type Notifier interface {
	Publish(ctx context.Context, up repo.BalanceUpdate) error
	PublishBatch(ctx context.Context, ups []repo.BalanceUpdate) error
}

// Payouts emite o pedido de pagamento on-chain de um saque
type Payouts interface {
	PublishPayoutRequested(ctx context.Context, ev events.PayoutRequested) error
}

// Server expõe endpoints HTTP para operações de carteira, escrow e fila
type Server struct {
	log     *zap.Logger
	ledger  Ledger
	queue   Queue
	notif   Notifier
	payouts Payouts
}

func NewServer(log *zap.Logger, l Ledger, q Queue, n Notifier, p Payouts) *Server {
	return &Server{log: log, ledger: l, queue: q, notif: n, payouts: p}
}

// Router retorna o mux HTTP com as rotas da API do núcleo de liquidação.
// Autenticação fica no gateway; aqui o userId já chega autenticado
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wallet", s.getWallet)           // GET ?userId=...
	mux.HandleFunc("/wallet/deposit", s.deposit)     // POST
	mux.HandleFunc("/wallet/withdraw", s.withdraw)   // POST
	mux.HandleFunc("/escrow/lock", s.lockFunds)      // POST
	mux.HandleFunc("/escrow/release", s.release)     // POST
	mux.HandleFunc("/escrow/slash", s.slash)         // POST
	mux.HandleFunc("/queue/join", s.joinQueue)       // POST
	mux.HandleFunc("/queue/leave", s.leaveQueue)     // POST
	return mux
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	wallet, err := s.ledger.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	funds := make(map[string]dto.FundsView, len(wallet.Funds))
	for cur, f := range wallet.Funds {
		funds[string(cur)] = dto.FundsView{Balance: f.Balance, Escrow: f.Escrow}
	}
	writeJSON(w, dto.WalletResponse{UserID: userID, WalletID: wallet.ID, Funds: funds})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Currency == "" || req.Amount <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	up, err := s.ledger.Deposit(r.Context(), req.UserID, repo.Currency(req.Currency), req.Amount, req.Reference)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.notifyOne(r.Context(), *up)
	writeJSON(w, dto.BalanceResponse{UserID: up.UserID, Currency: string(up.Currency), Balance: up.Balance, Escrow: up.Escrow})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Currency == "" || req.Amount <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Destination != "" && repo.Currency(req.Currency) != repo.CurrencyXLM {
		http.Error(w, "on-chain withdrawal requires XLM", http.StatusBadRequest)
		return
	}
	up, err := s.ledger.Withdraw(r.Context(), req.UserID, repo.Currency(req.Currency), req.Amount, req.Reference)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.notifyOne(r.Context(), *up)

	// com destino externo o débito já commitou; o pagamento on-chain segue
	// assíncrono pelo settlement-worker
	if req.Destination != "" {
		ev := events.PayoutRequested{
			RequestID:     uuid.NewString(),
			UserID:        req.UserID,
			Destination:   req.Destination,
			AmountStroops: req.Amount,
			TxType:        events.PayoutTypeWithdrawal,
			TsUnixMs:      time.Now().UnixMilli(),
		}
		if err := s.payouts.PublishPayoutRequested(r.Context(), ev); err != nil {
			// o saldo já saiu da carteira: sem o evento não há pagamento,
			// então o chamador precisa saber que o despacho falhou
			s.log.Error("withdrawal payout publish failed",
				zap.String("userId", req.UserID),
				zap.String("requestId", ev.RequestID),
				zap.Error(err),
			)
			http.Error(w, "withdrawal debited but payout dispatch failed", http.StatusBadGateway)
			return
		}
	}

	writeJSON(w, dto.BalanceResponse{UserID: up.UserID, Currency: string(up.Currency), Balance: up.Balance, Escrow: up.Escrow})
}

func (s *Server) lockFunds(w http.ResponseWriter, r *http.Request) {
	var req dto.LockFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Currency == "" || req.Amount <= 0 || req.MatchID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	up, err := s.ledger.LockFunds(r.Context(), req.UserID, repo.Currency(req.Currency), req.Amount, req.MatchID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.notifyOne(r.Context(), *up)
	writeJSON(w, dto.BalanceResponse{UserID: up.UserID, Currency: string(up.Currency), Balance: up.Balance, Escrow: up.Escrow})
}

func (s *Server) release(w http.ResponseWriter, r *http.Request) {
	s.resolveEscrow(w, r, true)
}

func (s *Server) slash(w http.ResponseWriter, r *http.Request) {
	s.resolveEscrow(w, r, false)
}

func (s *Server) resolveEscrow(w http.ResponseWriter, r *http.Request, release bool) {
	var req dto.ResolveEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.MatchID == "" {
		http.Error(w, "match_id required", http.StatusBadRequest)
		return
	}

	var ups []repo.BalanceUpdate
	var err error
	status := "SLASHED"
	if release {
		status = "RELEASED"
		ups, err = s.ledger.ReleaseEscrow(r.Context(), req.MatchID)
	} else {
		ups, err = s.ledger.SlashEscrow(r.Context(), req.MatchID)
	}
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	// notificação pós-commit, uma por usuário mesmo com vários escrows
	if err := s.notif.PublishBatch(r.Context(), ups); err != nil {
		s.log.Warn("balance notify failed", zap.String("matchId", req.MatchID), zap.Error(err))
	}

	writeJSON(w, dto.ResolveEscrowResponse{MatchID: req.MatchID, Status: status, Affected: len(ups)})
}

func (s *Server) joinQueue(w http.ResponseWriter, r *http.Request) {
	var req dto.JoinQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" || req.Pool == "" || req.Rating < 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.queue.Join(r.Context(), req.PlayerID, req.Rating, req.Pool); err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			http.Error(w, "already queued", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.QueueResponse{PlayerID: req.PlayerID, Pool: req.Pool, Status: "QUEUED"})
}

func (s *Server) leaveQueue(w http.ResponseWriter, r *http.Request) {
	var req dto.LeaveQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		http.Error(w, "playerId required", http.StatusBadRequest)
		return
	}
	if err := s.queue.Leave(r.Context(), req.PlayerID); err != nil {
		if errors.Is(err, queue.ErrNotQueued) {
			http.Error(w, "not queued", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.QueueResponse{PlayerID: req.PlayerID, Status: "LEFT"})
}

// notifyOne publica a mudança de saldo de uma operação simples; falha de
// notificação não falha a operação já commitada
func (s *Server) notifyOne(ctx context.Context, up repo.BalanceUpdate) {
	if err := s.notif.Publish(ctx, up); err != nil {
		s.log.Warn("balance notify failed", zap.String("userId", up.UserID), zap.Error(err))
	}
}

// writeLedgerError mapeia os erros tipados do livro-razão para status HTTP
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrWalletNotFound):
		http.Error(w, "wallet not found", http.StatusNotFound)
	case errors.Is(err, repo.ErrInsufficientBalance):
		http.Error(w, "insufficient balance", http.StatusConflict)
	case errors.Is(err, repo.ErrEscrowExists):
		http.Error(w, "escrow already locked for match/user", http.StatusConflict)
	case errors.Is(err, repo.ErrUnknownCurrency):
		http.Error(w, "unknown currency", http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
