package confirmation

import (
	"context"
	"fmt"
	"time"

	hProtocol "github.com/stellar/go/protocols/horizon"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/settlement/repo"
	"github.com/radieske/arena-settlement-core/internal/settlement/stellar"
	"github.com/radieske/arena-settlement-core/internal/vault"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

// Repo define a persistência consultada/atualizada pelo monitor
type Repo interface {
	DuePolling(ctx context.Context, now time.Time, limit int) ([]repo.BlockchainTransaction, error)
	MarkSuccess(ctx context.Context, hash string) (bool, error)
	MarkFailed(ctx context.Context, hash, errText string) (bool, error)
	Reschedule(ctx context.Context, id string, attempts int, nextPollAt time.Time) error
}

// Horizon define o subconjunto do cliente Horizon usado no polling
type Horizon interface {
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
}

// Publisher emite payout_settled quando a transação atinge estado terminal
type Publisher interface {
	PublishPayoutSettled(ctx context.Context, ev events.PayoutSettled) error
}

// Monitor acompanha a finalidade de transações submetidas. A máquina de
// estados (attempt, próximo deadline) vive na linha do banco: um restart do
// processo retoma o polling de onde parou. Backoff exponencial com teto de
// tentativas; ao atingir o teto a transação vira FAILED com razão de timeout
// — nunca fica PENDING para sempre
type Monitor struct {
	Log     *zap.Logger
	Repo    Repo
	Horizon Horizon
	Publ    Publisher // opcional

	Tick         time.Duration
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	BatchSize    int

	OnFinalized func(status string) // métricas
	OnError     func(string)        // métricas por fase
}

// Run inicia o loop de varredura; retorna quando o contexto é cancelado
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.pass(ctx); err != nil {
				m.Log.Warn("confirmation pass failed", zap.Error(err))
				if m.OnError != nil {
					m.OnError("pass")
				}
			}
		}
	}
}

func (m *Monitor) pass(ctx context.Context) error {
	due, err := m.Repo.DuePolling(ctx, time.Now(), m.BatchSize)
	if err != nil {
		return err
	}
	for _, bt := range due {
		if err := m.pollOne(ctx, bt); err != nil {
			m.Log.Warn("poll failed", zap.String("hash", bt.Hash), zap.Error(err))
			if m.OnError != nil {
				m.OnError("poll")
			}
		}
	}
	return nil
}

// Backoff devolve o atraso antes da tentativa seguinte: dobra a cada
// tentativa a partir do atraso inicial, com teto de MaxDelay
func (m *Monitor) Backoff(attempt int) time.Duration {
	d := m.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= m.MaxDelay {
			return m.MaxDelay
		}
	}
	return d
}

func (m *Monitor) pollOne(ctx context.Context, bt repo.BlockchainTransaction) error {
	if bt.Attempts >= m.MaxAttempts {
		reason := fmt.Sprintf("confirmation timeout after %d attempts", bt.Attempts)
		return m.finalize(ctx, bt, repo.StatusFailed, reason)
	}

	txd, err := m.Horizon.TransactionDetail(bt.Hash)
	switch {
	case err == nil && txd.Successful:
		return m.finalize(ctx, bt, repo.StatusSuccess, "")
	case err == nil:
		// falha explícita on-chain: preserva o detalhe devolvido pela rede
		return m.finalize(ctx, bt, repo.StatusFailed, "on-chain failure: "+txd.ResultXdr)
	case stellar.IsNotFound(err):
		// ainda não conhecida: continua o backoff
		return m.Repo.Reschedule(ctx, bt.ID, bt.Attempts+1, time.Now().Add(m.Backoff(bt.Attempts)))
	default:
		// falha de rede do próprio poll: conta como tentativa e reagenda
		m.Log.Warn("horizon poll error", zap.String("hash", bt.Hash), zap.Error(err))
		return m.Repo.Reschedule(ctx, bt.ID, bt.Attempts+1, time.Now().Add(m.Backoff(bt.Attempts)))
	}
}

// finalize aplica o estado terminal exatamente uma vez: o UPDATE é
// condicionado ao status corrente e um falso indica que outra escrita venceu
func (m *Monitor) finalize(ctx context.Context, bt repo.BlockchainTransaction, status, errText string) error {
	var applied bool
	var err error
	if status == repo.StatusSuccess {
		applied, err = m.Repo.MarkSuccess(ctx, bt.Hash)
	} else {
		applied, err = m.Repo.MarkFailed(ctx, bt.Hash, vault.Scrub(errText))
	}
	if err != nil {
		return err
	}
	if !applied {
		return nil // já terminal
	}

	m.Log.Info("transaction finalized",
		zap.String("hash", bt.Hash),
		zap.String("status", status),
		zap.Int("attempts", bt.Attempts),
	)
	if m.OnFinalized != nil {
		m.OnFinalized(status)
	}

	if m.Publ != nil {
		ev := events.PayoutSettled{
			Hash:     bt.Hash,
			UserID:   bt.UserID,
			Status:   status,
			ErrorTxt: errText,
			Ts:       time.Now(),
		}
		if perr := m.Publ.PublishPayoutSettled(ctx, ev); perr != nil {
			m.Log.Warn("payout_settled publish failed", zap.String("hash", bt.Hash), zap.Error(perr))
		}
	}
	return nil
}
