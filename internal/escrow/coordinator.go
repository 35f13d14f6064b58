package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/ledger/repo"
	mmrepo "github.com/radieske/arena-settlement-core/internal/matchmaking/repo"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

// Ledger é o subconjunto do repositório de carteiras usado na resolução
type Ledger interface {
	ReleaseEscrow(ctx context.Context, matchID string) ([]repo.BalanceUpdate, error)
	SlashEscrow(ctx context.Context, matchID string) ([]repo.BalanceUpdate, error)
	MatchEscrows(ctx context.Context, matchID string) ([]repo.Escrow, error)
	StellarIdentity(ctx context.Context, userID string) (account, seedEnc string, err error)
}

// Matches controla a transição de estado da partida
type Matches interface {
	Transition(ctx context.Context, matchID, to string, from ...string) (bool, error)
}

// Notifier publica mudanças de saldo pós-commit
type Notifier interface {
	PublishBatch(ctx context.Context, ups []repo.BalanceUpdate) error
}

// Publisher emite o pedido de pagamento on-chain do vencedor
type Publisher interface {
	PublishPayoutRequested(ctx context.Context, ev events.PayoutRequested) error
}

// Coordinator fecha o ciclo financeiro de uma partida a partir do evento
// match_resolved: devolve ou confisca o escrow, move a partida para o
// estado terminal e, havendo vencedor com stake em XLM e conta Stellar
// vinculada, pede o pagamento do prêmio on-chain.
//
// Ordem importa: o escrow é resolvido antes da transição da partida. Se o
// processo cair no meio, a reentrega do evento encontra as linhas de escrow
// já terminais (no-op) e completa a transição; o pagamento só é emitido
// quando a transição desta entrega foi a vencedora, então não há prêmio
// duplicado
type Coordinator struct {
	Log     *zap.Logger
	Ledger  Ledger
	Matches Matches
	Notif   Notifier
	Publ    Publisher

	OnResolved func(outcome string) // métricas: "released" | "slashed"
	OnPayout   func()
}

// Resolve processa um evento terminal de partida. Erro devolvido indica
// falha transitória: o chamador deve reentregar (ou mandar para a DLQ)
func (c *Coordinator) Resolve(ctx context.Context, ev events.MatchResolved) error {
	if ev.MatchID == "" {
		return fmt.Errorf("match_resolved sem match_id")
	}

	outcome := "released"
	target := mmrepo.MatchResolved
	if ev.Forfeited {
		outcome = "slashed"
		target = mmrepo.MatchForfeited
	}

	var (
		updates []repo.BalanceUpdate
		err     error
	)
	if ev.Forfeited {
		updates, err = c.Ledger.SlashEscrow(ctx, ev.MatchID)
	} else {
		updates, err = c.Ledger.ReleaseEscrow(ctx, ev.MatchID)
	}
	if err != nil {
		return fmt.Errorf("resolve escrow: %w", err)
	}

	applied, err := c.Matches.Transition(ctx, ev.MatchID, target,
		mmrepo.MatchPending, mmrepo.MatchActive)
	if err != nil {
		return fmt.Errorf("match transition: %w", err)
	}
	if !applied {
		// outra entrega (ou o reaper) já fechou a partida
		c.Log.Info("match already terminal, skipping",
			zap.String("matchId", ev.MatchID),
			zap.String("outcome", outcome),
		)
		return nil
	}

	if len(updates) > 0 {
		if nerr := c.Notif.PublishBatch(ctx, updates); nerr != nil {
			// saldo já está consistente no banco; notificação é best-effort
			c.Log.Warn("balance notify failed", zap.String("matchId", ev.MatchID), zap.Error(nerr))
		}
	}

	c.Log.Info("match resolved",
		zap.String("matchId", ev.MatchID),
		zap.String("outcome", outcome),
		zap.String("winnerId", ev.WinnerID),
		zap.Int("escrowsTouched", len(updates)),
	)
	if c.OnResolved != nil {
		c.OnResolved(outcome)
	}

	if !ev.Forfeited && ev.WinnerID != "" {
		if perr := c.requestPrize(ctx, ev.MatchID, ev.WinnerID); perr != nil {
			// o escrow já foi devolvido; o prêmio pode ser reemitido manualmente
			c.Log.Error("prize payout request failed",
				zap.String("matchId", ev.MatchID),
				zap.String("winnerId", ev.WinnerID),
				zap.Error(perr),
			)
		}
	}
	return nil
}

// requestPrize calcula o pote em XLM (soma dos escrows da partida em
// qualquer status, para sobreviver a reprocessamentos) e publica o pedido
// de pagamento da tesouraria do sistema para a conta Stellar do vencedor
func (c *Coordinator) requestPrize(ctx context.Context, matchID, winnerID string) error {
	escrows, err := c.Ledger.MatchEscrows(ctx, matchID)
	if err != nil {
		return fmt.Errorf("load escrows: %w", err)
	}
	var pot int64
	for _, e := range escrows {
		if e.Currency == repo.CurrencyXLM {
			pot += e.Amount
		}
	}
	if pot == 0 {
		// partida sem stake on-chain: prêmio fica no ledger interno
		return nil
	}

	account, _, err := c.Ledger.StellarIdentity(ctx, winnerID)
	if err != nil {
		return fmt.Errorf("winner identity: %w", err)
	}

	req := events.PayoutRequested{
		RequestID:     uuid.NewString(),
		UserID:        winnerID,
		MatchID:       matchID,
		Destination:   account,
		AmountStroops: pot,
		TxType:        events.PayoutTypePrize,
		Sponsored:     true,
		TsUnixMs:      time.Now().UnixMilli(),
	}
	if err := c.Publ.PublishPayoutRequested(ctx, req); err != nil {
		return fmt.Errorf("publish payout_requested: %w", err)
	}
	if c.OnPayout != nil {
		c.OnPayout()
	}
	return nil
}
