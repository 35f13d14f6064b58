package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	lrepo "github.com/radieske/arena-settlement-core/internal/ledger/repo"
	mmrepo "github.com/radieske/arena-settlement-core/internal/matchmaking/repo"
)

type Matches interface {
	FindStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]mmrepo.Match, error)
	Transition(ctx context.Context, matchID, to string, from ...string) (bool, error)
}

type Ledger interface {
	SlashEscrow(ctx context.Context, matchID string) ([]lrepo.BalanceUpdate, error)
}

type Notifier interface {
	PublishBatch(ctx context.Context, ups []lrepo.BalanceUpdate) error
}

// Reaper varre partidas ACTIVE paradas além da janela e declara W.O.:
// transição condicional para FORFEITED seguida de confisco do escrow.
// A escrita condicional (`WHERE status='ACTIVE'`) torna a varredura segura
// contra uma resolução que chegue no meio do caminho
type Reaper struct {
	Log     *zap.Logger
	Matches Matches
	Ledger  Ledger
	Notif   Notifier

	Tick      time.Duration
	Window    time.Duration
	BatchSize int

	OnForfeited func() // métricas
	OnError     func()
}

func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.Log.Warn("sweep failed", zap.Error(err))
				if r.OnError != nil {
					r.OnError()
				}
			}
		}
	}
}

// Sweep executa uma passada completa; exportado para o teste chamar direto
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.Window)
	stale, err := r.Matches.FindStaleActive(ctx, cutoff, r.BatchSize)
	if err != nil {
		return err
	}

	for _, m := range stale {
		applied, err := r.Matches.Transition(ctx, m.ID, mmrepo.MatchForfeited, mmrepo.MatchActive)
		if err != nil {
			r.Log.Warn("forfeit transition failed", zap.String("matchId", m.ID), zap.Error(err))
			if r.OnError != nil {
				r.OnError()
			}
			continue
		}
		if !applied {
			continue // resolvida entre o SELECT e o UPDATE
		}

		updates, err := r.Ledger.SlashEscrow(ctx, m.ID)
		if err != nil {
			// a partida já saiu de ACTIVE, então a próxima varredura não
			// a revisita; escrow preso exige intervenção manual
			r.Log.Error("slash after forfeit failed", zap.String("matchId", m.ID), zap.Error(err))
			if r.OnError != nil {
				r.OnError()
			}
			continue
		}

		if len(updates) > 0 {
			if nerr := r.Notif.PublishBatch(ctx, updates); nerr != nil {
				r.Log.Warn("balance notify failed", zap.String("matchId", m.ID), zap.Error(nerr))
			}
		}

		r.Log.Info("match forfeited by timeout",
			zap.String("matchId", m.ID),
			zap.String("pool", m.Pool),
			zap.Time("lastUpdate", m.UpdatedAt),
		)
		if r.OnForfeited != nil {
			r.OnForfeited()
		}
	}
	return nil
}
