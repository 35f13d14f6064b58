package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/matchmaking/queue"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

// Queue define as operações da fila usadas pelo worker de pareamento
type Queue interface {
	Candidates(ctx context.Context, pool string, limit int64) ([]queue.Candidate, error)
	FindOpponent(ctx context.Context, pool string, rating, radius int, excludeID string) (string, int, error)
	RemovePair(ctx context.Context, pool, playerA, playerB string) error
	Leave(ctx context.Context, playerID string) error
}

// Matches define a persistência de partidas usada pelo worker
type Matches interface {
	CreatePending(ctx context.Context, pool, player1ID, player2ID string) (string, error)
}

// Publisher publica o evento match_created após o par ser criado
type Publisher interface {
	PublishMatchCreated(ctx context.Context, ev events.MatchCreated) error
}

// Worker roda o loop de pareamento: a cada tick, por pool, evicta entradas
// velhas e pareia candidatos expandindo a janela de rating com o tempo de
// espera. Tie-break: FIFO — o primeiro oponente encontrado em ordem
// ascendente da fila vence; não há preferência por rating mais próximo
type Worker struct {
	Log     *zap.Logger
	Queue   Queue
	Matches Matches
	Publ    Publisher

	Pools       []string
	Tick        time.Duration
	ScanWindow  int64         // janela limitada da cabeça do pool
	WaitCeiling time.Duration // espera máxima antes da evicção

	// Expansão de raio: base + (espera/step)*increment.
	// Monotônica no tempo de espera: ninguém estarva para sempre
	RadiusBase      int
	RadiusStep      time.Duration
	RadiusIncrement int

	OnPaired  func()       // métricas (counter++)
	OnEvicted func()       // métricas
	OnError   func(string) // métricas por fase
}

// Run inicia o loop principal; retorna quando o contexto é cancelado
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, pool := range w.Pools {
				if err := w.tickPool(ctx, pool); err != nil {
					// indisponibilidade da fila: tick vira no-op, tenta no próximo
					w.Log.Warn("pool tick failed", zap.String("pool", pool), zap.Error(err))
					if w.OnError != nil {
						w.OnError("tick")
					}
				}
			}
		}
	}
}

// radius calcula a janela de rating aceitável para um tempo de espera
func (w *Worker) radius(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	steps := int(wait / w.RadiusStep)
	return w.RadiusBase + steps*w.RadiusIncrement
}

// tickPool executa um tick de um pool: evicção de entradas velhas e, no
// máximo, um pareamento (reavalia no próximo tick para evitar corrida de
// pareamento duplo dentro da mesma janela)
func (w *Worker) tickPool(ctx context.Context, pool string) error {
	cands, err := w.Queue.Candidates(ctx, pool, w.ScanWindow)
	if err != nil {
		return err
	}

	now := time.Now()
	remaining := cands[:0]
	for _, c := range cands {
		if now.Sub(c.JoinedAt) > w.WaitCeiling {
			if err := w.Queue.Leave(ctx, c.PlayerID); err != nil && !errors.Is(err, queue.ErrNotQueued) {
				w.Log.Warn("stale eviction failed", zap.String("playerId", c.PlayerID), zap.Error(err))
				if w.OnError != nil {
					w.OnError("evict")
				}
				continue
			}
			w.Log.Info("stale entry evicted",
				zap.String("pool", pool),
				zap.String("playerId", c.PlayerID),
				zap.Duration("waited", now.Sub(c.JoinedAt)),
			)
			if w.OnEvicted != nil {
				w.OnEvicted()
			}
			continue
		}
		remaining = append(remaining, c)
	}

	for _, c := range remaining {
		radius := w.radius(now.Sub(c.JoinedAt))
		oppID, oppRating, err := w.Queue.FindOpponent(ctx, pool, c.Rating, radius, c.PlayerID)
		if err != nil {
			return err
		}
		if oppID == "" {
			continue
		}

		// remoção condicional: se um tick concorrente levou um dos lados,
		// nenhuma partida é criada e o pool reavalia no próximo intervalo
		if err := w.Queue.RemovePair(ctx, pool, c.PlayerID, oppID); err != nil {
			if errors.Is(err, queue.ErrCandidateGone) {
				return nil
			}
			return err
		}

		matchID, err := w.Matches.CreatePending(ctx, pool, c.PlayerID, oppID)
		if err != nil {
			// par já saiu da fila; a partida não criada é recuperada pelos
			// próprios jogadores re-enfileirando. Registrado para auditoria
			w.Log.Error("match create failed after pair removal",
				zap.String("pool", pool),
				zap.String("player1", c.PlayerID),
				zap.String("player2", oppID),
				zap.Error(err),
			)
			if w.OnError != nil {
				w.OnError("persist")
			}
			return err
		}

		w.Log.Info("players paired",
			zap.String("pool", pool),
			zap.String("matchId", matchID),
			zap.String("player1", c.PlayerID),
			zap.String("player2", oppID),
			zap.Int("radius", radius),
		)

		if err := w.Publ.PublishMatchCreated(ctx, events.MatchCreated{
			MatchID:   matchID,
			Pool:      pool,
			Player1ID: c.PlayerID,
			Player2ID: oppID,
			Rating1:   c.Rating,
			Rating2:   oppRating,
			TsUnixMs:  time.Now().UnixMilli(),
		}); err != nil {
			w.Log.Warn("match_created publish failed", zap.String("matchId", matchID), zap.Error(err))
			if w.OnError != nil {
				w.OnError("publish")
			}
		}

		if w.OnPaired != nil {
			w.OnPaired()
		}
		return nil // um pareamento por pool por tick
	}

	return nil
}
