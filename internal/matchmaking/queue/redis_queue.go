package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyQueued = errors.New("player already queued")
	ErrNotQueued     = errors.New("player not queued")
	// ErrCandidateGone indica que um tick concorrente já removeu um dos lados
	// do par; o chamador não cria partida e tenta de novo no próximo tick
	ErrCandidateGone = errors.New("candidate no longer queued")
)

// Candidate é um jogador na fila de um pool, lido na janela de pareamento
type Candidate struct {
	PlayerID string
	Rating   int
	JoinedAt time.Time
}

// Redis implementa a fila de matchmaking sobre Redis:
// - ZSET por pool com score = rating (consulta por faixa em O(log n))
// - hash de metadados por jogador (pool, rating, joined_at)
// - SET global de jogadores ativos (invariante: no máximo um pool por jogador)
type Redis struct {
	r *redis.Client
}

func NewRedis(r *redis.Client) *Redis { return &Redis{r: r} }

func poolKey(pool string) string     { return "mm:queue:" + pool }
func metaKey(playerID string) string { return "mm:player:" + playerID }

const activeKey = "mm:active"

// Join adiciona o jogador à fila do pool. A checagem de presença e as três
// mutações rodam sob WATCH da hash de metadados do jogador: dois joins
// concorrentes do mesmo id (mesmo em pools diferentes) fazem exatamente um
// EXEC vencer; o perdedor recebe ErrAlreadyQueued em vez de deixar um membro
// órfão em outro ZSET
func (q *Redis) Join(ctx context.Context, playerID string, rating int, pool string) error {
	mk := metaKey(playerID)

	err := q.r.Watch(ctx, func(tx *redis.Tx) error {
		active, err := tx.SIsMember(ctx, activeKey, playerID).Result()
		if err != nil {
			return err
		}
		if active {
			return ErrAlreadyQueued
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, poolKey(pool), redis.Z{Score: float64(rating), Member: playerID})
			pipe.HSet(ctx, mk, map[string]any{
				"pool":      pool,
				"rating":    rating,
				"joined_at": time.Now().UnixMilli(),
			})
			pipe.SAdd(ctx, activeKey, playerID)
			return nil
		})
		return err
	}, mk)

	if errors.Is(err, redis.TxFailedErr) {
		// outro join/leave do mesmo jogador venceu a corrida
		return ErrAlreadyQueued
	}
	return err
}

// Leave remove o jogador das três estruturas. O WATCH na hash de metadados
// cobre a corrida com um RemovePair (pareamento) ou outro leave concorrente:
// se o jogador já saiu entre a leitura do pool e o EXEC, nada é removido
func (q *Redis) Leave(ctx context.Context, playerID string) error {
	mk := metaKey(playerID)

	err := q.r.Watch(ctx, func(tx *redis.Tx) error {
		pool, err := tx.HGet(ctx, mk, "pool").Result()
		if err == redis.Nil {
			return ErrNotQueued
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, poolKey(pool), playerID)
			pipe.Del(ctx, mk)
			pipe.SRem(ctx, activeKey, playerID)
			return nil
		})
		return err
	}, mk)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrNotQueued
	}
	return err
}

// Candidates lê a janela limitada da cabeça do pool (ordem ascendente de
// rating) com os metadados de cada jogador. Janela limitada evita varredura
// O(n²) sob carga
func (q *Redis) Candidates(ctx context.Context, pool string, limit int64) ([]Candidate, error) {
	members, err := q.r.ZRangeWithScores(ctx, poolKey(pool), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(members))
	for _, m := range members {
		id, _ := m.Member.(string)
		joined, err := q.r.HGet(ctx, metaKey(id), "joined_at").Result()
		if err == redis.Nil {
			continue // meta já removida por um leave concorrente
		}
		if err != nil {
			return nil, err
		}
		ms, _ := strconv.ParseInt(joined, 10, 64)
		out = append(out, Candidate{
			PlayerID: id,
			Rating:   int(m.Score),
			JoinedAt: time.UnixMilli(ms),
		})
	}
	return out, nil
}

// FindOpponent procura qualquer outro jogador do pool com rating dentro de
// [rating-radius, rating+radius], excluindo o próprio candidato
func (q *Redis) FindOpponent(ctx context.Context, pool string, rating, radius int, excludeID string) (string, int, error) {
	members, err := q.r.ZRangeByScoreWithScores(ctx, poolKey(pool), &redis.ZRangeBy{
		Min:   strconv.Itoa(rating - radius),
		Max:   strconv.Itoa(rating + radius),
		Count: 10,
	}).Result()
	if err != nil {
		return "", 0, err
	}
	for _, m := range members {
		if id, _ := m.Member.(string); id != excludeID {
			return id, int(m.Score), nil
		}
	}
	return "", 0, nil
}

// RemovePair remove os dois lados de um par de forma condicional: se um tick
// concorrente já tirou qualquer um dos dois da fila, nada é removido e
// ErrCandidateGone é retornado (falha suave, sem partida criada)
func (q *Redis) RemovePair(ctx context.Context, pool, playerA, playerB string) error {
	pk := poolKey(pool)

	err := q.r.Watch(ctx, func(tx *redis.Tx) error {
		for _, id := range []string{playerA, playerB} {
			if _, err := tx.ZScore(ctx, pk, id).Result(); err == redis.Nil {
				return ErrCandidateGone
			} else if err != nil {
				return err
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, pk, playerA, playerB)
			pipe.Del(ctx, metaKey(playerA), metaKey(playerB))
			pipe.SRem(ctx, activeKey, playerA, playerB)
			return nil
		})
		return err
	}, pk)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrCandidateGone
	}
	return err
}
