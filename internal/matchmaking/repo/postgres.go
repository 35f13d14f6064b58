package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres implementa a persistência de partidas
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreatePending insere uma nova partida em estado PENDING
func (p *Postgres) CreatePending(ctx context.Context, pool, player1ID, player2ID string) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO matches (id, pool, player1_id, player2_id, status)
		VALUES ($1,$2,$3,$4,'PENDING')`,
		id, pool, player1ID, player2ID,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetStatus retorna o estado atual de uma partida
func (p *Postgres) GetStatus(ctx context.Context, matchID string) (string, error) {
	var s string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM matches WHERE id=$1`, matchID).Scan(&s)
	return s, err
}

// Transition muda o estado da partida somente se ela ainda estiver num dos
// estados de origem esperados. Retorna false quando outra escrita venceu a
// corrida (a partida já saiu do estado esperado)
func (p *Postgres) Transition(ctx context.Context, matchID, to string, from ...string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE matches SET status=$1, updated_at=NOW()
		WHERE id=$2 AND status = ANY($3)`,
		to, matchID, pq.Array(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FindStaleActive lista partidas ACTIVE sem atualização desde o cutoff,
// candidatas a W.O. pelo timeout-reaper
func (p *Postgres) FindStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]Match, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, pool, player1_id, player2_id, status, created_at, updated_at
		FROM matches
		WHERE status='ACTIVE' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Pool, &m.Player1ID, &m.Player2ID, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
