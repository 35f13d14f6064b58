package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Postgres implementa a persistência de transações on-chain
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreatePending insere o registro ANTES de qualquer chamada de rede
func (p *Postgres) CreatePending(ctx context.Context, userID, txType string) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO blockchain_transactions (id, user_id, tx_type, status, next_poll_at)
		VALUES ($1,$2,$3,'PENDING',NOW())`,
		id, userID, txType,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetSubmitted grava hash e envelope assinado antes do submit à rede
func (p *Postgres) SetSubmitted(ctx context.Context, id, hash, envelopeXDR string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE blockchain_transactions
		SET hash=$1, envelope_xdr=$2, updated_at=NOW()
		WHERE id=$3 AND status='PENDING'`,
		hash, envelopeXDR, id)
	return err
}

// FindByHash detecta re-submissão: mesmo hash => já PENDING/terminal
func (p *Postgres) FindByHash(ctx context.Context, hash string) (*BlockchainTransaction, bool, error) {
	var bt BlockchainTransaction
	var h, env, errText sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, user_id, tx_type, status, envelope_xdr, error_text, attempts, next_poll_at, created_at, updated_at
		FROM blockchain_transactions WHERE hash=$1`, hash).
		Scan(&bt.ID, &h, &bt.UserID, &bt.TxType, &bt.Status, &env, &errText,
			&bt.Attempts, &bt.NextPollAt, &bt.CreatedAt, &bt.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	bt.Hash, bt.EnvelopeXDR, bt.ErrorText = h.String, env.String, errText.String
	return &bt, true, nil
}

// MarkSuccess aplica o estado terminal uma única vez (condicionado a PENDING)
func (p *Postgres) MarkSuccess(ctx context.Context, hash string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE blockchain_transactions SET status='SUCCESS', updated_at=NOW()
		WHERE hash=$1 AND status='PENDING'`, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailed aplica FAILED com o texto de erro, uma única vez
func (p *Postgres) MarkFailed(ctx context.Context, hash, errText string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE blockchain_transactions SET status='FAILED', error_text=$1, updated_at=NOW()
		WHERE hash=$2 AND status='PENDING'`, errText, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailedByID cobre falhas antes do hash existir (build/assinatura)
func (p *Postgres) MarkFailedByID(ctx context.Context, id, errText string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE blockchain_transactions SET status='FAILED', error_text=$1, updated_at=NOW()
		WHERE id=$2 AND status='PENDING'`, errText, id)
	return err
}

// DuePolling lista transações PENDING já submetidas cujo próximo poll venceu
func (p *Postgres) DuePolling(ctx context.Context, now time.Time, limit int) ([]BlockchainTransaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, hash, user_id, tx_type, status, attempts, next_poll_at
		FROM blockchain_transactions
		WHERE status='PENDING' AND hash IS NOT NULL AND next_poll_at <= $1
		ORDER BY next_poll_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockchainTransaction
	for rows.Next() {
		var bt BlockchainTransaction
		var h sql.NullString
		if err := rows.Scan(&bt.ID, &h, &bt.UserID, &bt.TxType, &bt.Status, &bt.Attempts, &bt.NextPollAt); err != nil {
			return nil, err
		}
		bt.Hash = h.String
		out = append(out, bt)
	}
	return out, rows.Err()
}

// Reschedule persiste o avanço da máquina de polling (attempt, próximo deadline)
func (p *Postgres) Reschedule(ctx context.Context, id string, attempts int, nextPollAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE blockchain_transactions SET attempts=$1, next_poll_at=$2, updated_at=NOW()
		WHERE id=$3 AND status='PENDING'`, attempts, nextPollAt, id)
	return err
}
