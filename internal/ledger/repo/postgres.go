package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres implementa as operações do livro-razão em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrEscrowExists        = errors.New("escrow already exists for match/user")
	ErrUnknownCurrency     = errors.New("unknown currency")
)

// BalanceUpdate carrega o saldo pós-commit de um usuário, usado pelo chamador
// para publicar a notificação de saldo (uma por usuário, mesmo com vários escrows)
type BalanceUpdate struct {
	UserID   string
	Currency Currency
	Balance  int64
	Escrow   int64
}

func validCurrency(c Currency) bool {
	for _, cur := range Currencies {
		if cur == c {
			return true
		}
	}
	return false
}

// GetOrCreateWallet retorna a carteira do usuário, criando-a (com os pares
// balance/escrow zerados de cada moeda) se não existir.
// Usa transação para garantir atomicidade
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (*Wallet, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w := &Wallet{UserID: userID, Funds: make(map[Currency]Funds)}
	err = tx.QueryRowContext(ctx,
		`SELECT id, stellar_account, stellar_seed_enc FROM wallets WHERE user_id=$1`,
		userID).Scan(&w.ID, &w.StellarAccount, &w.StellarSeedEnc)
	if err == sql.ErrNoRows {
		w.ID = uuid.New().String()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, stellar_account, stellar_seed_enc) VALUES($1,$2,'','')`,
			w.ID, userID); err != nil {
			return nil, err
		}
		for _, cur := range Currencies {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO wallet_funds(wallet_id, currency, balance, escrow) VALUES($1,$2,0,0)`,
				w.ID, cur); err != nil {
				return nil, err
			}
			w.Funds[cur] = Funds{}
		}
	} else if err != nil {
		return nil, err
	} else {
		if w.Funds, err = readFunds(ctx, tx, w.ID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return w, nil
}

func readFunds(ctx context.Context, tx *sql.Tx, walletID string) (map[Currency]Funds, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT currency, balance, escrow FROM wallet_funds WHERE wallet_id=$1`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	funds := make(map[Currency]Funds)
	for rows.Next() {
		var cur Currency
		var f Funds
		if err := rows.Scan(&cur, &f.Balance, &f.Escrow); err != nil {
			return nil, err
		}
		funds[cur] = f
	}
	return funds, rows.Err()
}

// LinkStellarAccount associa a conta Stellar custodial e a seed cifrada
// (vault) à carteira do usuário
func (p *Postgres) LinkStellarAccount(ctx context.Context, userID, account, seedEnc string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE wallets SET stellar_account=$1, stellar_seed_enc=$2, updated_at=NOW() WHERE user_id=$3`,
		account, seedEnc, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// StellarIdentity retorna a conta Stellar e a seed cifrada de um usuário,
// usadas pelo settlement-worker na hora de assinar
func (p *Postgres) StellarIdentity(ctx context.Context, userID string) (account, seedEnc string, err error) {
	err = p.db.QueryRowContext(ctx,
		`SELECT stellar_account, stellar_seed_enc FROM wallets WHERE user_id=$1`,
		userID).Scan(&account, &seedEnc)
	if err == sql.ErrNoRows {
		return "", "", ErrWalletNotFound
	}
	return account, seedEnc, err
}

// Deposit credita saldo e registra CREDIT no livro-razão.
// Garante lock pessimista na linha de fundos da moeda
func (p *Postgres) Deposit(ctx context.Context, userID string, cur Currency, amount int64, reference string) (*BalanceUpdate, error) {
	if !validCurrency(cur) {
		return nil, ErrUnknownCurrency
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	walletID, f, err := lockFundsRow(ctx, tx, userID, cur)
	if err != nil {
		return nil, err
	}
	nf := f.Credit(amount)

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallet_funds SET balance = balance + $1 WHERE wallet_id=$2 AND currency=$3`,
		amount, walletID, cur); err != nil {
		return nil, err
	}
	if err = insertLedger(ctx, tx, walletID, cur, TxCredit, amount, "", "deposit:"+reference); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &BalanceUpdate{UserID: userID, Currency: cur, Balance: nf.Balance, Escrow: nf.Escrow}, nil
}

// Withdraw debita saldo disponível e registra DEBIT no livro-razão
func (p *Postgres) Withdraw(ctx context.Context, userID string, cur Currency, amount int64, reference string) (*BalanceUpdate, error) {
	if !validCurrency(cur) {
		return nil, ErrUnknownCurrency
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	walletID, f, err := lockFundsRow(ctx, tx, userID, cur)
	if err != nil {
		return nil, err
	}
	nf, err := f.Debit(amount)
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallet_funds SET balance = balance - $1 WHERE wallet_id=$2 AND currency=$3`,
		amount, walletID, cur); err != nil {
		return nil, err
	}
	if err = insertLedger(ctx, tx, walletID, cur, TxDebit, amount, "", "withdraw:"+reference); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &BalanceUpdate{UserID: userID, Currency: cur, Balance: nf.Balance, Escrow: nf.Escrow}, nil
}

// LockFunds move saldo disponível para escrow contra uma partida:
// balance-, escrow+, registro Escrow{LOCKED} e lançamento LOCK, tudo na
// mesma transação. A unique (match_id, user_id) em escrows impede
// double-lock reentrante para o mesmo par
func (p *Postgres) LockFunds(ctx context.Context, userID string, cur Currency, amount int64, matchID string) (*BalanceUpdate, error) {
	if !validCurrency(cur) {
		return nil, ErrUnknownCurrency
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	walletID, f, err := lockFundsRow(ctx, tx, userID, cur)
	if err != nil {
		return nil, err
	}
	nf, err := f.Lock(amount)
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallet_funds SET balance = balance - $1, escrow = escrow + $1 WHERE wallet_id=$2 AND currency=$3`,
		amount, walletID, cur); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO escrows(id, match_id, user_id, currency, amount, status) VALUES($1,$2,$3,$4,$5,'LOCKED')`,
		uuid.New().String(), matchID, userID, cur, amount); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return nil, ErrEscrowExists
		}
		return nil, err
	}

	if err = insertLedger(ctx, tx, walletID, cur, TxLock, amount, matchID, ""); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &BalanceUpdate{UserID: userID, Currency: cur, Balance: nf.Balance, Escrow: nf.Escrow}, nil
}

// ReleaseEscrow devolve ao saldo todos os escrows LOCKED da partida.
// Idempotente no nível da linha: só linhas LOCKED são afetadas; cada escrow
// é resolvido em uma transação própria (escopo mínimo de lock)
func (p *Postgres) ReleaseEscrow(ctx context.Context, matchID string) ([]BalanceUpdate, error) {
	return p.resolveEscrows(ctx, matchID, true)
}

// SlashEscrow confisca todos os escrows LOCKED da partida: o escrow é
// decrementado sem crédito de volta (fundos perdidos), lançamento SLASH
func (p *Postgres) SlashEscrow(ctx context.Context, matchID string) ([]BalanceUpdate, error) {
	return p.resolveEscrows(ctx, matchID, false)
}

// MatchEscrows lista todos os escrows de uma partida, em qualquer status.
// Usado pelo resolvedor para calcular o prêmio mesmo em reprocessamentos,
// quando as linhas já saíram de LOCKED
func (p *Postgres) MatchEscrows(ctx context.Context, matchID string) ([]Escrow, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, currency, amount, status FROM escrows WHERE match_id=$1`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escrows []Escrow
	for rows.Next() {
		var e Escrow
		if err := rows.Scan(&e.ID, &e.UserID, &e.Currency, &e.Amount, &e.Status); err != nil {
			return nil, err
		}
		escrows = append(escrows, e)
	}
	return escrows, rows.Err()
}

func (p *Postgres) resolveEscrows(ctx context.Context, matchID string, release bool) ([]BalanceUpdate, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, currency, amount FROM escrows WHERE match_id=$1 AND status='LOCKED'`, matchID)
	if err != nil {
		return nil, err
	}
	var escrows []Escrow
	for rows.Next() {
		var e Escrow
		if err := rows.Scan(&e.ID, &e.UserID, &e.Currency, &e.Amount); err != nil {
			rows.Close()
			return nil, err
		}
		escrows = append(escrows, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var updates []BalanceUpdate
	for _, e := range escrows {
		up, err := p.resolveOne(ctx, matchID, e, release)
		if err != nil {
			return updates, err
		}
		if up != nil {
			updates = append(updates, *up)
		}
	}
	return updates, nil
}

// resolveOne fecha um único escrow em uma transação. O UPDATE do escrow é
// condicionado a status='LOCKED': uma corrida com outro resolvedor faz esta
// chamada virar no-op em vez de pagar duas vezes
func (p *Postgres) resolveOne(ctx context.Context, matchID string, e Escrow, release bool) (*BalanceUpdate, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	newStatus := EscrowSlashed
	if release {
		newStatus = EscrowReleased
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE escrows SET status=$1, released_at=NOW() WHERE id=$2 AND status='LOCKED'`,
		newStatus, e.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil // já terminal, nada a fazer
	}

	walletID, f, err := lockFundsRow(ctx, tx, e.UserID, e.Currency)
	if err != nil {
		return nil, err
	}

	if release {
		if _, err = tx.ExecContext(ctx,
			`UPDATE wallet_funds SET balance = balance + $1, escrow = escrow - $1 WHERE wallet_id=$2 AND currency=$3`,
			e.Amount, walletID, e.Currency); err != nil {
			return nil, err
		}
		if err = insertLedger(ctx, tx, walletID, e.Currency, TxRelease, e.Amount, matchID, ""); err != nil {
			return nil, err
		}
		f = f.Release(e.Amount)
	} else {
		if _, err = tx.ExecContext(ctx,
			`UPDATE wallet_funds SET escrow = escrow - $1 WHERE wallet_id=$2 AND currency=$3`,
			e.Amount, walletID, e.Currency); err != nil {
			return nil, err
		}
		if err = insertLedger(ctx, tx, walletID, e.Currency, TxSlash, e.Amount, matchID, ""); err != nil {
			return nil, err
		}
		f = f.Slash(e.Amount)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &BalanceUpdate{UserID: e.UserID, Currency: e.Currency, Balance: f.Balance, Escrow: f.Escrow}, nil
}

// lockFundsRow trava a linha (wallet, currency) com FOR UPDATE e devolve o
// estado corrente dos fundos
func lockFundsRow(ctx context.Context, tx *sql.Tx, userID string, cur Currency) (string, Funds, error) {
	var walletID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM wallets WHERE user_id=$1`, userID).Scan(&walletID); err != nil {
		if err == sql.ErrNoRows {
			return "", Funds{}, ErrWalletNotFound
		}
		return "", Funds{}, err
	}
	var f Funds
	if err := tx.QueryRowContext(ctx,
		`SELECT balance, escrow FROM wallet_funds WHERE wallet_id=$1 AND currency=$2 FOR UPDATE`,
		walletID, cur).Scan(&f.Balance, &f.Escrow); err != nil {
		if err == sql.ErrNoRows {
			return "", Funds{}, ErrWalletNotFound
		}
		return "", Funds{}, err
	}
	return walletID, f, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, walletID string, cur Currency, txType string, amount int64, matchID, reference string) error {
	var match any
	if matchID != "" {
		match = matchID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions(id, wallet_id, currency, tx_type, amount, status, match_id, reference)
		VALUES($1,$2,$3,$4,$5,'COMPLETED',$6,$7)`,
		uuid.New().String(), walletID, cur, txType, amount, match, reference)
	return err
}
