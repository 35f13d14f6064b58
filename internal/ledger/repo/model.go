package repo

import "time"

// Currency identifica uma moeda suportada pela carteira.
// Valores sempre em menor unidade: stroops (XLM), kobo (NGN), unidades (ARENAX).
type Currency string

const (
	CurrencyXLM    Currency = "XLM"
	CurrencyNGN    Currency = "NGN"
	CurrencyArenaX Currency = "ARENAX"
)

// Currencies é o conjunto fixo de moedas de cada carteira.
var Currencies = []Currency{CurrencyXLM, CurrencyNGN, CurrencyArenaX}

// Funds é o par (saldo disponível, saldo em escrow) de uma moeda.
type Funds struct {
	Balance int64 `json:"balance"`
	Escrow  int64 `json:"escrow"`
}

// Wallet é o modelo persistido no Postgres (tabela wallets + wallet_funds).
type Wallet struct {
	ID             string
	UserID         string
	StellarAccount string
	StellarSeedEnc string // seed custodial cifrada pelo vault (AES-GCM)
	Funds          map[Currency]Funds
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tipos de lançamento no livro-razão (wallet_transactions, append-only).
const (
	TxCredit  = "CREDIT"
	TxDebit   = "DEBIT"
	TxLock    = "LOCK"
	TxRelease = "RELEASE"
	TxSlash   = "SLASH"
)

// WalletTransaction é um lançamento append-only do livro-razão.
type WalletTransaction struct {
	ID        string
	WalletID  string
	Currency  Currency
	TxType    string
	Amount    int64 // sempre positivo
	Status    string
	MatchID   string
	Reference string
	CreatedAt time.Time
}

// Status de um registro de escrow.
const (
	EscrowLocked   = "LOCKED"
	EscrowReleased = "RELEASED"
	EscrowSlashed  = "SLASHED"
)

// Escrow é o registro de fundos bloqueados contra uma partida.
// Terminal após RELEASED ou SLASHED; nunca volta a LOCKED.
type Escrow struct {
	ID         string
	MatchID    string
	UserID     string
	Currency   Currency
	Amount     int64
	Status     string
	CreatedAt  time.Time
	ReleasedAt *time.Time
}
