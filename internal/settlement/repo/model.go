package repo

import "time"

// Status de uma transação on-chain. Criada PENDING antes de qualquer chamada
// de rede (um crash pós-broadcast continua auditável) e transiciona
// exatamente uma vez para estado terminal
const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// BlockchainTransaction é o modelo persistido (tabela blockchain_transactions).
// Attempts/NextPollAt tornam o polling de confirmação retomável após crash:
// o estado da máquina vive na própria linha
type BlockchainTransaction struct {
	ID          string
	Hash        string // vazio até a assinatura; chave natural depois
	UserID      string
	TxType      string // "prize" | "withdrawal"
	Status      string
	EnvelopeXDR string
	ErrorText   string
	Attempts    int
	NextPollAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
