package dto

type DepositRequest struct {
	UserID    string `json:"userId"`
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"` // menor unidade da moeda
	Reference string `json:"reference,omitempty"`
}

type WithdrawRequest struct {
	UserID   string `json:"userId"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	// Conta Stellar externa; quando presente (só XLM), o débito dispara
	// um pagamento on-chain via settlement-worker
	Destination string `json:"destination,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

type LockFundsRequest struct {
	UserID   string `json:"userId"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	MatchID  string `json:"matchId"`
}

type ResolveEscrowRequest struct {
	MatchID string `json:"matchId"`
}

type JoinQueueRequest struct {
	PlayerID string `json:"playerId"`
	Rating   int    `json:"rating"`
	Pool     string `json:"pool"`
}

type LeaveQueueRequest struct {
	PlayerID string `json:"playerId"`
}
