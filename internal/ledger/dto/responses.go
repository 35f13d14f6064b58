package dto

type FundsView struct {
	Balance int64 `json:"balance"`
	Escrow  int64 `json:"escrow"`
}

type WalletResponse struct {
	UserID   string               `json:"userId"`
	WalletID string               `json:"walletId"`
	Funds    map[string]FundsView `json:"funds"`
}

type BalanceResponse struct {
	UserID   string `json:"userId"`
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
	Escrow   int64  `json:"escrow"`
}

type ResolveEscrowResponse struct {
	MatchID  string `json:"matchId"`
	Status   string `json:"status"` // "RELEASED" | "SLASHED"
	Affected int    `json:"affected"`
}

type QueueResponse struct {
	PlayerID string `json:"playerId"`
	Pool     string `json:"pool,omitempty"`
	Status   string `json:"status"` // "QUEUED" | "LEFT"
}
