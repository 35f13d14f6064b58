package events

import "time"

// Payload publicado no canal Redis `wallet:balance:<userID>` após o commit
// de qualquer mutação de saldo (para UI de saldo ao vivo).
type BalanceChanged struct {
	UserID   string    `json:"user_id"`
	Currency string    `json:"currency"`
	Balance  int64     `json:"balance"`
	Escrow   int64     `json:"escrow"`
	Ts       time.Time `json:"ts"`
}
