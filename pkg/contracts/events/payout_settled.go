package events

import "time"

// Evento emitido pelo confirmation-worker quando uma transação on-chain
// atinge estado terminal (SUCCESS ou FAILED).
type PayoutSettled struct {
	Hash     string    `json:"hash"`
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"` // "SUCCESS" | "FAILED"
	ErrorTxt string    `json:"error,omitempty"`
	Ts       time.Time `json:"ts"`
}
