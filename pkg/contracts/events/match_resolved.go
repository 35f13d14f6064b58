package events

import "time"

// Evento terminal produzido pelo colaborador de score-reporting.
// WinnerID vazio + Forfeited=true indica W.O./desclassificação: o escrow
// da partida é confiscado em vez de devolvido.
type MatchResolved struct {
	MatchID   string    `json:"match_id"`
	WinnerID  string    `json:"winner_id,omitempty"`
	Forfeited bool      `json:"forfeited"`
	Reason    string    `json:"reason,omitempty"`
	Ts        time.Time `json:"ts"`
}
