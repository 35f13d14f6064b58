package repo

import "time"

// Estados do ciclo de vida de uma partida. Toda transição de estado é
// condicionada ao estado corrente (escrita condicional no banco)
const (
	MatchPending   = "PENDING"
	MatchActive    = "ACTIVE"
	MatchResolved  = "RESOLVED"
	MatchForfeited = "FORFEITED"
	MatchCancelled = "CANCELLED"
)

// Match é o modelo persistido no Postgres (tabela matches)
type Match struct {
	ID        string
	Pool      string
	Player1ID string
	Player2ID string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
