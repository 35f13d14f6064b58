package events

// Evento publicado pelo matchmaking-worker quando dois jogadores são pareados.
type MatchCreated struct {
	MatchID   string `json:"match_id"`
	Pool      string `json:"pool"`
	Player1ID string `json:"player1_id"`
	Player2ID string `json:"player2_id"`
	Rating1   int    `json:"rating1"`
	Rating2   int    `json:"rating2"`
	TsUnixMs  int64  `json:"ts_unix_ms"`
}
