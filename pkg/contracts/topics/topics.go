package topics

const (
	// Matchmaking
	MatchCreated  = "match_created"
	MatchResolved = "match_resolved"

	// Liquidação on-chain
	PayoutRequested = "payout_requested"
	PayoutSettled   = "payout_settled"

	// DLQs
	MatchResolvedDLQ   = "match_resolved_dlq"
	PayoutRequestedDLQ = "payout_requested_dlq"
)
