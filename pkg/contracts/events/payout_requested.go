package events

// Tipos de pagamento on-chain. O prêmio sai da conta tesouraria do sistema
// para a conta do vencedor; o saque sai da conta custodial do usuário para
// um endereço externo informado por ele.
const (
	PayoutTypePrize      = "prize"
	PayoutTypeWithdrawal = "withdrawal"
)

// Pedido de pagamento on-chain emitido pela resolução de uma partida (prêmio)
// ou por um saque da carteira. O settlement-worker escolhe a conta de origem
// e a chave de assinatura pelo TxType; Sponsored=true embrulha a transação em
// fee-bump pago pela conta de fees do sistema.
type PayoutRequested struct {
	RequestID     string `json:"request_id"`
	UserID        string `json:"user_id"` // beneficiário (vencedor ou sacador)
	MatchID       string `json:"match_id,omitempty"`
	Destination   string `json:"destination"`
	AmountStroops int64  `json:"amount_stroops"`
	TxType        string `json:"tx_type"` // PayoutTypePrize | PayoutTypeWithdrawal
	Sponsored     bool   `json:"sponsored"`
	TsUnixMs      int64  `json:"ts_unix_ms"`
}
