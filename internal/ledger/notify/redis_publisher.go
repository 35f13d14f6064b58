package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/arena-settlement-core/internal/ledger/repo"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

// BalanceNotifier publica mudanças de saldo em canais Redis por usuário,
// consumidos pela UI de saldo ao vivo
type BalanceNotifier struct {
	r *redis.Client
}

func NewBalanceNotifier(r *redis.Client) *BalanceNotifier {
	return &BalanceNotifier{r: r}
}

func channel(userID string) string { return "wallet:balance:" + userID }

// Publish envia a notificação de um único usuário (pós-commit)
func (n *BalanceNotifier) Publish(ctx context.Context, up repo.BalanceUpdate) error {
	b, err := json.Marshal(events.BalanceChanged{
		UserID:   up.UserID,
		Currency: string(up.Currency),
		Balance:  up.Balance,
		Escrow:   up.Escrow,
		Ts:       time.Now(),
	})
	if err != nil {
		return err
	}
	return n.r.Publish(ctx, channel(up.UserID), b).Err()
}

// PublishBatch notifica cada usuário no máximo uma vez por (usuário, moeda),
// mesmo quando vários escrows da mesma partida se resolvem juntos
func (n *BalanceNotifier) PublishBatch(ctx context.Context, ups []repo.BalanceUpdate) error {
	type key struct {
		user string
		cur  repo.Currency
	}
	seen := make(map[key]bool, len(ups))
	var firstErr error
	// percorre de trás pra frente: a última atualização de cada par é a vigente
	for i := len(ups) - 1; i >= 0; i-- {
		k := key{ups[i].UserID, ups[i].Currency}
		if seen[k] {
			continue
		}
		seen[k] = true
		if err := n.Publish(ctx, ups[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
