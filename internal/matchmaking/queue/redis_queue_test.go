package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Redis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client), client
}

func TestJoinTwiceFailsAlreadyQueued(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Join(ctx, "p1", 1000, "solo"))
	assert.ErrorIs(t, q.Join(ctx, "p1", 1000, "solo"), ErrAlreadyQueued)
}

func TestJoinSecondPoolLeavesNoOrphan(t *testing.T) {
	q, r := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Join(ctx, "p1", 1000, "solo"))
	// o mesmo id tentando entrar em outro pool falha sem tocar o ZSET do duo
	require.ErrorIs(t, q.Join(ctx, "p1", 1000, "duo"), ErrAlreadyQueued)

	err := r.ZScore(ctx, poolKey("duo"), "p1").Err()
	assert.ErrorIs(t, err, redis.Nil)
	assert.Equal(t, "solo", r.HGet(ctx, metaKey("p1"), "pool").Val())
}

func TestJoinThenLeaveClearsAllStructures(t *testing.T) {
	q, r := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Join(ctx, "p1", 1000, "solo"))
	require.NoError(t, q.Leave(ctx, "p1"))

	assert.ErrorIs(t, r.ZScore(ctx, poolKey("solo"), "p1").Err(), redis.Nil)
	exists, err := r.Exists(ctx, metaKey("p1")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
	active, err := r.SIsMember(ctx, activeKey, "p1").Result()
	require.NoError(t, err)
	assert.False(t, active)

	// depois de sair o jogador pode entrar de novo, em qualquer pool
	assert.NoError(t, q.Join(ctx, "p1", 1000, "duo"))
}

func TestLeaveNotQueued(t *testing.T) {
	q, _ := newTestQueue(t)
	assert.ErrorIs(t, q.Leave(context.Background(), "ghost"), ErrNotQueued)
}

func TestCandidatesReturnsWindowInRatingOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Join(ctx, "p1", 1500, "solo"))
	require.NoError(t, q.Join(ctx, "p2", 900, "solo"))
	require.NoError(t, q.Join(ctx, "p3", 1200, "solo"))

	cands, err := q.Candidates(ctx, "solo", 2)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "p2", cands[0].PlayerID)
	assert.Equal(t, 900, cands[0].Rating)
	assert.Equal(t, "p3", cands[1].PlayerID)
	assert.WithinDuration(t, time.Now(), cands[0].JoinedAt, 5*time.Second)
}

func TestFindOpponentRespectsRadiusAndExcludesSelf(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Join(ctx, "p1", 1000, "solo"))
	require.NoError(t, q.Join(ctx, "p2", 1100, "solo"))

	// raio apertado: só o próprio candidato cai na faixa
	id, _, err := q.FindOpponent(ctx, "solo", 1000, 50, "p1")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, rating, err := q.FindOpponent(ctx, "solo", 1000, 100, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p2", id)
	assert.Equal(t, 1100, rating)
}

func TestRemovePairTakesBothSides(t *testing.T) {
	q, r := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Join(ctx, "p1", 1000, "solo"))
	require.NoError(t, q.Join(ctx, "p2", 1050, "solo"))

	require.NoError(t, q.RemovePair(ctx, "solo", "p1", "p2"))
	for _, id := range []string{"p1", "p2"} {
		active, err := r.SIsMember(ctx, activeKey, id).Result()
		require.NoError(t, err)
		assert.False(t, active)
	}
}

func TestRemovePairFailsSoftlyWhenSideGone(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Join(ctx, "p1", 1000, "solo"))
	require.NoError(t, q.Join(ctx, "p2", 1050, "solo"))
	require.NoError(t, q.Leave(ctx, "p2"))

	err := q.RemovePair(ctx, "solo", "p1", "p2")
	assert.ErrorIs(t, err, ErrCandidateGone)
	// o lado que ficou continua na fila
	left, err := q.Candidates(ctx, "solo", 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "p1", left[0].PlayerID)
}
