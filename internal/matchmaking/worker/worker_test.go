package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/matchmaking/queue"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

type fakeQueue struct {
	cands      []queue.Candidate
	removeErr  error
	left       []string
	removed    [][2]string
	findCalled int
}

func (f *fakeQueue) Candidates(_ context.Context, _ string, limit int64) ([]queue.Candidate, error) {
	if int64(len(f.cands)) > limit {
		return f.cands[:limit], nil
	}
	return f.cands, nil
}

func (f *fakeQueue) FindOpponent(_ context.Context, _ string, rating, radius int, excludeID string) (string, int, error) {
	f.findCalled++
	for _, c := range f.cands {
		if c.PlayerID == excludeID {
			continue
		}
		if c.Rating >= rating-radius && c.Rating <= rating+radius {
			return c.PlayerID, c.Rating, nil
		}
	}
	return "", 0, nil
}

func (f *fakeQueue) RemovePair(_ context.Context, _ string, a, b string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, [2]string{a, b})
	return nil
}

func (f *fakeQueue) Leave(_ context.Context, playerID string) error {
	f.left = append(f.left, playerID)
	return nil
}

type fakeMatches struct {
	created [][2]string
}

func (f *fakeMatches) CreatePending(_ context.Context, _ string, p1, p2 string) (string, error) {
	f.created = append(f.created, [2]string{p1, p2})
	return "match-1", nil
}

type fakePublisher struct {
	published []events.MatchCreated
}

func (f *fakePublisher) PublishMatchCreated(_ context.Context, ev events.MatchCreated) error {
	f.published = append(f.published, ev)
	return nil
}

func newTestWorker(q *fakeQueue, m *fakeMatches, p *fakePublisher) *Worker {
	return &Worker{
		Log:     zap.NewNop(),
		Queue:   q,
		Matches: m,
		Publ:    p,

		Pools:       []string{"solo"},
		Tick:        time.Second,
		ScanWindow:  50,
		WaitCeiling: 10 * time.Minute,

		RadiusBase:      50,
		RadiusStep:      15 * time.Second,
		RadiusIncrement: 25,
	}
}

func TestRadiusExpandsWithWait(t *testing.T) {
	w := newTestWorker(&fakeQueue{}, &fakeMatches{}, &fakePublisher{})

	assert.Equal(t, 50, w.radius(0))
	assert.Equal(t, 50, w.radius(14*time.Second))
	assert.Equal(t, 75, w.radius(15*time.Second))
	assert.Equal(t, 100, w.radius(30*time.Second))
	assert.Equal(t, 50, w.radius(-time.Second))

	// monotônica: nunca encolhe com mais espera
	prev := 0
	for wait := time.Duration(0); wait <= 5*time.Minute; wait += time.Second {
		r := w.radius(wait)
		require.GreaterOrEqual(t, r, prev)
		prev = r
	}
}

func TestTickPoolPairsEqualRatings(t *testing.T) {
	q := &fakeQueue{cands: []queue.Candidate{
		{PlayerID: "p1", Rating: 1000, JoinedAt: time.Now().Add(-5 * time.Second)},
		{PlayerID: "p2", Rating: 1000, JoinedAt: time.Now().Add(-3 * time.Second)},
	}}
	m := &fakeMatches{}
	p := &fakePublisher{}
	w := newTestWorker(q, m, p)

	paired := 0
	w.OnPaired = func() { paired++ }

	require.NoError(t, w.tickPool(context.Background(), "solo"))

	require.Len(t, q.removed, 1)
	assert.Equal(t, [2]string{"p1", "p2"}, q.removed[0])
	require.Len(t, m.created, 1)
	require.Len(t, p.published, 1)
	assert.Equal(t, "match-1", p.published[0].MatchID)
	assert.Equal(t, 1000, p.published[0].Rating1)
	assert.Equal(t, 1000, p.published[0].Rating2)
	assert.Equal(t, 1, paired)
}

func TestTickPoolSkipsOutOfRadius(t *testing.T) {
	// 300 pontos de diferença com pouca espera: fora do raio inicial
	q := &fakeQueue{cands: []queue.Candidate{
		{PlayerID: "p1", Rating: 1000, JoinedAt: time.Now().Add(-time.Second)},
		{PlayerID: "p2", Rating: 1300, JoinedAt: time.Now().Add(-time.Second)},
	}}
	m := &fakeMatches{}
	w := newTestWorker(q, m, &fakePublisher{})

	require.NoError(t, w.tickPool(context.Background(), "solo"))
	assert.Empty(t, q.removed)
	assert.Empty(t, m.created)
}

func TestTickPoolEvictsStaleEntries(t *testing.T) {
	q := &fakeQueue{cands: []queue.Candidate{
		{PlayerID: "old", Rating: 1000, JoinedAt: time.Now().Add(-11 * time.Minute)},
		{PlayerID: "fresh", Rating: 1000, JoinedAt: time.Now().Add(-time.Second)},
	}}
	w := newTestWorker(q, &fakeMatches{}, &fakePublisher{})

	evicted := 0
	w.OnEvicted = func() { evicted++ }

	require.NoError(t, w.tickPool(context.Background(), "solo"))
	assert.Equal(t, []string{"old"}, q.left)
	assert.Equal(t, 1, evicted)
}

func TestTickPoolToleratesCandidateGone(t *testing.T) {
	q := &fakeQueue{
		cands: []queue.Candidate{
			{PlayerID: "p1", Rating: 1000, JoinedAt: time.Now()},
			{PlayerID: "p2", Rating: 1000, JoinedAt: time.Now()},
		},
		removeErr: queue.ErrCandidateGone,
	}
	m := &fakeMatches{}
	w := newTestWorker(q, m, &fakePublisher{})

	// corrida com outro tick: no-op, sem erro e sem partida fantasma
	require.NoError(t, w.tickPool(context.Background(), "solo"))
	assert.Empty(t, m.created)
}

func TestTickPoolOnePairingPerTick(t *testing.T) {
	now := time.Now()
	q := &fakeQueue{cands: []queue.Candidate{
		{PlayerID: "a", Rating: 1000, JoinedAt: now},
		{PlayerID: "b", Rating: 1000, JoinedAt: now},
		{PlayerID: "c", Rating: 1000, JoinedAt: now},
		{PlayerID: "d", Rating: 1000, JoinedAt: now},
	}}
	m := &fakeMatches{}
	w := newTestWorker(q, m, &fakePublisher{})

	require.NoError(t, w.tickPool(context.Background(), "solo"))
	assert.Len(t, m.created, 1)
}
