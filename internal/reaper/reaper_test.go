package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	lrepo "github.com/radieske/arena-settlement-core/internal/ledger/repo"
	mmrepo "github.com/radieske/arena-settlement-core/internal/matchmaking/repo"
)

type fakeMatches struct {
	stale      []mmrepo.Match
	applied    map[string]bool
	transition []string
	cutoffSeen time.Time
}

func (f *fakeMatches) FindStaleActive(_ context.Context, cutoff time.Time, _ int) ([]mmrepo.Match, error) {
	f.cutoffSeen = cutoff
	return f.stale, nil
}

func (f *fakeMatches) Transition(_ context.Context, matchID, to string, _ ...string) (bool, error) {
	f.transition = append(f.transition, matchID+"->"+to)
	return f.applied[matchID], nil
}

type fakeLedger struct {
	slashed []string
}

func (f *fakeLedger) SlashEscrow(_ context.Context, matchID string) ([]lrepo.BalanceUpdate, error) {
	f.slashed = append(f.slashed, matchID)
	return []lrepo.BalanceUpdate{{UserID: "u1", Currency: lrepo.CurrencyXLM}}, nil
}

type fakeNotifier struct {
	batches int
}

func (f *fakeNotifier) PublishBatch(_ context.Context, _ []lrepo.BalanceUpdate) error {
	f.batches++
	return nil
}

func TestSweepForfeitsStaleMatches(t *testing.T) {
	m := &fakeMatches{
		stale: []mmrepo.Match{
			{ID: "m1", Pool: "solo", Status: mmrepo.MatchActive},
			{ID: "m2", Pool: "solo", Status: mmrepo.MatchActive},
		},
		applied: map[string]bool{"m1": true, "m2": true},
	}
	l := &fakeLedger{}
	n := &fakeNotifier{}
	r := &Reaper{
		Log: zap.NewNop(), Matches: m, Ledger: l, Notif: n,
		Tick: time.Hour, Window: 24 * time.Hour, BatchSize: 200,
	}

	forfeits := 0
	r.OnForfeited = func() { forfeits++ }

	before := time.Now()
	require.NoError(t, r.Sweep(context.Background()))

	assert.Equal(t, []string{"m1->FORFEITED", "m2->FORFEITED"}, m.transition)
	assert.Equal(t, []string{"m1", "m2"}, l.slashed)
	assert.Equal(t, 2, n.batches)
	assert.Equal(t, 2, forfeits)
	// cutoff = agora - janela
	assert.WithinDuration(t, before.Add(-24*time.Hour), m.cutoffSeen, time.Second)
}

func TestSweepSkipsConcurrentlyResolved(t *testing.T) {
	// a partida foi resolvida entre o SELECT e o UPDATE condicional
	m := &fakeMatches{
		stale:   []mmrepo.Match{{ID: "m1", Status: mmrepo.MatchActive}},
		applied: map[string]bool{"m1": false},
	}
	l := &fakeLedger{}
	r := &Reaper{
		Log: zap.NewNop(), Matches: m, Ledger: l, Notif: &fakeNotifier{},
		Tick: time.Hour, Window: 24 * time.Hour, BatchSize: 200,
	}

	require.NoError(t, r.Sweep(context.Background()))
	assert.Empty(t, l.slashed)
}

func TestSweepNoStaleMatches(t *testing.T) {
	m := &fakeMatches{}
	r := &Reaper{
		Log: zap.NewNop(), Matches: m, Ledger: &fakeLedger{}, Notif: &fakeNotifier{},
		Tick: time.Hour, Window: 24 * time.Hour, BatchSize: 200,
	}
	require.NoError(t, r.Sweep(context.Background()))
	assert.Empty(t, m.transition)
}
