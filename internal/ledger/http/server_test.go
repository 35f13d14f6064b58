package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/ledger/dto"
	"github.com/radieske/arena-settlement-core/internal/ledger/repo"
	"github.com/radieske/arena-settlement-core/internal/matchmaking/queue"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

type fakeLedger struct {
	err     error
	update  repo.BalanceUpdate
	updates []repo.BalanceUpdate
}

func (f *fakeLedger) GetOrCreateWallet(_ context.Context, userID string) (*repo.Wallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &repo.Wallet{ID: "w1", UserID: userID, Funds: map[repo.Currency]repo.Funds{
		repo.CurrencyXLM: {Balance: 100, Escrow: 0},
	}}, nil
}

func (f *fakeLedger) Deposit(_ context.Context, _ string, _ repo.Currency, _ int64, _ string) (*repo.BalanceUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.update, nil
}

func (f *fakeLedger) Withdraw(_ context.Context, _ string, _ repo.Currency, _ int64, _ string) (*repo.BalanceUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.update, nil
}

func (f *fakeLedger) LockFunds(_ context.Context, _ string, _ repo.Currency, _ int64, _ string) (*repo.BalanceUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.update, nil
}

func (f *fakeLedger) ReleaseEscrow(_ context.Context, _ string) ([]repo.BalanceUpdate, error) {
	return f.updates, f.err
}

func (f *fakeLedger) SlashEscrow(_ context.Context, _ string) ([]repo.BalanceUpdate, error) {
	return f.updates, f.err
}

type fakeQueue struct {
	joinErr  error
	leaveErr error
}

func (f *fakeQueue) Join(_ context.Context, _ string, _ int, _ string) error { return f.joinErr }
func (f *fakeQueue) Leave(_ context.Context, _ string) error                 { return f.leaveErr }

type fakeNotifier struct {
	singles int
	batches int
}

func (f *fakeNotifier) Publish(_ context.Context, _ repo.BalanceUpdate) error {
	f.singles++
	return nil
}

func (f *fakeNotifier) PublishBatch(_ context.Context, _ []repo.BalanceUpdate) error {
	f.batches++
	return nil
}

type fakePayouts struct {
	err    error
	events []events.PayoutRequested
}

func (f *fakePayouts) PublishPayoutRequested(_ context.Context, ev events.PayoutRequested) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func doPost(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDepositHappyPath(t *testing.T) {
	l := &fakeLedger{update: repo.BalanceUpdate{UserID: "u1", Currency: repo.CurrencyXLM, Balance: 150}}
	n := &fakeNotifier{}
	srv := NewServer(zap.NewNop(), l, &fakeQueue{}, n, &fakePayouts{})

	rec := doPost(t, srv.Router(), "/wallet/deposit", `{"userId":"u1","currency":"XLM","amount":50}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, int64(150), resp.Balance)
	assert.Equal(t, 1, n.singles)
}

func TestLedgerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"wallet not found", repo.ErrWalletNotFound, http.StatusNotFound},
		{"insufficient balance", repo.ErrInsufficientBalance, http.StatusConflict},
		{"escrow exists", repo.ErrEscrowExists, http.StatusConflict},
		{"unknown currency", repo.ErrUnknownCurrency, http.StatusBadRequest},
		{"opaque", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(zap.NewNop(), &fakeLedger{err: tc.err}, &fakeQueue{}, &fakeNotifier{}, &fakePayouts{})
			rec := doPost(t, srv.Router(), "/escrow/lock",
				`{"userId":"u1","currency":"XLM","amount":10,"matchId":"m1"}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestDepositRejectsInvalidPayload(t *testing.T) {
	srv := NewServer(zap.NewNop(), &fakeLedger{}, &fakeQueue{}, &fakeNotifier{}, &fakePayouts{})

	for name, body := range map[string]string{
		"bad json":        `{not json`,
		"missing user":    `{"currency":"XLM","amount":10}`,
		"zero amount":     `{"userId":"u1","currency":"XLM","amount":0}`,
		"negative amount": `{"userId":"u1","currency":"XLM","amount":-5}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doPost(t, srv.Router(), "/wallet/deposit", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestWithdrawWithDestinationDispatchesPayout(t *testing.T) {
	l := &fakeLedger{update: repo.BalanceUpdate{UserID: "u1", Currency: repo.CurrencyXLM, Balance: 40}}
	p := &fakePayouts{}
	srv := NewServer(zap.NewNop(), l, &fakeQueue{}, &fakeNotifier{}, p)

	dest := "GEXTERNALACCOUNT"
	rec := doPost(t, srv.Router(), "/wallet/withdraw",
		`{"userId":"u1","currency":"XLM","amount":60,"destination":"`+dest+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, p.events, 1)
	ev := p.events[0]
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, dest, ev.Destination)
	assert.Equal(t, int64(60), ev.AmountStroops)
	assert.Equal(t, events.PayoutTypeWithdrawal, ev.TxType)
	assert.False(t, ev.Sponsored)
	assert.NotEmpty(t, ev.RequestID)
}

func TestWithdrawWithoutDestinationStaysOffChain(t *testing.T) {
	l := &fakeLedger{update: repo.BalanceUpdate{UserID: "u1", Currency: repo.CurrencyNGN, Balance: 100}}
	p := &fakePayouts{}
	srv := NewServer(zap.NewNop(), l, &fakeQueue{}, &fakeNotifier{}, p)

	rec := doPost(t, srv.Router(), "/wallet/withdraw", `{"userId":"u1","currency":"NGN","amount":50}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, p.events)
}

func TestWithdrawOnChainRequiresXLM(t *testing.T) {
	srv := NewServer(zap.NewNop(), &fakeLedger{}, &fakeQueue{}, &fakeNotifier{}, &fakePayouts{})

	rec := doPost(t, srv.Router(), "/wallet/withdraw",
		`{"userId":"u1","currency":"NGN","amount":50,"destination":"GEXTERNALACCOUNT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawPayoutDispatchFailureSurfaces(t *testing.T) {
	l := &fakeLedger{update: repo.BalanceUpdate{UserID: "u1", Currency: repo.CurrencyXLM, Balance: 40}}
	p := &fakePayouts{err: context.DeadlineExceeded}
	srv := NewServer(zap.NewNop(), l, &fakeQueue{}, &fakeNotifier{}, p)

	// o débito já commitou; a falha no despacho precisa chegar ao chamador
	rec := doPost(t, srv.Router(), "/wallet/withdraw",
		`{"userId":"u1","currency":"XLM","amount":60,"destination":"GEXTERNALACCOUNT"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestReleaseNotifiesOncePerBatch(t *testing.T) {
	l := &fakeLedger{updates: []repo.BalanceUpdate{
		{UserID: "u1", Currency: repo.CurrencyXLM},
		{UserID: "u2", Currency: repo.CurrencyXLM},
	}}
	n := &fakeNotifier{}
	srv := NewServer(zap.NewNop(), l, &fakeQueue{}, n, &fakePayouts{})

	rec := doPost(t, srv.Router(), "/escrow/release", `{"matchId":"m1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ResolveEscrowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "RELEASED", resp.Status)
	assert.Equal(t, 2, resp.Affected)
	assert.Equal(t, 1, n.batches)
}

func TestQueueEndpoints(t *testing.T) {
	t.Run("join ok", func(t *testing.T) {
		srv := NewServer(zap.NewNop(), &fakeLedger{}, &fakeQueue{}, &fakeNotifier{}, &fakePayouts{})
		rec := doPost(t, srv.Router(), "/queue/join", `{"playerId":"p1","rating":1200,"pool":"solo"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("join duplicate", func(t *testing.T) {
		srv := NewServer(zap.NewNop(), &fakeLedger{}, &fakeQueue{joinErr: queue.ErrAlreadyQueued}, &fakeNotifier{}, &fakePayouts{})
		rec := doPost(t, srv.Router(), "/queue/join", `{"playerId":"p1","rating":1200,"pool":"solo"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
	t.Run("leave not queued", func(t *testing.T) {
		srv := NewServer(zap.NewNop(), &fakeLedger{}, &fakeQueue{leaveErr: queue.ErrNotQueued}, &fakeNotifier{}, &fakePayouts{})
		rec := doPost(t, srv.Router(), "/queue/leave", `{"playerId":"p1"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
