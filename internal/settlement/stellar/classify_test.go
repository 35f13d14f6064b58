package stellar

import (
	"errors"
	"testing"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/support/render/problem"
	"github.com/stretchr/testify/assert"
)

func TestClassifyCodes(t *testing.T) {
	cases := []struct {
		name    string
		txCode  string
		opCodes []string
		want    RejectionCode
	}{
		{"no trustline", "tx_failed", []string{"op_no_trust"}, RejectNoTrustline},
		{"underfunded op", "tx_failed", []string{"op_underfunded"}, RejectUnderfunded},
		{"missing destination", "tx_failed", []string{"op_no_destination"}, RejectNoDestination},
		{"source cannot pay fee", "tx_insufficient_balance", nil, RejectUnderfunded},
		{"first matching op wins", "tx_failed", []string{"op_success", "op_underfunded"}, RejectUnderfunded},
		{"unknown op code", "tx_failed", []string{"op_malformed"}, RejectOther},
		{"bad sequence", "tx_bad_seq", nil, RejectOther},
		{"empty", "", nil, RejectOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyCodes(tc.txCode, tc.opCodes))
		})
	}
}

func TestClassifyRejectionUnstructuredError(t *testing.T) {
	assert.Equal(t, RejectOther, ClassifyRejection(errors.New("connection refused")))
	assert.Equal(t, RejectOther, ClassifyRejection(nil))
}

func TestStatusHelpers(t *testing.T) {
	notFound := &horizonclient.Error{Problem: problem.P{Status: 404}}
	timeout := &horizonclient.Error{Problem: problem.P{Status: 504}}

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(timeout))
	assert.False(t, IsNotFound(errors.New("plain")))

	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsTimeout(notFound))
	assert.False(t, IsTimeout(nil))
}
