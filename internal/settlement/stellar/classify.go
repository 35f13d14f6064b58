package stellar

import (
	"errors"

	"github.com/stellar/go/clients/horizonclient"
)

// RejectionCode normaliza a classificação de rejeições síncronas da rede
type RejectionCode string

const (
	RejectNoTrustline   RejectionCode = "no_trustline"
	RejectUnderfunded   RejectionCode = "underfunded"
	RejectNoDestination RejectionCode = "no_destination"
	RejectOther         RejectionCode = "other"
)

// ClassifyRejection extrai os result codes de um erro do Horizon e os
// normaliza. Erros sem estrutura (rede, timeout) viram RejectOther
func ClassifyRejection(err error) RejectionCode {
	var hErr *horizonclient.Error
	if !errors.As(err, &hErr) {
		return RejectOther
	}
	codes, cerr := hErr.ResultCodes()
	if cerr != nil || codes == nil {
		return RejectOther
	}
	return classifyCodes(codes.TransactionCode, codes.OperationCodes)
}

func classifyCodes(txCode string, opCodes []string) RejectionCode {
	for _, op := range opCodes {
		switch op {
		case "op_no_trust":
			return RejectNoTrustline
		case "op_underfunded":
			return RejectUnderfunded
		case "op_no_destination":
			return RejectNoDestination
		}
	}
	if txCode == "tx_insufficient_balance" {
		return RejectUnderfunded
	}
	return RejectOther
}

// IsNotFound reporta se o erro do Horizon é um 404 ("ainda não conhecida"),
// o caso em que o polling de confirmação continua com backoff
func IsNotFound(err error) bool {
	var hErr *horizonclient.Error
	return errors.As(err, &hErr) && hErr.Problem.Status == 404
}

// IsTimeout reporta o 504 do Horizon no submit: a transação pode ter entrado
// na rede; fica PENDING e o confirmation-worker resolve o estado final
func IsTimeout(err error) bool {
	var hErr *horizonclient.Error
	return errors.As(err, &hErr) && hErr.Problem.Status == 504
}
