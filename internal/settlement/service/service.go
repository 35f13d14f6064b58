package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"

	"github.com/radieske/arena-settlement-core/internal/settlement/repo"
	"github.com/radieske/arena-settlement-core/internal/settlement/stellar"
	"github.com/radieske/arena-settlement-core/internal/vault"
	"github.com/radieske/arena-settlement-core/pkg/contracts/events"
)

var ErrSigningFailed = errors.New("signing failed")

// Horizon define o subconjunto do cliente Horizon usado pelo serviço
type Horizon interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransaction(tx *txnbuild.Transaction) (hProtocol.Transaction, error)
	SubmitFeeBumpTransaction(tx *txnbuild.FeeBumpTransaction) (hProtocol.Transaction, error)
}

// Repo define a persistência de transações on-chain usada pelo serviço
type Repo interface {
	CreatePending(ctx context.Context, userID, txType string) (string, error)
	SetSubmitted(ctx context.Context, id, hash, envelopeXDR string) error
	FindByHash(ctx context.Context, hash string) (*repo.BlockchainTransaction, bool, error)
	MarkSuccess(ctx context.Context, hash string) (bool, error)
	MarkFailed(ctx context.Context, hash, errText string) (bool, error)
	MarkFailedByID(ctx context.Context, id, errText string) error
}

// Ledger resolve a identidade Stellar custodial de um usuário
type Ledger interface {
	StellarIdentity(ctx context.Context, userID string) (account, seedEnc string, err error)
}

// SubmitRequest descreve um pagamento on-chain a liquidar
type SubmitRequest struct {
	UserID        string // beneficiário do prêmio ou dono do saque
	Destination   string
	AmountStroops int64
	TxType        string // events.PayoutTypePrize | events.PayoutTypeWithdrawal
	Sponsored     bool   // fee-bump pago pela conta do sistema
}

// Service constrói, assina e submete transações à rede Stellar.
// Prêmios saem da conta tesouraria (TreasuryKP); saques saem da conta
// custodial do usuário, assinados com a seed decifrada pelo vault.
// O registro PENDING é persistido antes de qualquer I/O de rede; nenhum
// lock do livro-razão é mantido durante o submit
type Service struct {
	Log        *zap.Logger
	Repo       Repo
	Ledger     Ledger
	Vault      *vault.Vault
	Horizon    Horizon
	Passphrase string
	TreasuryKP *keypair.Full // conta de origem dos prêmios; obrigatória para TxType prize
	SponsorKP  *keypair.Full // conta do sistema para fee-bump; nil desabilita patrocínio
	BaseFee    int64

	OnSubmitted func()            // métricas
	OnRejected  func(code string) // métricas por classe de rejeição
}

// resolveSigner escolhe a conta de origem e a chave de assinatura do
// pagamento. A seed custodial em claro vive só no keypair retornado
func (s *Service) resolveSigner(ctx context.Context, req SubmitRequest) (string, *keypair.Full, error) {
	if req.TxType == events.PayoutTypePrize {
		if s.TreasuryKP == nil {
			return "", nil, fmt.Errorf("%w: treasury account not configured", ErrSigningFailed)
		}
		return s.TreasuryKP.Address(), s.TreasuryKP, nil
	}

	account, seedEnc, err := s.Ledger.StellarIdentity(ctx, req.UserID)
	if err != nil {
		return "", nil, err
	}
	seed, err := s.Vault.DecryptString(seedEnc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid custodial seed", ErrSigningFailed)
	}
	return account, kp, nil
}

// Submit executa o fluxo completo de liquidação de um pagamento.
// Retorna o hash (identificador determinístico do conteúdo assinado) mesmo
// em rejeição síncrona, para auditoria
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	id, err := s.Repo.CreatePending(ctx, req.UserID, req.TxType)
	if err != nil {
		return "", err
	}

	account, kp, err := s.resolveSigner(ctx, req)
	if err != nil {
		_ = s.Repo.MarkFailedByID(ctx, id, vault.Scrub(err.Error()))
		return "", err
	}

	source, err := s.Horizon.AccountDetail(horizonclient.AccountRequest{AccountID: account})
	if err != nil {
		_ = s.Repo.MarkFailedByID(ctx, id, vault.Scrub(err.Error()))
		return "", fmt.Errorf("load source account: %w", err)
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &source,
		IncrementSequenceNum: true,
		BaseFee:              s.BaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(300)},
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: req.Destination,
				Amount:      amount.String(xdr.Int64(req.AmountStroops)),
				Asset:       txnbuild.NativeAsset{},
			},
		},
	})
	if err != nil {
		_ = s.Repo.MarkFailedByID(ctx, id, vault.Scrub(err.Error()))
		return "", fmt.Errorf("build transaction: %w", err)
	}

	tx, err = tx.Sign(s.Passphrase, kp)
	if err != nil {
		_ = s.Repo.MarkFailedByID(ctx, id, vault.Scrub(err.Error()))
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	var fb *txnbuild.FeeBumpTransaction
	hash := ""
	envelope := ""
	if req.Sponsored && s.SponsorKP != nil {
		fb, err = txnbuild.NewFeeBumpTransaction(txnbuild.FeeBumpTransactionParams{
			Inner:      tx,
			FeeAccount: s.SponsorKP.Address(),
			BaseFee:    2 * s.BaseFee,
		})
		if err == nil {
			fb, err = fb.Sign(s.Passphrase, s.SponsorKP)
		}
		if err != nil {
			_ = s.Repo.MarkFailedByID(ctx, id, vault.Scrub(err.Error()))
			return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
		}
		hash, err = fb.HashHex(s.Passphrase)
		if err == nil {
			envelope, err = fb.Base64()
		}
	} else {
		hash, err = tx.HashHex(s.Passphrase)
		if err == nil {
			envelope, err = tx.Base64()
		}
	}
	if err != nil {
		_ = s.Repo.MarkFailedByID(ctx, id, vault.Scrub(err.Error()))
		return "", fmt.Errorf("hash envelope: %w", err)
	}

	// hash determinístico do conteúdo assinado: re-submeter a mesma transação
	// é detectável antes de ir à rede
	if existing, found, err := s.Repo.FindByHash(ctx, hash); err != nil {
		return "", err
	} else if found {
		_ = s.Repo.MarkFailedByID(ctx, id, "duplicate of "+hash)
		s.Log.Info("duplicate submission detected",
			zap.String("hash", hash), zap.String("status", existing.Status))
		return hash, nil
	}

	if err := s.Repo.SetSubmitted(ctx, id, hash, envelope); err != nil {
		return "", err
	}

	if fb != nil {
		_, err = s.Horizon.SubmitFeeBumpTransaction(fb)
	} else {
		_, err = s.Horizon.SubmitTransaction(tx)
	}
	if err != nil {
		if stellar.IsTimeout(err) {
			// pode ter entrado na rede: fica PENDING e o confirmation-worker decide
			s.Log.Warn("horizon submit timeout, leaving pending", zap.String("hash", hash))
			return hash, nil
		}
		code := stellar.ClassifyRejection(err)
		errText := fmt.Sprintf("network rejected (%s): %s", code, vault.Scrub(err.Error()))
		if _, merr := s.Repo.MarkFailed(ctx, hash, errText); merr != nil {
			s.Log.Error("mark failed", zap.String("hash", hash), zap.Error(merr))
		}
		if s.OnRejected != nil {
			s.OnRejected(string(code))
		}
		return hash, fmt.Errorf("network rejected: %s", code)
	}

	if _, err := s.Repo.MarkSuccess(ctx, hash); err != nil {
		s.Log.Error("mark success", zap.String("hash", hash), zap.Error(err))
	}
	if s.OnSubmitted != nil {
		s.OnSubmitted()
	}
	s.Log.Info("transaction accepted",
		zap.String("hash", hash),
		zap.String("userId", req.UserID),
		zap.String("type", req.TxType),
		zap.Bool("sponsored", fb != nil),
	)
	return hash, nil
}
