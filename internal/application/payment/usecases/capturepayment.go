package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

type CapturePaymentCommand struct {
	TransactionID string
	UserID        uint
}

type CapturePaymentUseCase struct {
	ledger      *ledger.Service
	registry    *gateway.Registry
	credentials gateway.CredentialStore
	publisher   FulfillmentPublisher
	logger      logger.Interface
}

func NewCapturePaymentUseCase(
	ledgerService *ledger.Service,
	registry *gateway.Registry,
	credentials gateway.CredentialStore,
	publisher FulfillmentPublisher,
	logger logger.Interface,
) *CapturePaymentUseCase {
	return &CapturePaymentUseCase{
		ledger:      ledgerService,
		registry:    registry,
		credentials: credentials,
		publisher:   publisher,
		logger:      logger,
	}
}

// Execute captures an approved payment on behalf of its owner.
func (uc *CapturePaymentUseCase) Execute(ctx context.Context, cmd CapturePaymentCommand) (*ledger.TransitionResult, error) {
	txn, err := uc.ledger.Get(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	if !txn.IsOwnedBy(cmd.UserID) {
		return nil, payment.ErrTransactionNotFound
	}

	adapter, err := uc.registry.Get(txn.GatewayCode())
	if err != nil {
		return nil, err
	}
	identity, err := uc.credentials.Resolve(ctx, adapter.Code())
	if err != nil {
		return nil, err
	}
	return uc.Capture(ctx, adapter, identity, txn, "capture")
}

// Capture asks the provider to settle txn and records the outcome. A
// transaction that is already captured is returned unchanged.
func (uc *CapturePaymentUseCase) Capture(ctx context.Context, adapter gateway.Adapter, identity *gateway.Identity, txn *payment.Transaction, source string) (*ledger.TransitionResult, error) {
	if txn.Status().IsCaptured() {
		return &ledger.TransitionResult{Transaction: txn, From: txn.Status()}, nil
	}
	if txn.IsFinal() {
		return nil, fmt.Errorf("%w: cannot capture a %s transaction", payment.ErrInvalidTransition, txn.Status())
	}
	if !txn.HasProviderTransactionID() {
		return nil, fmt.Errorf("%w: no provider order to capture", payment.ErrInvalidTransition)
	}

	log := uc.logger.With("transaction_id", txn.TransactionID(), "gateway", adapter.Code())

	result, err := adapter.CapturePayment(ctx, identity, txn.ProviderTransactionID())
	if err != nil {
		if !errors.Is(err, payment.ErrCaptureNotSupported) {
			log.Errorw("provider capture failed", "error", err)
		}
		return nil, err
	}

	target := result.Status
	ev := ledger.Evidence{
		Source: source,
		Details: map[string]any{
			"provider_transaction_id": txn.ProviderTransactionID(),
			"capture_status":          string(result.Status),
		},
	}
	if target == vo.StatusCaptured && !result.Amount.IsZero() && !txn.MatchesCharged(result.Amount, result.Currency) {
		charged := txn.ChargedAmount()
		log.Errorw("captured amount does not match charged amount",
			"expected", charged.String(),
			"captured_amount", result.Amount.String(),
			"captured_currency", result.Currency,
		)
		target = vo.StatusFailed
		ev.Reason = fmt.Sprintf("amount mismatch: captured %s %s, expected %s", result.Amount, result.Currency, charged)
	}
	if target == vo.StatusFailed && ev.Reason == "" {
		ev.Reason = "provider declined capture"
	}

	res, err := uc.ledger.TransitionStatus(ctx, txn.TransactionID(), target, ev)
	if err != nil {
		return res, err
	}
	if res.CapturedNow() {
		publishCaptured(uc.logger, uc.publisher, res.Transaction)
	}
	return res, nil
}
