package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/biztime"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

const maxStoredPayload = 64 << 10

type HandleCallbackCommand struct {
	GatewayCode string
	Payload     gateway.CallbackPayload
}

// HandleCallbackResult tells the transport how to answer. Transaction is nil
// when the callback could not be matched.
type HandleCallbackResult struct {
	Outcome     payment.CallbackOutcome
	Transaction *payment.Transaction
	Interactive bool
	// RedirectURL is set for interactive callbacks of a known transaction.
	RedirectURL string
}

// CallbackObserver is notified of every processed callback; metrics implement it.
type CallbackObserver interface {
	CallbackProcessed(gatewayCode string, outcome payment.CallbackOutcome)
}

type HandleCallbackUseCase struct {
	ledger      *ledger.Service
	registry    *gateway.Registry
	credentials gateway.CredentialStore
	callbacks   payment.CallbackEventRepository
	capture     *CapturePaymentUseCase
	publisher   FulfillmentPublisher
	observer    CallbackObserver
	clock       biztime.Clock
	logger      logger.Interface
}

func NewHandleCallbackUseCase(
	ledgerService *ledger.Service,
	registry *gateway.Registry,
	credentials gateway.CredentialStore,
	callbacks payment.CallbackEventRepository,
	capture *CapturePaymentUseCase,
	publisher FulfillmentPublisher,
	logger logger.Interface,
) *HandleCallbackUseCase {
	return &HandleCallbackUseCase{
		ledger:      ledgerService,
		registry:    registry,
		credentials: credentials,
		callbacks:   callbacks,
		capture:     capture,
		publisher:   publisher,
		clock:       biztime.SystemClock(),
		logger:      logger,
	}
}

// SetObserver sets the callback observer (optional dependency injection)
func (uc *HandleCallbackUseCase) SetObserver(o CallbackObserver) {
	uc.observer = o
}

// SetClock overrides the clock used for callback timestamps.
func (uc *HandleCallbackUseCase) SetClock(clock biztime.Clock) {
	uc.clock = clock
}

// Execute verifies and applies one provider callback. A forged callback
// returns an error wrapping payment.ErrSignatureInvalid and leaves the
// ledger untouched. Unknown references, duplicates and conflicts are
// acknowledged with a nil error so providers stop retrying. Every call is
// recorded as a CallbackEvent.
func (uc *HandleCallbackUseCase) Execute(ctx context.Context, cmd HandleCallbackCommand) (*HandleCallbackResult, error) {
	event := &payment.CallbackEvent{
		ID:          uuid.NewString(),
		GatewayCode: cmd.GatewayCode,
		Method:      cmd.Payload.Method,
		Payload:     payloadSnapshot(cmd.Payload),
		ReceivedAt:  uc.clock.Now(),
	}

	result, err := uc.process(ctx, cmd, event)
	if result == nil {
		result = &HandleCallbackResult{}
	}
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrSignatureInvalid):
		result.Outcome = payment.CallbackRejected
	default:
		result.Outcome = payment.CallbackError
		event.Detail = utils.CutUTF8(err.Error(), 500)
	}
	event.Outcome = result.Outcome

	if saveErr := uc.callbacks.Save(ctx, event); saveErr != nil {
		uc.logger.Errorw("failed to record callback event",
			"callback_id", event.ID,
			"gateway", cmd.GatewayCode,
			"error", saveErr,
		)
	}
	if uc.observer != nil {
		uc.observer.CallbackProcessed(cmd.GatewayCode, result.Outcome)
	}
	return result, err
}

func (uc *HandleCallbackUseCase) process(ctx context.Context, cmd HandleCallbackCommand, event *payment.CallbackEvent) (*HandleCallbackResult, error) {
	log := uc.logger.With("gateway", cmd.GatewayCode, "callback_id", event.ID)

	adapter, err := uc.registry.Get(cmd.GatewayCode)
	if err != nil {
		log.Warnw("callback for unknown gateway")
		return nil, err
	}
	identity, err := uc.credentials.Resolve(ctx, adapter.Code())
	if err != nil {
		log.Errorw("callback for unavailable gateway", "error", err)
		return nil, err
	}

	v, err := adapter.VerifyCallback(ctx, identity, cmd.Payload)
	if err != nil {
		log.Errorw("callback verification could not complete", "error", err)
		return nil, err
	}

	if !v.Valid {
		if v.Reason == gateway.ReasonUnknownReference {
			log.Warnw("provider does not know the callback reference")
			return &HandleCallbackResult{Outcome: payment.CallbackNotFound, Interactive: v.Interactive}, nil
		}
		event.Detail = v.Reason
		log.Warnw("callback rejected",
			"reason", v.Reason,
			"method", cmd.Payload.Method,
		)
		return &HandleCallbackResult{Interactive: v.Interactive}, fmt.Errorf("%w: %s", payment.ErrSignatureInvalid, v.Reason)
	}
	event.Signature = utils.CutUTF8(v.Signature, 255)

	txn, err := uc.resolve(ctx, adapter.Code(), v)
	if errors.Is(err, payment.ErrTransactionNotFound) {
		log.Warnw("callback for unknown transaction",
			"transaction_ref", v.TransactionRef,
			"provider_transaction_id", v.ProviderTransactionID,
		)
		return &HandleCallbackResult{Outcome: payment.CallbackNotFound, Interactive: v.Interactive}, nil
	}
	if err != nil {
		return nil, err
	}
	event.TransactionID = txn.TransactionID()
	log = log.With("transaction_id", txn.TransactionID())

	result := &HandleCallbackResult{Transaction: txn, Interactive: v.Interactive}
	defer func() {
		if result.Interactive && result.Transaction != nil {
			result.RedirectURL = redirectFor(result.Transaction)
		}
	}()

	if v.ProviderTransactionID != "" && !txn.HasProviderTransactionID() {
		updated, err := uc.ledger.RecordProviderResult(ctx, txn.TransactionID(), ledger.ProviderResult{
			ProviderTransactionID: v.ProviderTransactionID,
			Raw:                   v.Raw,
		})
		if err != nil {
			log.Warnw("failed to record provider id from callback", "error", err)
		} else {
			txn = updated
			result.Transaction = txn
		}
	}

	if v.DeclaredStatus == vo.StatusPending || v.DeclaredStatus == "" {
		log.Infow("callback declares no progress", "declared", v.DeclaredStatus)
		result.Outcome = payment.CallbackIgnored
		return result, nil
	}

	source := "callback:" + adapter.Code()
	target := v.DeclaredStatus
	ev := ledger.Evidence{
		Source: source,
		Details: map[string]any{
			"callback_id":             event.ID,
			"declared_status":         string(v.DeclaredStatus),
			"provider_transaction_id": v.ProviderTransactionID,
		},
	}
	if v.HasAmount() {
		ev.Details["declared_amount"] = v.Amount.String()
		ev.Details["declared_currency"] = v.Currency
	}

	if target != vo.StatusFailed && target != vo.StatusExpired && v.HasAmount() && !txn.MatchesCharged(v.Amount, v.Currency) {
		charged := txn.ChargedAmount()
		log.Errorw("callback amount does not match charged amount",
			"expected", charged.String(),
			"declared_amount", v.Amount.String(),
			"declared_currency", v.Currency,
		)
		target = vo.StatusFailed
		ev.Reason = fmt.Sprintf("amount mismatch: provider reported %s %s, expected %s", v.Amount, v.Currency, charged)
	}
	if target == vo.StatusFailed && ev.Reason == "" {
		ev.Reason = "provider reported failure"
	}

	res, err := uc.ledger.TransitionStatus(ctx, txn.TransactionID(), target, ev)
	if err == nil && target == vo.StatusProcessing && v.RequiresCapture && uc.capture != nil {
		res, err = uc.capture.Capture(ctx, adapter, identity, res.Transaction, source)
		if res == nil && err != nil {
			// Capture failed upstream; the approval itself is already recorded.
			if latest, getErr := uc.ledger.Get(ctx, txn.TransactionID()); getErr == nil {
				result.Transaction = latest
			}
			return result, err
		}
	}

	if res != nil {
		result.Transaction = res.Transaction
	}

	switch {
	case errors.Is(err, payment.ErrConflictingFinalState):
		result.Outcome = payment.CallbackConflict
		return result, nil
	case errors.Is(err, payment.ErrInvalidTransition):
		log.Infow("callback would move transaction backwards, ignoring",
			"current", txn.Status(),
			"declared", target,
		)
		result.Outcome = payment.CallbackIgnored
		return result, nil
	case err != nil:
		return result, err
	}

	if res.Changed {
		result.Outcome = payment.CallbackApplied
	} else {
		result.Outcome = payment.CallbackDuplicate
	}

	// Capture publishes itself; only plain transitions publish here.
	if res.CapturedNow() && !(v.RequiresCapture && target == vo.StatusProcessing) {
		publishCaptured(uc.logger, uc.publisher, res.Transaction)
	}
	return result, nil
}

// resolve finds the transaction by our reference, then by the provider id.
// A transaction of another gateway never matches.
func (uc *HandleCallbackUseCase) resolve(ctx context.Context, code string, v *gateway.Verification) (*payment.Transaction, error) {
	if v.TransactionRef != "" {
		txn, err := uc.ledger.Get(ctx, v.TransactionRef)
		if err == nil {
			if txn.GatewayCode() != code {
				return nil, payment.ErrTransactionNotFound
			}
			return txn, nil
		}
		if !errors.Is(err, payment.ErrTransactionNotFound) {
			return nil, err
		}
	}
	if v.ProviderTransactionID != "" {
		return uc.ledger.FindByProviderID(ctx, code, v.ProviderTransactionID)
	}
	return nil, payment.ErrTransactionNotFound
}

func redirectFor(txn *payment.Transaction) string {
	switch txn.Status() {
	case vo.StatusCaptured, vo.StatusProcessing:
		return txn.SuccessURL()
	default:
		return txn.CancelURL()
	}
}

func payloadSnapshot(p gateway.CallbackPayload) string {
	s := string(p.Body)
	if s == "" {
		s = p.Fields.Encode()
	}
	return utils.CutUTF8(s, maxStoredPayload)
}

