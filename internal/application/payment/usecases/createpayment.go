package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/paygate/internal/application/payment/exchangerate"
	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	apperrors "github.com/orris-inc/paygate/internal/shared/errors"
	"github.com/orris-inc/paygate/internal/shared/id"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

const (
	defaultCustomerName    = "Customer"
	defaultProviderTimeout = 15 * time.Second
	maxFailureReason       = 500
)

type CreatePaymentCommand struct {
	UserID     uint              `json:"-"`
	Gateway    string            `json:"gateway" validate:"required,max=32"`
	OrderIDs   []string          `json:"order_ids" validate:"required,min=1,max=50,dive,required,max=64"`
	Amount     decimal.Decimal   `json:"amount"`
	Currency   string            `json:"currency" validate:"omitempty,len=3"`
	Customer   payment.Customer  `json:"customer"`
	SuccessURL string            `json:"success_url" validate:"required,url"`
	CancelURL  string            `json:"cancel_url" validate:"required,url"`
	Metadata   map[string]string `json:"metadata" validate:"max=20"`
}

type CreatePaymentResult struct {
	Transaction *payment.Transaction
	RedirectURL string
	Form        *gateway.Form
	ExpiresAt   *time.Time
}

type CreatePaymentConfig struct {
	// CallbackBaseURL is the public base the callback route is mounted under.
	CallbackBaseURL string
	ProviderTimeout time.Duration
}

// CallbackURL is where providers send payers and webhooks for gateway code.
func (c CreatePaymentConfig) CallbackURL(code string) string {
	return strings.TrimRight(c.CallbackBaseURL, "/") + "/callbacks/" + code
}

// CreateObserver is told the status each started payment ended up in.
type CreateObserver interface {
	PaymentCreated(gatewayCode, status string)
}

type CreatePaymentUseCase struct {
	ledger      *ledger.Service
	registry    *gateway.Registry
	credentials gateway.CredentialStore
	rates       exchangerate.RateProvider
	quotes      QuoteReader
	observer    CreateObserver
	logger      logger.Interface
	config      CreatePaymentConfig
}

func NewCreatePaymentUseCase(
	ledgerService *ledger.Service,
	registry *gateway.Registry,
	credentials gateway.CredentialStore,
	rates exchangerate.RateProvider,
	logger logger.Interface,
	config CreatePaymentConfig,
) *CreatePaymentUseCase {
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = defaultProviderTimeout
	}
	return &CreatePaymentUseCase{
		ledger:      ledgerService,
		registry:    registry,
		credentials: credentials,
		rates:       rates,
		logger:      logger,
		config:      config,
	}
}

// SetQuoteReader makes quote totals authoritative (optional dependency injection).
func (uc *CreatePaymentUseCase) SetQuoteReader(quotes QuoteReader) {
	uc.quotes = quotes
}

func (uc *CreatePaymentUseCase) SetObserver(o CreateObserver) {
	uc.observer = o
}

func (uc *CreatePaymentUseCase) observe(gatewayCode string, status vo.TransactionStatus) {
	if uc.observer != nil {
		uc.observer.PaymentCreated(gatewayCode, string(status))
	}
}

func (uc *CreatePaymentUseCase) Execute(ctx context.Context, cmd CreatePaymentCommand) (*CreatePaymentResult, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	adapter, err := uc.registry.Get(cmd.Gateway)
	if err != nil {
		return nil, err
	}
	identity, err := uc.credentials.Resolve(ctx, adapter.Code())
	if err != nil {
		uc.logger.Warnw("gateway unavailable", "gateway", cmd.Gateway, "error", err)
		return nil, err
	}

	amount, customer, err := uc.resolveAmount(ctx, cmd)
	if err != nil {
		return nil, err
	}

	conversion, err := uc.convert(ctx, adapter, amount)
	if err != nil {
		return nil, err
	}

	txnID, err := id.NewTransactionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction id: %w", err)
	}

	txn, err := uc.ledger.CreateTransaction(ctx, payment.NewTransactionParams{
		TransactionID: txnID,
		GatewayCode:   adapter.Code(),
		UserID:        cmd.UserID,
		OrderIDs:      cmd.OrderIDs,
		Amount:        amount,
		Conversion:    conversion,
		Customer:      customer,
		Metadata:      cmd.Metadata,
		SuccessURL:    cmd.SuccessURL,
		CancelURL:     cmd.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	charged := txn.ChargedAmount()
	req := gateway.CreateRequest{
		TransactionID: txn.TransactionID(),
		OrderIDs:      txn.OrderIDs(),
		Amount:        charged.Rounded().Amount(),
		Currency:      charged.Currency(),
		Description:   "Order " + strings.Join(txn.OrderIDs(), ", "),
		Customer: gateway.Customer{
			Name:  customer.Name,
			Email: customer.Email,
			Phone: customer.Phone,
		},
		SuccessURL:  cmd.SuccessURL,
		CancelURL:   cmd.CancelURL,
		CallbackURL: uc.config.CallbackURL(adapter.Code()),
		Metadata:    cmd.Metadata,
	}

	providerCtx, cancel := context.WithTimeout(ctx, uc.config.ProviderTimeout)
	defer cancel()

	result, err := adapter.CreatePayment(providerCtx, identity, req)
	if err != nil {
		if uc.failCreate(ctx, txn, err) {
			uc.observe(adapter.Code(), vo.StatusFailed)
		}
		return nil, err
	}

	if result.ProviderTransactionID != "" || result.Raw != nil || result.ExpiresAt != nil {
		updated, err := uc.ledger.RecordProviderResult(ctx, txn.TransactionID(), ledger.ProviderResult{
			ProviderTransactionID: result.ProviderTransactionID,
			Raw:                   result.Raw,
			ExpiresAt:             result.ExpiresAt,
		})
		if err != nil {
			uc.logger.Errorw("failed to record provider result",
				"transaction_id", txn.TransactionID(),
				"provider_transaction_id", result.ProviderTransactionID,
				"error", err,
			)
			return nil, err
		}
		txn = updated
	}

	if result.Acknowledged {
		res, err := uc.ledger.TransitionStatus(ctx, txn.TransactionID(), vo.StatusProcessing, ledger.Evidence{
			Source:  "create",
			Details: map[string]any{"provider_transaction_id": result.ProviderTransactionID},
		})
		if err != nil {
			// The payer can still complete the payment; callbacks move it on from pending.
			uc.logger.Warnw("failed to mark acknowledged payment as processing",
				"transaction_id", txn.TransactionID(),
				"error", err,
			)
		} else {
			txn = res.Transaction
		}
	}

	uc.logger.Infow("payment started",
		"transaction_id", txn.TransactionID(),
		"gateway", adapter.Code(),
		"amount", txn.Amount().String(),
		"charged", charged.String(),
	)
	uc.observe(adapter.Code(), txn.Status())

	return &CreatePaymentResult{
		Transaction: txn,
		RedirectURL: result.RedirectURL,
		Form:        result.Form,
		ExpiresAt:   result.ExpiresAt,
	}, nil
}

// resolveAmount returns the amount to charge. With a quote reader the quote
// total wins; a declared amount must then match it.
func (uc *CreatePaymentUseCase) resolveAmount(ctx context.Context, cmd CreatePaymentCommand) (vo.Money, payment.Customer, error) {
	amount, currency, customer := cmd.Amount, cmd.Currency, cmd.Customer

	if uc.quotes != nil {
		summary, err := uc.quotes.ReadQuotes(ctx, cmd.OrderIDs)
		if err != nil {
			return vo.Money{}, customer, err
		}
		if summary.UserID != cmd.UserID {
			uc.logger.Warnw("payment attempt for quotes of another user",
				"user_id", cmd.UserID,
				"owner_id", summary.UserID,
			)
			return vo.Money{}, customer, ErrQuoteNotFound
		}
		if !cmd.Amount.IsZero() && !cmd.Amount.Equal(summary.Amount) {
			return vo.Money{}, customer, fmt.Errorf("%w: declared %s, quotes total %s", ErrQuoteMismatch, cmd.Amount, summary.Amount)
		}
		if cmd.Currency != "" && !strings.EqualFold(cmd.Currency, summary.Currency) {
			return vo.Money{}, customer, fmt.Errorf("%w: declared %s, quotes in %s", ErrQuoteMismatch, cmd.Currency, summary.Currency)
		}
		amount, currency = summary.Amount, summary.Currency
		if customer.Name == "" {
			customer.Name = summary.Customer.Name
		}
		if customer.Email == "" {
			customer.Email = summary.Customer.Email
		}
		if customer.Phone == "" {
			customer.Phone = summary.Customer.Phone
		}
	}

	if customer.Name == "" {
		customer.Name = defaultCustomerName
	}
	if currency == "" {
		return vo.Money{}, customer, apperrors.NewValidationError("Validation failed", "currency is required")
	}

	money, err := vo.NewMoney(amount, currency)
	if err != nil {
		return vo.Money{}, customer, apperrors.NewValidationError("Validation failed", err.Error()).WithCause(err)
	}
	if !money.IsPositive() {
		return vo.Money{}, customer, payment.ErrInvalidAmount
	}
	return money, customer, nil
}

// convert returns nil when the adapter settles in amount's currency, and a
// conversion into its first supported currency otherwise.
func (uc *CreatePaymentUseCase) convert(ctx context.Context, adapter gateway.Adapter, amount vo.Money) (*payment.Conversion, error) {
	if gateway.Supports(adapter, amount.Currency()) {
		return nil, nil
	}
	supported := adapter.SupportedCurrencies()
	if len(supported) == 0 || uc.rates == nil {
		return nil, fmt.Errorf("%w: %s does not accept %s", payment.ErrUnsupportedCurrency, adapter.Code(), amount.Currency())
	}
	target := strings.ToUpper(supported[0])

	rate, err := uc.rates.Rate(ctx, target, amount.Currency())
	if err != nil {
		uc.logger.Errorw("exchange rate unavailable",
			"base", target,
			"quote", amount.Currency(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: no %s/%s rate: %v", payment.ErrUnsupportedCurrency, target, amount.Currency(), err)
	}

	converted, err := amount.ConvertTo(target, rate)
	if err != nil {
		return nil, err
	}
	if !converted.IsPositive() {
		return nil, fmt.Errorf("converted %w: %s is %s", payment.ErrInvalidAmount, amount, converted)
	}

	uc.logger.Infow("amount converted for gateway",
		"gateway", adapter.Code(),
		"from", amount.String(),
		"to", converted.String(),
		"rate", rate.String(),
	)
	return &payment.Conversion{Amount: converted, Rate: rate}, nil
}

// failCreate marks the transaction failed unless the caller went away, in
// which case it stays pending for the recovery sweep. It reports whether
// the transaction was failed.
func (uc *CreatePaymentUseCase) failCreate(ctx context.Context, txn *payment.Transaction, cause error) bool {
	log := uc.logger.With("transaction_id", txn.TransactionID(), "gateway", txn.GatewayCode())

	if ctx.Err() != nil {
		log.Warnw("caller cancelled during provider create, leaving transaction pending", "error", cause)
		return false
	}

	log.Errorw("provider rejected payment create", "error", cause)

	reason := cause.Error()
	if len(reason) > maxFailureReason {
		reason = reason[:maxFailureReason]
	}
	var upstream *payment.UpstreamError
	details := map[string]any{}
	if errors.As(cause, &upstream) {
		details["status_code"] = upstream.StatusCode
	}

	if _, err := uc.ledger.TransitionStatus(ctx, txn.TransactionID(), vo.StatusFailed, ledger.Evidence{
		Source:  "create",
		Reason:  reason,
		Details: details,
	}); err != nil {
		log.Errorw("failed to mark transaction failed after create error", "error", err)
		return false
	}
	return true
}
