// Package gateway defines the contract every payment provider adapter fulfils
// and the registry the use cases resolve adapters from.
package gateway

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
)

// Kind groups adapters by interaction pattern.
type Kind string

const (
	KindRedirectForm Kind = "redirect_form"
	KindRESTOrder    Kind = "rest_order"
	KindInvoice      Kind = "invoice"
)

// Adapter translates the uniform lifecycle into one provider's protocol.
// Adapters never read or write the ledger.
type Adapter interface {
	Code() string
	Kind() Kind
	// SupportedCurrencies lists settlement currencies; the first is the default
	// conversion target.
	SupportedCurrencies() []string
	CreatePayment(ctx context.Context, identity *Identity, req CreateRequest) (*CreateResult, error)
	// CapturePayment returns payment.ErrCaptureNotSupported for gateways that
	// settle without an explicit capture.
	CapturePayment(ctx context.Context, identity *Identity, providerOrderID string) (*CaptureResult, error)
	// VerifyCallback authenticates a callback. A forged or malformed payload
	// yields Valid=false and a nil error; an error means the provider could
	// not be asked.
	VerifyCallback(ctx context.Context, identity *Identity, payload CallbackPayload) (*Verification, error)
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

// CreateRequest is the provider-neutral payment intent. Amount is already in
// a currency the adapter supports.
type CreateRequest struct {
	TransactionID string
	OrderIDs      []string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	Customer      Customer
	SuccessURL    string
	CancelURL     string
	// CallbackURL is where the provider sends the payer or its webhook.
	CallbackURL string
	Metadata    map[string]string
}

// Form is an auto-submitted HTML form the payer's browser posts to the provider.
type Form struct {
	Action string            `json:"action"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields"`
}

type CreateResult struct {
	RedirectURL string
	Form        *Form
	// ProviderTransactionID is set when the provider acknowledged the intent
	// with its own id (orders, invoices).
	ProviderTransactionID string
	Acknowledged          bool
	ExpiresAt             *time.Time
	Raw                   map[string]any
}

type CaptureResult struct {
	ProviderTransactionID string
	Status                vo.TransactionStatus
	Amount                decimal.Decimal
	Currency              string
	Raw                   map[string]any
}

// CallbackPayload is an inbound callback normalised from query string, form
// body or JSON body.
type CallbackPayload struct {
	Method      string
	ContentType string
	Fields      url.Values
	Body        []byte
}

// Field returns the first value of key from the normalised fields.
func (p CallbackPayload) Field(key string) string {
	return p.Fields.Get(key)
}

// Verification reasons for Valid=false.
const (
	ReasonSignatureMismatch = "signature_mismatch"
	ReasonSignatureMissing  = "signature_missing"
	ReasonMalformed         = "malformed_payload"
	ReasonUnknownReference  = "unknown_reference"
)

type Verification struct {
	Valid                 bool
	Reason                string
	TransactionRef        string
	ProviderTransactionID string
	DeclaredStatus        vo.TransactionStatus
	Amount                decimal.Decimal
	Currency              string
	// RequiresCapture asks the processor to capture before settling.
	RequiresCapture bool
	// Interactive callbacks come from the payer's browser and expect a redirect.
	Interactive bool
	Signature   string
	Raw         map[string]any
}

// HasAmount reports whether the provider declared an amount.
func (v *Verification) HasAmount() bool {
	return !v.Amount.IsZero()
}
