package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
)

// toUTCPtr converts a *time.Time to UTC if not nil.
func toUTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

type CustomerRequest struct {
	Name  string `json:"name" binding:"max=128"`
	Email string `json:"email" binding:"omitempty,email,max=254"`
	Phone string `json:"phone" binding:"max=32"`
}

type CreatePaymentRequest struct {
	Gateway    string            `json:"gateway" binding:"required"`
	OrderIDs   []string          `json:"order_ids" binding:"required,min=1"`
	Amount     decimal.Decimal   `json:"amount" swaggertype:"string" example:"25.50"`
	Currency   string            `json:"currency" example:"USD"`
	Customer   CustomerRequest   `json:"customer"`
	SuccessURL string            `json:"success_url" binding:"required"`
	CancelURL  string            `json:"cancel_url" binding:"required"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (r *CreatePaymentRequest) ToCommand(userID uint) usecases.CreatePaymentCommand {
	return usecases.CreatePaymentCommand{
		UserID:   userID,
		Gateway:  r.Gateway,
		OrderIDs: r.OrderIDs,
		Amount:   r.Amount,
		Currency: r.Currency,
		Customer: payment.Customer{
			Name:  r.Customer.Name,
			Email: r.Customer.Email,
			Phone: r.Customer.Phone,
		},
		SuccessURL: r.SuccessURL,
		CancelURL:  r.CancelURL,
		Metadata:   r.Metadata,
	}
}

type MoneyResponse struct {
	Amount   string `json:"amount" example:"25.50"`
	Currency string `json:"currency" example:"USD"`
}

type ConversionResponse struct {
	Charged MoneyResponse `json:"charged"`
	Rate    string        `json:"rate" example:"133"`
}

// TransactionResponse is the client view of a transaction. Raw provider
// responses and customer contact details stay server side.
type TransactionResponse struct {
	TransactionID         string              `json:"transaction_id"`
	Gateway               string              `json:"gateway"`
	ProviderTransactionID string              `json:"provider_transaction_id,omitempty"`
	OrderIDs              []string            `json:"order_ids"`
	Amount                MoneyResponse       `json:"amount"`
	Conversion            *ConversionResponse `json:"conversion,omitempty"`
	Status                string              `json:"status"`
	FailureReason         string              `json:"failure_reason,omitempty"`
	ExpiresAt             *time.Time          `json:"expires_at,omitempty"`
	CapturedAt            *time.Time          `json:"captured_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func ToTransactionResponse(t *payment.Transaction) *TransactionResponse {
	if t == nil {
		return nil
	}
	resp := &TransactionResponse{
		TransactionID:         t.TransactionID(),
		Gateway:               t.GatewayCode(),
		ProviderTransactionID: t.ProviderTransactionID(),
		OrderIDs:              t.OrderIDs(),
		Amount:                MoneyResponse{Amount: t.Amount().StringFixed(), Currency: t.Amount().Currency()},
		Status:                string(t.Status()),
		FailureReason:         t.FailureReason(),
		ExpiresAt:             toUTCPtr(t.ExpiresAt()),
		CapturedAt:            toUTCPtr(t.CapturedAt()),
		CreatedAt:             t.CreatedAt().UTC(),
		UpdatedAt:             t.UpdatedAt().UTC(),
	}
	if c := t.Conversion(); c != nil {
		resp.Conversion = &ConversionResponse{
			Charged: MoneyResponse{Amount: c.Amount.StringFixed(), Currency: c.Amount.Currency()},
			Rate:    c.Rate.String(),
		}
	}
	return resp
}

// CreatePaymentResponse tells the client where to send the payer: either
// RedirectURL or an auto-submitted Form, never both.
type CreatePaymentResponse struct {
	Transaction *TransactionResponse `json:"transaction"`
	RedirectURL string               `json:"redirect_url,omitempty"`
	Form        *gateway.Form        `json:"form,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
}

func ToCreatePaymentResponse(r *usecases.CreatePaymentResult) *CreatePaymentResponse {
	return &CreatePaymentResponse{
		Transaction: ToTransactionResponse(r.Transaction),
		RedirectURL: r.RedirectURL,
		Form:        r.Form,
		ExpiresAt:   toUTCPtr(r.ExpiresAt),
	}
}

// AdminTransactionResponse adds the review and contact fields operators need.
type AdminTransactionResponse struct {
	TransactionResponse
	UserID       uint              `json:"user_id"`
	NeedsReview  bool              `json:"needs_review"`
	ReviewReason string            `json:"review_reason,omitempty"`
	CustomerName string            `json:"customer_name,omitempty"`
	Email        string            `json:"customer_email,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func ToAdminTransactionResponse(t *payment.Transaction) *AdminTransactionResponse {
	return &AdminTransactionResponse{
		TransactionResponse: *ToTransactionResponse(t),
		UserID:              t.UserID(),
		NeedsReview:         t.NeedsReview(),
		ReviewReason:        t.ReviewReason(),
		CustomerName:        t.Customer().Name,
		Email:               t.Customer().Email,
		Metadata:            t.Metadata(),
	}
}

func ToAdminTransactionResponses(txns []*payment.Transaction) []*AdminTransactionResponse {
	out := make([]*AdminTransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, ToAdminTransactionResponse(t))
	}
	return out
}

type TransactionEventResponse struct {
	Kind       string         `json:"kind"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status"`
	Source     string         `json:"source"`
	Evidence   map[string]any `json:"evidence,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type CallbackEventResponse struct {
	ID         string    `json:"id"`
	Gateway    string    `json:"gateway"`
	Method     string    `json:"method"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type TransactionAuditResponse struct {
	Transaction *AdminTransactionResponse   `json:"transaction"`
	Events      []*TransactionEventResponse `json:"events"`
	Callbacks   []*CallbackEventResponse    `json:"callbacks"`
}

func ToTransactionAuditResponse(a *usecases.TransactionAudit) *TransactionAuditResponse {
	resp := &TransactionAuditResponse{
		Transaction: ToAdminTransactionResponse(a.Transaction),
		Events:      make([]*TransactionEventResponse, 0, len(a.Events)),
		Callbacks:   make([]*CallbackEventResponse, 0, len(a.Callbacks)),
	}
	for _, e := range a.Events {
		resp.Events = append(resp.Events, &TransactionEventResponse{
			Kind:       string(e.Kind),
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Source:     e.Source,
			Evidence:   e.Evidence,
			CreatedAt:  e.CreatedAt.UTC(),
		})
	}
	for _, cb := range a.Callbacks {
		resp.Callbacks = append(resp.Callbacks, &CallbackEventResponse{
			ID:         cb.ID,
			Gateway:    cb.GatewayCode,
			Method:     cb.Method,
			Outcome:    string(cb.Outcome),
			Detail:     cb.Detail,
			ReceivedAt: cb.ReceivedAt.UTC(),
		})
	}
	return resp
}
