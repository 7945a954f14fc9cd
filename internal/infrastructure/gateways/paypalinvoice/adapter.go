// Package paypalinvoice implements PayPal Invoicing v2 as a gateway: the
// payer receives an invoice link instead of a checkout redirect.
package paypalinvoice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/paypal"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/restclient"
	"github.com/orris-inc/paygate/internal/infrastructure/oauthtoken"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

const (
	Code = "paypal_invoice"

	Scope        = "https://uri.paypal.com/services/invoicing"
	invoicesPath = "/v2/invoicing/invoices"

	settingDueDays = "due_days"
)

var scopes = []string{Scope}

type name struct {
	GivenName string `json:"given_name,omitempty"`
}

type billingInfo struct {
	Name         *name  `json:"name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

type recipient struct {
	BillingInfo billingInfo `json:"billing_info"`
}

type item struct {
	Name          string        `json:"name"`
	Quantity      string        `json:"quantity"`
	UnitAmount    paypal.Amount `json:"unit_amount"`
	UnitOfMeasure string        `json:"unit_of_measure,omitempty"`
}

type paymentTerm struct {
	DueDate string `json:"due_date,omitempty"`
}

type metadata struct {
	RecipientViewURL string `json:"recipient_view_url,omitempty"`
}

type detail struct {
	InvoiceNumber string       `json:"invoice_number"`
	Reference     string       `json:"reference,omitempty"`
	CurrencyCode  string       `json:"currency_code"`
	Note          string       `json:"note,omitempty"`
	PaymentTerm   *paymentTerm `json:"payment_term,omitempty"`
	Metadata      *metadata    `json:"metadata,omitempty"`
}

type invoice struct {
	ID                string         `json:"id,omitempty"`
	Status            string         `json:"status,omitempty"`
	Detail            detail         `json:"detail"`
	PrimaryRecipients []recipient    `json:"primary_recipients,omitempty"`
	Items             []item         `json:"items,omitempty"`
	Amount            *paypal.Amount `json:"amount,omitempty"`
}

type sendRequest struct {
	SendToInvoicer  bool `json:"send_to_invoicer"`
	SendToRecipient bool `json:"send_to_recipient"`
}

// Adapter drafts, sends and reads back invoices.
type Adapter struct {
	client *paypal.Client
	now    func() time.Time
	logger logger.Interface
}

func New(httpClient *http.Client, tokens *oauthtoken.Cache, log logger.Interface) *Adapter {
	return &Adapter{
		client: paypal.NewClient(Code, httpClient, tokens, log),
		now:    time.Now,
		logger: log,
	}
}

var _ gateway.Adapter = (*Adapter)(nil)

func (a *Adapter) Code() string                  { return Code }
func (a *Adapter) Kind() gateway.Kind            { return gateway.KindInvoice }
func (a *Adapter) SupportedCurrencies() []string { return paypal.SupportedCurrencies }

// CreatePayment drafts the invoice and sends it. The payer link comes from
// the send response or, when PayPal answers 202 without a body, from the
// invoice's recipient view URL.
func (a *Adapter) CreatePayment(ctx context.Context, id *gateway.Identity, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	if err := paypal.CheckCurrency(req.Currency); err != nil {
		return nil, err
	}

	itemName := req.Description
	if itemName == "" {
		itemName = "Order " + strings.Join(req.OrderIDs, ", ")
	}
	draft := invoice{
		Detail: detail{
			InvoiceNumber: req.TransactionID,
			Reference:     strings.Join(req.OrderIDs, ","),
			CurrencyCode:  strings.ToUpper(req.Currency),
			Note:          req.Description,
		},
		Items: []item{{
			Name:          utils.CutUTF8(itemName, 200),
			Quantity:      "1",
			UnitAmount:    paypal.NewAmount(req.Amount, req.Currency),
			UnitOfMeasure: "QUANTITY",
		}},
	}
	if req.Customer.Email != "" {
		r := recipient{BillingInfo: billingInfo{EmailAddress: req.Customer.Email}}
		if req.Customer.Name != "" {
			r.BillingInfo.Name = &name{GivenName: req.Customer.Name}
		}
		draft.PrimaryRecipients = []recipient{r}
	}

	var expires *time.Time
	if days := id.SettingInt(settingDueDays, 0); days > 0 {
		due := a.now().UTC().AddDate(0, 0, days)
		draft.Detail.PaymentTerm = &paymentTerm{DueDate: due.Format(time.DateOnly)}
		end := time.Date(due.Year(), due.Month(), due.Day(), 23, 59, 59, 0, time.UTC)
		expires = &end
	}

	resp, err := a.client.Do(ctx, id, scopes, restclient.Request{
		Operation: "create_invoice",
		Method:    http.MethodPost,
		URL:       invoicesPath,
		Header: http.Header{
			"PayPal-Request-Id": {req.TransactionID},
			"Prefer":            {"return=representation"},
		},
		Body:      draft,
	})
	if err != nil {
		return nil, err
	}
	invoiceID := createdInvoiceID(resp)
	if invoiceID == "" {
		return nil, &payment.UpstreamError{Gateway: Code, Operation: "create_invoice", StatusCode: resp.StatusCode, Err: fmt.Errorf("no invoice id in response")}
	}

	sendResp, err := a.client.Do(ctx, id, scopes, restclient.Request{
		Operation: "send_invoice",
		Method:    http.MethodPost,
		URL:       invoicesPath + "/" + url.PathEscape(invoiceID) + "/send",
		Header:    http.Header{"PayPal-Request-Id": {"send-" + req.TransactionID}},
		Body:      sendRequest{SendToRecipient: req.Customer.Email != ""},
	})
	if err != nil {
		return nil, err
	}

	payerURL := sentLink(sendResp)
	raw := resp.Raw()
	if payerURL == "" {
		inv, invRaw, err := a.getInvoice(ctx, id, invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.Detail.Metadata != nil {
			payerURL = inv.Detail.Metadata.RecipientViewURL
		}
		raw = invRaw
	}
	if payerURL == "" {
		return nil, &payment.UpstreamError{Gateway: Code, Operation: "send_invoice", StatusCode: sendResp.StatusCode, Err: fmt.Errorf("invoice %s has no payer link", invoiceID)}
	}

	return &gateway.CreateResult{
		RedirectURL:           payerURL,
		ProviderTransactionID: invoiceID,
		Acknowledged:          true,
		ExpiresAt:             expires,
		Raw:                   raw,
	}, nil
}

// createdInvoiceID reads the id from a full representation or from the
// trailing segment of the self link PayPal returns by default.
func createdInvoiceID(resp *restclient.Response) string {
	var body struct {
		ID   string `json:"id"`
		Href string `json:"href"`
	}
	if err := resp.Decode(&body); err != nil {
		return ""
	}
	if body.ID != "" {
		return body.ID
	}
	if body.Href == "" {
		return ""
	}
	u, err := url.Parse(body.Href)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

func sentLink(resp *restclient.Response) string {
	if len(resp.Body) == 0 {
		return ""
	}
	var link paypal.Link
	if err := resp.Decode(&link); err != nil {
		return ""
	}
	return link.Href
}

func (a *Adapter) getInvoice(ctx context.Context, id *gateway.Identity, invoiceID string) (*invoice, map[string]any, error) {
	resp, err := a.client.Do(ctx, id, scopes, restclient.Request{
		Operation: "get_invoice",
		Method:    http.MethodGet,
		URL:       invoicesPath + "/" + url.PathEscape(invoiceID),
	})
	if err != nil {
		return nil, nil, err
	}
	var inv invoice
	if err := resp.Decode(&inv); err != nil {
		return nil, nil, &payment.UpstreamError{Gateway: Code, Operation: "get_invoice", StatusCode: resp.StatusCode, Err: err}
	}
	return &inv, resp.Raw(), nil
}

func (a *Adapter) CapturePayment(context.Context, *gateway.Identity, string) (*gateway.CaptureResult, error) {
	return nil, payment.ErrCaptureNotSupported
}

// VerifyCallback resolves the invoice named by an INVOICING.* webhook or an
// invoice_id query parameter and reports its state as read from PayPal.
func (a *Adapter) VerifyCallback(ctx context.Context, id *gateway.Identity, p gateway.CallbackPayload) (*gateway.Verification, error) {
	invoiceID, interactive := invoiceIDFromPayload(p)
	if invoiceID == "" {
		return &gateway.Verification{Valid: false, Reason: gateway.ReasonMalformed, Interactive: interactive}, nil
	}

	inv, raw, err := a.getInvoice(ctx, id, invoiceID)
	if restclient.IsStatus(err, http.StatusNotFound) {
		return &gateway.Verification{Valid: false, Reason: gateway.ReasonUnknownReference, Interactive: interactive}, nil
	}
	if err != nil {
		return nil, err
	}

	v := &gateway.Verification{
		Valid:                 true,
		TransactionRef:        inv.Detail.InvoiceNumber,
		ProviderTransactionID: inv.ID,
		DeclaredStatus:        invoiceStatus(inv.Status),
		Interactive:           interactive,
		Raw:                   raw,
	}
	if inv.Amount != nil {
		v.Amount = inv.Amount.Decimal()
		v.Currency = inv.Amount.CurrencyCode
	}
	return v, nil
}

func invoiceIDFromPayload(p gateway.CallbackPayload) (string, bool) {
	if v := p.Field("invoice_id"); v != "" {
		return v, true
	}
	if len(p.Body) == 0 {
		return "", p.Method == http.MethodGet
	}

	var hook paypal.Webhook
	if err := json.Unmarshal(p.Body, &hook); err != nil || hook.Resource == nil {
		return "", false
	}
	if !strings.HasPrefix(strings.ToUpper(hook.EventType), "INVOICING.") {
		return "", false
	}
	if nested, ok := hook.Resource["invoice"].(map[string]any); ok {
		if s, ok := nested["id"].(string); ok {
			return s, false
		}
	}
	s, _ := hook.Resource["id"].(string)
	return s, false
}

func invoiceStatus(s string) vo.TransactionStatus {
	switch strings.ToUpper(s) {
	case "PAID", "MARKED_AS_PAID":
		return vo.StatusCaptured
	case "CANCELLED":
		return vo.StatusFailed
	case "DRAFT", "SENT", "SCHEDULED", "UNPAID":
		return vo.StatusPending
	default:
		return vo.StatusProcessing
	}
}

