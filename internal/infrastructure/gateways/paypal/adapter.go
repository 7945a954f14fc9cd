// Package paypal implements the PayPal Checkout Orders v2 gateway and the
// authenticated REST client shared with the invoicing gateway.
package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/restclient"
	"github.com/orris-inc/paygate/internal/infrastructure/oauthtoken"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

const (
	Code = "paypal"

	ordersPath = "/v2/checkout/orders"

	settingValidityMinutes = "validity_minutes"
	// Unapproved orders lapse after three hours.
	defaultValidityMinutes = 180

	outcomeCancel = "cancel"
)

type purchaseUnit struct {
	ReferenceID string        `json:"reference_id,omitempty"`
	CustomID    string        `json:"custom_id,omitempty"`
	InvoiceID   string        `json:"invoice_id,omitempty"`
	Description string        `json:"description,omitempty"`
	Amount      Amount        `json:"amount"`
	Payments    *unitPayments `json:"payments,omitempty"`
}

type unitPayments struct {
	Captures []capture `json:"captures"`
}

type capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Amount `json:"amount"`
}

type applicationContext struct {
	ReturnURL    string `json:"return_url"`
	CancelURL    string `json:"cancel_url"`
	UserAction   string `json:"user_action,omitempty"`
	ShippingPref string `json:"shipping_preference,omitempty"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []Link         `json:"links"`
}

func (o *order) unit() purchaseUnit {
	if len(o.PurchaseUnits) == 0 {
		return purchaseUnit{}
	}
	return o.PurchaseUnits[0]
}

func (o *order) lastCapture() *capture {
	u := o.unit()
	if u.Payments == nil || len(u.Payments.Captures) == 0 {
		return nil
	}
	return &u.Payments.Captures[len(u.Payments.Captures)-1]
}

// transactionRef is the internal id echoed back through custom_id.
func (o *order) transactionRef() string {
	u := o.unit()
	if u.CustomID != "" {
		return u.CustomID
	}
	return u.ReferenceID
}

// Adapter creates PayPal orders, captures approved ones and verifies returns
// and webhooks by re-reading the order from PayPal.
type Adapter struct {
	client *Client
	now    func() time.Time
	logger logger.Interface
}

func New(httpClient *http.Client, tokens *oauthtoken.Cache, log logger.Interface) *Adapter {
	return &Adapter{
		client: NewClient(Code, httpClient, tokens, log),
		now:    time.Now,
		logger: log,
	}
}

var _ gateway.Adapter = (*Adapter)(nil)

func (a *Adapter) Code() string                  { return Code }
func (a *Adapter) Kind() gateway.Kind            { return gateway.KindRESTOrder }
func (a *Adapter) SupportedCurrencies() []string { return SupportedCurrencies }

func (a *Adapter) CreatePayment(ctx context.Context, id *gateway.Identity, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	if err := CheckCurrency(req.Currency); err != nil {
		return nil, err
	}

	cancel := url.Values{"outcome": {outcomeCancel}}
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.TransactionID,
			CustomID:    req.TransactionID,
			InvoiceID:   req.TransactionID,
			Description: utils.CutUTF8(req.Description, 127),
			Amount:      NewAmount(req.Amount, req.Currency),
		}},
		ApplicationContext: applicationContext{
			ReturnURL:    req.CallbackURL,
			CancelURL:    req.CallbackURL + "?" + cancel.Encode(),
			UserAction:   "PAY_NOW",
			ShippingPref: "NO_SHIPPING",
		},
	}

	resp, err := a.client.Do(ctx, id, nil, restclient.Request{
		Operation: "create_order",
		Method:    http.MethodPost,
		URL:       ordersPath,
		Header: http.Header{
			"PayPal-Request-Id": {req.TransactionID},
			"Prefer":            {"return=representation"},
		},
		Body: body,
	})
	if err != nil {
		return nil, err
	}

	var o order
	if err := resp.Decode(&o); err != nil || o.ID == "" {
		return nil, &payment.UpstreamError{Gateway: Code, Operation: "create_order", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected order response: %v", err)}
	}
	approve := FindLink(o.Links, "approve", "payer-action")
	if approve == "" {
		return nil, &payment.UpstreamError{Gateway: Code, Operation: "create_order", StatusCode: resp.StatusCode, Err: fmt.Errorf("order %s has no approval link", o.ID)}
	}

	expires := a.now().UTC().Add(time.Duration(id.SettingInt(settingValidityMinutes, defaultValidityMinutes)) * time.Minute)
	return &gateway.CreateResult{
		RedirectURL:           approve,
		ProviderTransactionID: o.ID,
		Acknowledged:          true,
		ExpiresAt:             &expires,
		Raw:                   resp.Raw(),
	}, nil
}

// CapturePayment captures an approved order. An order that was already
// captured answers 422; the current order is read back instead so retries
// converge on the same result.
func (a *Adapter) CapturePayment(ctx context.Context, id *gateway.Identity, orderID string) (*gateway.CaptureResult, error) {
	resp, err := a.client.Do(ctx, id, nil, restclient.Request{
		Operation: "capture_order",
		Method:    http.MethodPost,
		URL:       ordersPath + "/" + url.PathEscape(orderID) + "/capture",
		Header: http.Header{
			"PayPal-Request-Id": {"capture-" + orderID},
			"Prefer":            {"return=representation"},
		},
		Body: struct{}{},
	})
	if restclient.IsStatus(err, http.StatusUnprocessableEntity) {
		a.logger.Infow("paypal capture rejected, reading order state", "order_id", orderID)
		o, raw, getErr := a.getOrder(ctx, id, orderID)
		if getErr != nil {
			return nil, getErr
		}
		return captureResult(o, raw), nil
	}
	if err != nil {
		return nil, err
	}

	var o order
	if err := resp.Decode(&o); err != nil {
		return nil, &payment.UpstreamError{Gateway: Code, Operation: "capture_order", StatusCode: resp.StatusCode, Err: err}
	}
	return captureResult(&o, resp.Raw()), nil
}

func captureResult(o *order, raw map[string]any) *gateway.CaptureResult {
	amount := o.unit().Amount
	if c := o.lastCapture(); c != nil && c.Amount.Value != "" {
		amount = c.Amount
	}
	return &gateway.CaptureResult{
		ProviderTransactionID: o.ID,
		Status:                orderStatus(o),
		Amount:                amount.Decimal(),
		Currency:              amount.CurrencyCode,
		Raw:                   raw,
	}
}

func (a *Adapter) getOrder(ctx context.Context, id *gateway.Identity, orderID string) (*order, map[string]any, error) {
	resp, err := a.client.Do(ctx, id, nil, restclient.Request{
		Operation: "get_order",
		Method:    http.MethodGet,
		URL:       ordersPath + "/" + url.PathEscape(orderID),
	})
	if err != nil {
		return nil, nil, err
	}
	var o order
	if err := resp.Decode(&o); err != nil {
		return nil, nil, &payment.UpstreamError{Gateway: Code, Operation: "get_order", StatusCode: resp.StatusCode, Err: err}
	}
	return &o, resp.Raw(), nil
}

// VerifyCallback accepts the payer's return (token=<order id>) and order or
// capture webhooks. Neither is trusted as is: the order is fetched from
// PayPal with the merchant's credentials and its state is what gets reported.
func (a *Adapter) VerifyCallback(ctx context.Context, id *gateway.Identity, p gateway.CallbackPayload) (*gateway.Verification, error) {
	orderID, interactive := orderIDFromPayload(p)
	if orderID == "" {
		return &gateway.Verification{Valid: false, Reason: gateway.ReasonMalformed, Interactive: interactive}, nil
	}

	o, raw, err := a.getOrder(ctx, id, orderID)
	if restclient.IsStatus(err, http.StatusNotFound) {
		return &gateway.Verification{Valid: false, Reason: gateway.ReasonUnknownReference, Interactive: interactive}, nil
	}
	if err != nil {
		return nil, err
	}

	status := orderStatus(o)
	if interactive && status == vo.StatusPending && p.Field("outcome") == outcomeCancel {
		status = vo.StatusFailed
	}

	amount := o.unit().Amount
	return &gateway.Verification{
		Valid:                 true,
		TransactionRef:        o.transactionRef(),
		ProviderTransactionID: o.ID,
		DeclaredStatus:        status,
		Amount:                amount.Decimal(),
		Currency:              amount.CurrencyCode,
		RequiresCapture:       strings.EqualFold(o.Status, "APPROVED"),
		Interactive:           interactive,
		Raw:                   raw,
	}, nil
}

func orderIDFromPayload(p gateway.CallbackPayload) (string, bool) {
	if token := p.Field("token"); token != "" {
		return token, true
	}
	if len(p.Body) == 0 {
		return "", p.Method == http.MethodGet
	}

	var hook Webhook
	if err := json.Unmarshal(p.Body, &hook); err != nil || hook.Resource == nil {
		return "", false
	}
	if related := relatedOrderID(hook.Resource); related != "" {
		return related, false
	}
	if strings.HasPrefix(strings.ToUpper(hook.EventType), "CHECKOUT.ORDER.") {
		if s, ok := hook.Resource["id"].(string); ok {
			return s, false
		}
	}
	return "", false
}

func relatedOrderID(resource map[string]any) string {
	sd, _ := resource["supplementary_data"].(map[string]any)
	ids, _ := sd["related_ids"].(map[string]any)
	s, _ := ids["order_id"].(string)
	return s
}

func orderStatus(o *order) vo.TransactionStatus {
	switch strings.ToUpper(o.Status) {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return vo.StatusPending
	case "APPROVED":
		return vo.StatusProcessing
	case "VOIDED":
		return vo.StatusFailed
	case "COMPLETED":
		c := o.lastCapture()
		if c == nil {
			return vo.StatusCaptured
		}
		switch strings.ToUpper(c.Status) {
		case "DECLINED", "FAILED":
			return vo.StatusFailed
		case "PENDING":
			return vo.StatusProcessing
		default:
			return vo.StatusCaptured
		}
	default:
		return vo.StatusProcessing
	}
}

