// Package esewa implements the eSewa ePay v2 redirect-form gateway.
package esewa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/restclient"
	"github.com/orris-inc/paygate/internal/infrastructure/signature"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const (
	Code = "esewa"

	testFormBase   = "https://rc-epay.esewa.com.np"
	liveFormBase   = "https://epay.esewa.com.np"
	testStatusBase = "https://rc.esewa.com.np"
	liveStatusBase = "https://esewa.com.np"

	formPath   = "/api/epay/main/v2/form"
	statusPath = "/api/epay/transaction/status/"

	credProductCode = "product_code"
	credSecretKey   = "secret_key"

	settingStatusURL       = "status_base_url"
	settingValidityMinutes = "validity_minutes"
	defaultValidityMinutes = 60
)

// responseSignedFields must all be covered by a callback signature. The
// request form signs only the first three, so a payload that does not also
// sign status could be a replay of the form signature.
var responseSignedFields = []string{"total_amount", "transaction_uuid", "product_code", "status"}

// Adapter talks to eSewa. Successful payments redirect the browser to the
// callback with a signed base64 "data" parameter; failures carry no
// signature and are confirmed through the status API instead.
type Adapter struct {
	client *restclient.Client
	now    func() time.Time
	logger logger.Interface
}

func New(httpClient *http.Client, log logger.Interface) *Adapter {
	return &Adapter{
		client: restclient.New(Code, httpClient, log),
		now:    time.Now,
		logger: log,
	}
}

var _ gateway.Adapter = (*Adapter)(nil)

func (a *Adapter) Code() string                  { return Code }
func (a *Adapter) Kind() gateway.Kind            { return gateway.KindRedirectForm }
func (a *Adapter) SupportedCurrencies() []string { return []string{"NPR"} }

func formBase(id *gateway.Identity) string {
	if id.BaseURL != "" {
		return strings.TrimRight(id.BaseURL, "/")
	}
	if id.IsLive() {
		return liveFormBase
	}
	return testFormBase
}

func statusBase(id *gateway.Identity) string {
	if u := id.Settings[settingStatusURL]; u != "" {
		return strings.TrimRight(u, "/")
	}
	if id.IsLive() {
		return liveStatusBase
	}
	return testStatusBase
}

func secrets(id *gateway.Identity) (string, signature.Secrets, error) {
	productCode := id.Credential(credProductCode)
	secret := id.Credential(credSecretKey)
	if productCode == "" || secret == "" {
		return "", signature.Secrets{}, fmt.Errorf("%w: esewa requires %s and %s", payment.ErrGatewayMisconfigured, credProductCode, credSecretKey)
	}
	return productCode, signature.Secrets{Secret: secret}, nil
}

// CreatePayment builds the signed form the payer's browser posts to eSewa.
// Nothing is sent to eSewa here, so the result is never acknowledged.
func (a *Adapter) CreatePayment(_ context.Context, id *gateway.Identity, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	productCode, sec, err := secrets(id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(req.Currency, "NPR") {
		return nil, fmt.Errorf("%w: esewa settles in NPR, got %s", payment.ErrUnsupportedCurrency, req.Currency)
	}

	total := req.Amount.StringFixed(2)
	failure := url.Values{
		"transaction_uuid": {req.TransactionID},
		"total_amount":     {total},
		"outcome":          {"failure"},
	}

	fields := map[string]string{
		"amount":                  total,
		"tax_amount":              "0",
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"total_amount":            total,
		"transaction_uuid":        req.TransactionID,
		"product_code":            productCode,
		"success_url":             req.CallbackURL,
		"failure_url":             req.CallbackURL + "?" + failure.Encode(),
		"signed_field_names":      strings.Join(signature.DefaultESewaSignedFields, ","),
	}
	sig, err := signature.Sign(signature.SchemeESewa, fields, sec)
	if err != nil {
		return nil, fmt.Errorf("failed to sign esewa form: %w", err)
	}
	fields["signature"] = sig

	expires := a.now().UTC().Add(time.Duration(id.SettingInt(settingValidityMinutes, defaultValidityMinutes)) * time.Minute)
	return &gateway.CreateResult{
		Form: &gateway.Form{
			Action: formBase(id) + formPath,
			Method: http.MethodPost,
			Fields: fields,
		},
		ExpiresAt: &expires,
	}, nil
}

func (a *Adapter) CapturePayment(context.Context, *gateway.Identity, string) (*gateway.CaptureResult, error) {
	return nil, payment.ErrCaptureNotSupported
}

func (a *Adapter) VerifyCallback(ctx context.Context, id *gateway.Identity, p gateway.CallbackPayload) (*gateway.Verification, error) {
	productCode, sec, err := secrets(id)
	if err != nil {
		return nil, err
	}

	if data := p.Field("data"); data != "" {
		return a.verifySigned(productCode, sec, data), nil
	}
	if p.Field("transaction_uuid") != "" && p.Field("total_amount") != "" {
		return a.verifyByStatus(ctx, id, productCode, p.Field("transaction_uuid"), p.Field("total_amount"))
	}
	return &gateway.Verification{Valid: false, Reason: gateway.ReasonMalformed, Interactive: true}, nil
}

func (a *Adapter) verifySigned(productCode string, sec signature.Secrets, data string) *gateway.Verification {
	invalid := func(reason string) *gateway.Verification {
		return &gateway.Verification{Valid: false, Reason: reason, Interactive: true}
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(data); err != nil {
			return invalid(gateway.ReasonMalformed)
		}
	}
	fields, doc, err := decodeFlat(raw)
	if err != nil {
		return invalid(gateway.ReasonMalformed)
	}

	declared := fields["signature"]
	if declared == "" {
		return invalid(gateway.ReasonSignatureMissing)
	}
	if !coversResponseFields(fields["signed_field_names"]) {
		return invalid(gateway.ReasonSignatureMismatch)
	}
	if err := signature.Verify(signature.SchemeESewa, fields, sec, declared); err != nil {
		if errors.Is(err, signature.ErrSignatureMissing) {
			return invalid(gateway.ReasonSignatureMissing)
		}
		return invalid(gateway.ReasonSignatureMismatch)
	}
	if fields["product_code"] != productCode {
		return invalid(gateway.ReasonSignatureMismatch)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(fields["total_amount"], ",", ""))
	if err != nil {
		return invalid(gateway.ReasonMalformed)
	}

	return &gateway.Verification{
		Valid:                 true,
		TransactionRef:        fields["transaction_uuid"],
		ProviderTransactionID: fields["transaction_code"],
		DeclaredStatus:        mapStatus(fields["status"]),
		Amount:                amount,
		Currency:              "NPR",
		Interactive:           true,
		Signature:             declared,
		Raw:                   doc,
	}
}

type statusResponse struct {
	ProductCode     string          `json:"product_code"`
	TransactionUUID string          `json:"transaction_uuid"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	RefID           string          `json:"ref_id"`
}

// verifyByStatus asks eSewa for the authoritative status of an unsigned
// redirect. eSewa only answers for the exact uuid and amount it processed.
func (a *Adapter) verifyByStatus(ctx context.Context, id *gateway.Identity, productCode, uuid, total string) (*gateway.Verification, error) {
	q := url.Values{
		"product_code":     {productCode},
		"total_amount":     {total},
		"transaction_uuid": {uuid},
	}
	resp, err := a.client.Do(ctx, restclient.Request{
		Operation: "status",
		Method:    http.MethodGet,
		URL:       statusBase(id) + statusPath + "?" + q.Encode(),
	})
	if err != nil {
		return nil, err
	}

	var sr statusResponse
	if err := resp.Decode(&sr); err != nil {
		return nil, &payment.UpstreamError{Gateway: Code, Operation: "status", StatusCode: resp.StatusCode, Err: err}
	}

	status := strings.ToUpper(sr.Status)
	if status == "NOT_FOUND" || sr.TransactionUUID != uuid {
		return &gateway.Verification{Valid: false, Reason: gateway.ReasonUnknownReference, Interactive: true}, nil
	}

	return &gateway.Verification{
		Valid:                 true,
		TransactionRef:        sr.TransactionUUID,
		ProviderTransactionID: sr.RefID,
		DeclaredStatus:        mapStatus(status),
		Amount:                sr.TotalAmount,
		Currency:              "NPR",
		Interactive:           true,
		Raw:                   resp.Raw(),
	}, nil
}

func coversResponseFields(listed string) bool {
	if listed == "" {
		return false
	}
	signed := make(map[string]bool)
	for _, name := range strings.Split(listed, ",") {
		signed[strings.TrimSpace(name)] = true
	}
	for _, name := range responseSignedFields {
		if !signed[name] {
			return false
		}
	}
	return true
}

func mapStatus(s string) vo.TransactionStatus {
	switch strings.ToUpper(s) {
	case "COMPLETE":
		return vo.StatusCaptured
	case "PENDING", "AMBIGUOUS":
		return vo.StatusProcessing
	case "CANCELED", "NOT_FOUND", "FULL_REFUND", "PARTIAL_REFUND":
		return vo.StatusFailed
	default:
		return vo.StatusPending
	}
}

// decodeFlat decodes a JSON object keeping number literals verbatim, since
// the signature covers their exact text ("1000.0" must stay "1000.0").
func decodeFlat(raw []byte) (map[string]string, map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, err
	}
	fields := make(map[string]string, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			fields[k] = fmt.Sprint(val)
		}
	}
	return fields, doc, nil
}
