// Package payu implements the PayU India hosted checkout gateway.
package payu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/signature"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

const (
	Code = "payu"

	testBase    = "https://test.payu.in"
	liveBase    = "https://secure.payu.in"
	paymentPath = "/_payment"

	credMerchantKey = "merchant_key"
	credSalt        = "salt"

	settingDefaultEmail    = "default_email"
	settingValidityMinutes = "validity_minutes"
	defaultValidityMinutes = 60

	defaultFirstName = "Customer"
	maxProductInfo   = 100
	maxUDF           = 255
	metadataUDFSlots = 4
)

// Adapter builds PayU checkout forms and verifies the reverse-chain hash PayU
// posts back to surl/furl.
type Adapter struct {
	now    func() time.Time
	logger logger.Interface
}

func New(log logger.Interface) *Adapter {
	return &Adapter{now: time.Now, logger: log}
}

var _ gateway.Adapter = (*Adapter)(nil)

func (a *Adapter) Code() string                  { return Code }
func (a *Adapter) Kind() gateway.Kind            { return gateway.KindRedirectForm }
func (a *Adapter) SupportedCurrencies() []string { return []string{"INR"} }

func base(id *gateway.Identity) string {
	if id.BaseURL != "" {
		return strings.TrimRight(id.BaseURL, "/")
	}
	if id.IsLive() {
		return liveBase
	}
	return testBase
}

func secrets(id *gateway.Identity) (signature.Secrets, error) {
	key := id.Credential(credMerchantKey)
	salt := id.Credential(credSalt)
	if key == "" || salt == "" {
		return signature.Secrets{}, fmt.Errorf("%w: payu requires %s and %s", payment.ErrGatewayMisconfigured, credMerchantKey, credSalt)
	}
	return signature.Secrets{Key: key, Secret: salt}, nil
}

func (a *Adapter) CreatePayment(_ context.Context, id *gateway.Identity, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	sec, err := secrets(id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(req.Currency, "INR") {
		return nil, fmt.Errorf("%w: payu settles in INR, got %s", payment.ErrUnsupportedCurrency, req.Currency)
	}

	email := req.Customer.Email
	if email == "" {
		email = id.Settings[settingDefaultEmail]
	}
	if email == "" {
		return nil, fmt.Errorf("%w: payu requires a payer email or the %s setting", payment.ErrGatewayMisconfigured, settingDefaultEmail)
	}
	firstName := strings.TrimSpace(req.Customer.Name)
	if firstName == "" {
		firstName = defaultFirstName
	}
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}

	productInfo := req.Description
	if productInfo == "" {
		productInfo = "Order " + strings.Join(req.OrderIDs, ",")
	}

	fields := map[string]string{
		"key":         sec.Key,
		"txnid":       req.TransactionID,
		"amount":      req.Amount.StringFixed(2),
		"productinfo": utils.CutUTF8(productInfo, maxProductInfo),
		"firstname":   firstName,
		"email":       email,
		"phone":       req.Customer.Phone,
		"surl":        req.CallbackURL,
		"furl":        req.CallbackURL,
		"udf1":        utils.CutUTF8(strings.Join(req.OrderIDs, ","), maxUDF),
	}
	for i, pair := range metadataPairs(req.Metadata) {
		fields[fmt.Sprintf("udf%d", i+2)] = utils.CutUTF8(pair, maxUDF)
	}

	hash, err := signature.Sign(signature.SchemePayURequest, fields, sec)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payu form: %w", err)
	}
	fields["hash"] = hash

	expires := a.now().UTC().Add(time.Duration(id.SettingInt(settingValidityMinutes, defaultValidityMinutes)) * time.Minute)
	return &gateway.CreateResult{
		Form: &gateway.Form{
			Action: base(id) + paymentPath,
			Method: http.MethodPost,
			Fields: fields,
		},
		ExpiresAt: &expires,
	}, nil
}

// metadataPairs renders up to four metadata entries as "k=v" in key order
// so the udf slots are stable across retries.
func metadataPairs(md map[string]string) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > metadataUDFSlots {
		keys = keys[:metadataUDFSlots]
	}
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		// The hash chain is pipe delimited.
		pairs = append(pairs, strings.ReplaceAll(k+"="+md[k], "|", " "))
	}
	return pairs
}

func (a *Adapter) CapturePayment(context.Context, *gateway.Identity, string) (*gateway.CaptureResult, error) {
	return nil, payment.ErrCaptureNotSupported
}

// VerifyCallback checks the response hash PayU posts to surl and furl. The
// same fields may arrive as a form post or, from some integrations, as a
// query string; both are normalised into p.Fields.
func (a *Adapter) VerifyCallback(_ context.Context, id *gateway.Identity, p gateway.CallbackPayload) (*gateway.Verification, error) {
	sec, err := secrets(id)
	if err != nil {
		return nil, err
	}

	invalid := func(reason string) *gateway.Verification {
		return &gateway.Verification{Valid: false, Reason: reason, Interactive: true}
	}

	fields := make(map[string]string, len(p.Fields))
	for k := range p.Fields {
		fields[k] = p.Fields.Get(k)
	}
	if fields["txnid"] == "" || fields["status"] == "" {
		return invalid(gateway.ReasonMalformed), nil
	}

	declared := fields["hash"]
	if err := signature.Verify(signature.SchemePayUResponse, fields, sec, declared); err != nil {
		if errors.Is(err, signature.ErrSignatureMissing) {
			return invalid(gateway.ReasonSignatureMissing), nil
		}
		return invalid(gateway.ReasonSignatureMismatch), nil
	}
	if k := fields["key"]; k != "" && k != sec.Key {
		return invalid(gateway.ReasonSignatureMismatch), nil
	}

	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil {
		return invalid(gateway.ReasonMalformed), nil
	}

	raw := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "hash" {
			continue
		}
		raw[k] = v
	}

	return &gateway.Verification{
		Valid:                 true,
		TransactionRef:        fields["txnid"],
		ProviderTransactionID: fields["mihpayid"],
		DeclaredStatus:        mapStatus(fields["status"]),
		Amount:                amount,
		Currency:              "INR",
		Interactive:           true,
		Signature:             declared,
		Raw:                   raw,
	}, nil
}

func mapStatus(s string) vo.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return vo.StatusCaptured
	case "failure", "failed", "cancel", "cancelled":
		return vo.StatusFailed
	case "pending", "in progress":
		return vo.StatusProcessing
	default:
		return vo.StatusPending
	}
}
