package paypal

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/restclient"
	"github.com/orris-inc/paygate/internal/infrastructure/oauthtoken"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const (
	SandboxBase = "https://api-m.sandbox.paypal.com"
	LiveBase    = "https://api-m.paypal.com"
	tokenPath   = "/v1/oauth2/token"

	credClientID     = "client_id"
	credClientSecret = "client_secret"
)

// Client is a bearer-authenticated PayPal REST client. Tokens come from the
// shared oauthtoken cache; a 401 evicts the token and the call is retried
// once with a fresh one.
type Client struct {
	rest   *restclient.Client
	tokens *oauthtoken.Cache
	logger logger.Interface
}

func NewClient(gatewayCode string, httpClient *http.Client, tokens *oauthtoken.Cache, log logger.Interface) *Client {
	return &Client{
		rest:   restclient.New(gatewayCode, httpClient, log),
		tokens: tokens,
		logger: log,
	}
}

// BaseURL picks the REST host for the identity's mode unless overridden.
func BaseURL(id *gateway.Identity) string {
	if id.BaseURL != "" {
		return strings.TrimRight(id.BaseURL, "/")
	}
	if id.IsLive() {
		return LiveBase
	}
	return SandboxBase
}

// Credentials derives the token request for id and scopes.
func Credentials(id *gateway.Identity, scopes ...string) (oauthtoken.ClientCredentials, error) {
	clientID := id.Credential(credClientID)
	secret := id.Credential(credClientSecret)
	if clientID == "" || secret == "" {
		return oauthtoken.ClientCredentials{}, fmt.Errorf("%w: %s requires %s and %s",
			payment.ErrGatewayMisconfigured, id.Code, credClientID, credClientSecret)
	}
	return oauthtoken.ClientCredentials{
		TokenURL:     BaseURL(id) + tokenPath,
		ClientID:     clientID,
		ClientSecret: secret,
		Scopes:       scopes,
	}, nil
}

// Do sends req with req.URL interpreted as a path on the identity's host.
func (c *Client) Do(ctx context.Context, id *gateway.Identity, scopes []string, req restclient.Request) (*restclient.Response, error) {
	creds, err := Credentials(id, scopes...)
	if err != nil {
		return nil, err
	}
	req.URL = BaseURL(id) + req.URL

	token, err := c.tokens.GetToken(ctx, creds)
	if err != nil {
		return nil, &payment.UpstreamError{Gateway: id.Code, Operation: "oauth", Err: err}
	}
	resp, err := c.rest.Do(ctx, withBearer(req, token))
	if !restclient.IsStatus(err, http.StatusUnauthorized) {
		return resp, err
	}

	c.logger.Warnw("paypal rejected cached token, refreshing", "gateway", id.Code, "operation", req.Operation)
	token, err = c.tokens.RefreshToken(ctx, creds)
	if err != nil {
		return nil, &payment.UpstreamError{Gateway: id.Code, Operation: "oauth", Err: err}
	}
	return c.rest.Do(ctx, withBearer(req, token))
}

func withBearer(req restclient.Request, token string) restclient.Request {
	h := req.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Authorization", "Bearer "+token)
	req.Header = h
	return req
}

// Amount is PayPal's money object.
type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// NewAmount formats amount with the currency's minor unit precision.
func NewAmount(amount decimal.Decimal, currency string) Amount {
	currency = strings.ToUpper(currency)
	return Amount{CurrencyCode: currency, Value: amount.StringFixed(vo.MinorUnits(currency))}
}

// Decimal parses the value, returning zero for an empty or invalid value.
func (a Amount) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// FindLink returns the href of the first link with one of rels.
func FindLink(links []Link, rels ...string) string {
	for _, rel := range rels {
		for _, l := range links {
			if strings.EqualFold(l.Rel, rel) {
				return l.Href
			}
		}
	}
	return ""
}

// Webhook is the envelope PayPal posts to webhook listeners.
type Webhook struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	Resource     map[string]any `json:"resource"`
}

// SupportedCurrencies are the currencies PayPal settles in.
var SupportedCurrencies = []string{"USD", "EUR", "GBP", "AUD", "CAD", "JPY", "SGD", "HKD", "CHF", "SEK", "NZD"}

// CheckCurrency returns ErrUnsupportedCurrency for currencies PayPal cannot settle.
func CheckCurrency(currency string) error {
	for _, c := range SupportedCurrencies {
		if strings.EqualFold(c, currency) {
			return nil
		}
	}
	return fmt.Errorf("%w: paypal cannot settle %s", payment.ErrUnsupportedCurrency, currency)
}
