package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
)

// FakeAdapter is a scriptable gateway.Adapter. Unset funcs fall back to a
// redirect create, ErrCaptureNotSupported and an invalid verification.
type FakeAdapter struct {
	CodeValue  string
	KindValue  gateway.Kind
	Currencies []string

	CreateFunc  func(ctx context.Context, id *gateway.Identity, req gateway.CreateRequest) (*gateway.CreateResult, error)
	CaptureFunc func(ctx context.Context, id *gateway.Identity, providerOrderID string) (*gateway.CaptureResult, error)
	VerifyFunc  func(ctx context.Context, id *gateway.Identity, p gateway.CallbackPayload) (*gateway.Verification, error)

	mu       sync.Mutex
	creates  []gateway.CreateRequest
	captures []string
}

func NewFakeAdapter(code string, currencies ...string) *FakeAdapter {
	if len(currencies) == 0 {
		currencies = []string{"USD"}
	}
	return &FakeAdapter{CodeValue: code, KindValue: gateway.KindRESTOrder, Currencies: currencies}
}

func (f *FakeAdapter) Code() string                  { return f.CodeValue }
func (f *FakeAdapter) Kind() gateway.Kind            { return f.KindValue }
func (f *FakeAdapter) SupportedCurrencies() []string { return f.Currencies }

func (f *FakeAdapter) CreatePayment(ctx context.Context, id *gateway.Identity, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	f.mu.Unlock()

	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, id, req)
	}
	return &gateway.CreateResult{RedirectURL: "https://provider.example/pay/" + req.TransactionID}, nil
}

func (f *FakeAdapter) CapturePayment(ctx context.Context, id *gateway.Identity, providerOrderID string) (*gateway.CaptureResult, error) {
	f.mu.Lock()
	f.captures = append(f.captures, providerOrderID)
	f.mu.Unlock()

	if f.CaptureFunc != nil {
		return f.CaptureFunc(ctx, id, providerOrderID)
	}
	return nil, payment.ErrCaptureNotSupported
}

func (f *FakeAdapter) VerifyCallback(ctx context.Context, id *gateway.Identity, p gateway.CallbackPayload) (*gateway.Verification, error) {
	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, id, p)
	}
	return &gateway.Verification{Valid: false, Reason: gateway.ReasonSignatureMismatch}, nil
}

// Creates returns every CreateRequest the adapter received.
func (f *FakeAdapter) Creates() []gateway.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.CreateRequest(nil), f.creates...)
}

// Captures returns the provider order ids passed to CapturePayment.
func (f *FakeAdapter) Captures() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.captures...)
}

// StaticCredentialStore resolves identities from a map.
type StaticCredentialStore struct {
	mu         sync.Mutex
	identities map[string]*gateway.Identity
	resolves   int
}

func NewStaticCredentialStore(ids ...*gateway.Identity) *StaticCredentialStore {
	s := &StaticCredentialStore{identities: make(map[string]*gateway.Identity)}
	for _, id := range ids {
		s.identities[strings.ToLower(id.Code)] = id
	}
	return s
}

func (s *StaticCredentialStore) Resolve(ctx context.Context, code string) (*gateway.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolves++

	id, ok := s.identities[strings.ToLower(code)]
	if !ok || !id.Enabled {
		return nil, fmt.Errorf("%w: %s", payment.ErrGatewayMisconfigured, code)
	}
	cp := *id
	return &cp, nil
}

func (s *StaticCredentialStore) Resolves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolves
}

// TestIdentity returns an enabled test-mode identity.
func TestIdentity(code string) *gateway.Identity {
	return &gateway.Identity{
		Code:        code,
		Mode:        gateway.ModeTest,
		Enabled:     true,
		Credentials: map[string]string{},
		Settings:    map[string]string{},
	}
}

// MockEmailDispatcher is a testify mock of usecases.EmailDispatcher.
type MockEmailDispatcher struct {
	mock.Mock
}

func (m *MockEmailDispatcher) Dispatch(ctx context.Context, recipient, template string, vars map[string]any) error {
	args := m.Called(ctx, recipient, template, vars)
	return args.Error(0)
}

// RecordingPublisher collects published events.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*payment.PaymentCapturedEvent
	done   chan struct{}

	PublishError error
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{done: make(chan struct{}, 16)}
}

func (p *RecordingPublisher) PublishCaptured(ctx context.Context, e *payment.PaymentCapturedEvent) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	select {
	case p.done <- struct{}{}:
	default:
	}
	return p.PublishError
}

// Published signals once per PublishCaptured call.
func (p *RecordingPublisher) Published() <-chan struct{} {
	return p.done
}

func (p *RecordingPublisher) Events() []*payment.PaymentCapturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*payment.PaymentCapturedEvent(nil), p.events...)
}

// FixedRateProvider serves rates from a "BASE/QUOTE" map.
type FixedRateProvider struct {
	Rates map[string]decimal.Decimal
	Err   error
}

func (p *FixedRateProvider) Rate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if p.Err != nil {
		return decimal.Zero, p.Err
	}
	r, ok := p.Rates[strings.ToUpper(base)+"/"+strings.ToUpper(quote)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s/%s", base, quote)
	}
	return r, nil
}

// StaticQuoteReader answers with a fixed summary or error.
type StaticQuoteReader struct {
	Summary *usecases.QuoteSummary
	Err     error
}

func (r *StaticQuoteReader) ReadQuotes(ctx context.Context, orderIDs []string) (*usecases.QuoteSummary, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	cp := *r.Summary
	cp.OrderIDs = orderIDs
	return &cp, nil
}

// StaticCustomerDirectory maps user ids to contacts.
type StaticCustomerDirectory struct {
	Contacts map[uint]*usecases.CustomerContact
	Err      error
}

func (d *StaticCustomerDirectory) LookupCustomer(ctx context.Context, userID uint) (*usecases.CustomerContact, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	c, ok := d.Contacts[userID]
	if !ok {
		return nil, usecases.ErrCustomerNotFound
	}
	return c, nil
}

// MockSweepLocker grants the lock unless Held is set.
type MockSweepLocker struct {
	mu       sync.Mutex
	Held     bool
	Err      error
	releases int
}

func (l *MockSweepLocker) Acquire(ctx context.Context) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, false, l.Err
	}
	if l.Held {
		return nil, false, nil
	}
	l.Held = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.Held = false
		l.releases++
	}, true, nil
}

func (l *MockSweepLocker) Releases() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releases
}
