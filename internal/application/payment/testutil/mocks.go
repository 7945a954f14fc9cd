// Package testutil provides in-memory implementations of the payment ports
// for application layer tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
)

// Clone copies a transaction so stored state cannot be mutated through a
// returned pointer, the way a database round trip behaves.
func Clone(t *payment.Transaction) *payment.Transaction {
	raw := make(map[string]any, len(t.RawResponse()))
	for k, v := range t.RawResponse() {
		raw[k] = v
	}
	meta := make(map[string]string, len(t.Metadata()))
	for k, v := range t.Metadata() {
		meta[k] = v
	}
	var conv *payment.Conversion
	if c := t.Conversion(); c != nil {
		cp := *c
		conv = &cp
	}
	out, err := payment.ReconstructTransaction(payment.ReconstructParams{
		ID:                    t.ID(),
		TransactionID:         t.TransactionID(),
		GatewayCode:           t.GatewayCode(),
		ProviderTransactionID: t.ProviderTransactionID(),
		UserID:                t.UserID(),
		OrderIDs:              t.OrderIDs(),
		Amount:                t.Amount(),
		Conversion:            conv,
		Status:                t.Status(),
		FailureReason:         t.FailureReason(),
		NeedsReview:           t.NeedsReview(),
		ReviewReason:          t.ReviewReason(),
		Customer:              t.Customer(),
		Metadata:              meta,
		RawResponse:           raw,
		SuccessURL:            t.SuccessURL(),
		CancelURL:             t.CancelURL(),
		ExpiresAt:             t.ExpiresAt(),
		CapturedAt:            t.CapturedAt(),
		Version:               t.Version(),
		CreatedAt:             t.CreatedAt(),
		UpdatedAt:             t.UpdatedAt(),
	})
	if err != nil {
		panic(err)
	}
	return out
}

// MockTransactionRepository is an in-memory payment.TransactionRepository
// with the same conditional update semantics as the gorm implementation.
type MockTransactionRepository struct {
	mu     sync.RWMutex
	txns   map[string]*payment.Transaction
	nextID uint

	// BeforeCompareAndUpdate runs before each conditional update, outside the
	// lock. Tests use it to interleave a competing writer.
	BeforeCompareAndUpdate func(t *payment.Transaction)

	// Notified mirrors the NOT EXISTS join on recovery notifications in
	// ListStalePending. Nil means nothing was notified.
	Notified func(transactionID string) bool

	// Error injection for testing
	CreateError error
	GetError    error
	UpdateError error
	ListError   error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{txns: make(map[string]*payment.Transaction)}
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *payment.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateError != nil {
		return m.CreateError
	}
	m.nextID++
	t.SetID(m.nextID)
	m.txns[t.TransactionID()] = Clone(t)
	return nil
}

func (m *MockTransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	t, ok := m.txns[transactionID]
	if !ok {
		return nil, payment.ErrTransactionNotFound
	}
	return Clone(t), nil
}

func (m *MockTransactionRepository) GetByProviderTransactionID(ctx context.Context, gatewayCode, providerTransactionID string) (*payment.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	for _, t := range m.txns {
		if t.GatewayCode() == gatewayCode && t.ProviderTransactionID() == providerTransactionID {
			return Clone(t), nil
		}
	}
	return nil, payment.ErrTransactionNotFound
}

func (m *MockTransactionRepository) CompareAndUpdate(ctx context.Context, t *payment.Transaction, expectedStatus vo.TransactionStatus, expectedVersion int) (bool, error) {
	if hook := m.BeforeCompareAndUpdate; hook != nil {
		hook(t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	stored, ok := m.txns[t.TransactionID()]
	if !ok || stored.Status() != expectedStatus || stored.Version() != expectedVersion {
		return false, nil
	}
	m.txns[t.TransactionID()] = Clone(t)
	return true, nil
}

func (m *MockTransactionRepository) MarkNeedsReview(ctx context.Context, transactionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateError != nil {
		return m.UpdateError
	}
	stored, ok := m.txns[transactionID]
	if !ok {
		return payment.ErrTransactionNotFound
	}
	flagged := Clone(stored)
	flagged.FlagForReview(reason, stored.UpdatedAt())
	m.txns[transactionID] = flagged
	return nil
}

func (m *MockTransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Transaction, error) {
	return m.list(func(t *payment.Transaction) bool {
		if m.Notified != nil && m.Notified(t.TransactionID()) {
			return false
		}
		return t.Status() == vo.StatusPending && t.CreatedAt().Before(cutoff)
	}, limit)
}

func (m *MockTransactionRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*payment.Transaction, error) {
	return m.list(func(t *payment.Transaction) bool {
		return !t.IsFinal() && t.ExpiresAt() != nil && t.ExpiresAt().Before(now)
	}, limit)
}

func (m *MockTransactionRepository) ListNeedsReview(ctx context.Context, page, pageSize int) ([]*payment.Transaction, int64, error) {
	all, err := m.list(func(t *payment.Transaction) bool { return t.NeedsReview() }, 0)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start < 0 || start >= len(all) {
		return []*payment.Transaction{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *MockTransactionRepository) list(match func(*payment.Transaction) bool, limit int) ([]*payment.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListError != nil {
		return nil, m.ListError
	}
	var out []*payment.Transaction
	for _, t := range m.txns {
		if match(t) {
			out = append(out, Clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores t as is, bypassing Create. Tests use it to seed state.
func (m *MockTransactionRepository) Put(t *payment.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID() == 0 {
		m.nextID++
		t.SetID(m.nextID)
	}
	m.txns[t.TransactionID()] = Clone(t)
}

// Stored returns the persisted copy of a transaction, or nil.
func (m *MockTransactionRepository) Stored(transactionID string) *payment.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txns[transactionID]
	if !ok {
		return nil
	}
	return Clone(t)
}

func (m *MockTransactionRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txns)
}

// MockTransactionEventRepository records audit events in memory.
type MockTransactionEventRepository struct {
	mu     sync.RWMutex
	events []*payment.TransactionEvent

	AppendError error
}

func NewMockTransactionEventRepository() *MockTransactionEventRepository {
	return &MockTransactionEventRepository{}
}

func (m *MockTransactionEventRepository) Append(ctx context.Context, e *payment.TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendError != nil {
		return m.AppendError
	}
	cp := *e
	cp.ID = uint(len(m.events) + 1)
	m.events = append(m.events, &cp)
	return nil
}

func (m *MockTransactionEventRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*payment.TransactionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*payment.TransactionEvent
	for _, e := range m.events {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Kinds returns the event kinds recorded for a transaction in order.
func (m *MockTransactionEventRepository) Kinds(transactionID string) []payment.EventKind {
	events, _ := m.ListByTransactionID(context.Background(), transactionID)
	kinds := make([]payment.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// MockCallbackEventRepository records inbound callbacks in memory.
type MockCallbackEventRepository struct {
	mu     sync.RWMutex
	events []*payment.CallbackEvent

	SaveError error
}

func NewMockCallbackEventRepository() *MockCallbackEventRepository {
	return &MockCallbackEventRepository{}
}

func (m *MockCallbackEventRepository) Save(ctx context.Context, e *payment.CallbackEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveError != nil {
		return m.SaveError
	}
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *MockCallbackEventRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*payment.CallbackEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*payment.CallbackEvent
	for _, e := range m.events {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every recorded callback in arrival order.
func (m *MockCallbackEventRepository) All() []*payment.CallbackEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*payment.CallbackEvent(nil), m.events...)
}

// MockRecoveryNotificationRepository enforces one notification per transaction.
type MockRecoveryNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*payment.RecoveryNotification

	RecordError error
}

func NewMockRecoveryNotificationRepository() *MockRecoveryNotificationRepository {
	return &MockRecoveryNotificationRepository{notifications: make(map[string]*payment.RecoveryNotification)}
}

func (m *MockRecoveryNotificationRepository) Record(ctx context.Context, n *payment.RecoveryNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecordError != nil {
		return m.RecordError
	}
	if _, ok := m.notifications[n.TransactionID]; ok {
		return payment.ErrAlreadyNotified
	}
	cp := *n
	cp.ID = uint(len(m.notifications) + 1)
	m.notifications[n.TransactionID] = &cp
	return nil
}

func (m *MockRecoveryNotificationRepository) Exists(ctx context.Context, transactionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.notifications[transactionID]
	return ok, nil
}

// Has reports whether transactionID has a notification. It suits
// MockTransactionRepository.Notified.
func (m *MockRecoveryNotificationRepository) Has(transactionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.notifications[transactionID]
	return ok
}

// Get returns the stored notification for transactionID, or nil.
func (m *MockRecoveryNotificationRepository) Get(transactionID string) *payment.RecoveryNotification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.notifications[transactionID]; ok {
		cp := *n
		return &cp
	}
	return nil
}

func (m *MockRecoveryNotificationRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifications)
}

// PassthroughTxManager runs fn directly. The in-memory repositories are
// individually atomic, which is all the application tests rely on.
type PassthroughTxManager struct{}

func (PassthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
