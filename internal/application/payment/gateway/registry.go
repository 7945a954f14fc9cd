package gateway

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/orris-inc/paygate/internal/domain/payment"
)

// Registry maps gateway codes to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its code.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Code())] = a
}

func (r *Registry) Get(code string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(code)]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %q", payment.ErrGatewayMisconfigured, code)
	}
	return a, nil
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.adapters))
	for c := range r.adapters {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Supports reports whether adapter a settles in currency.
func Supports(a Adapter, currency string) bool {
	for _, c := range a.SupportedCurrencies() {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}
