package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/paygate/internal/application/payment/exchangerate"
	"github.com/orris-inc/paygate/internal/shared/biztime"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const (
	requestTimeout = 10 * time.Second
	// Maximum response body size for exchange rate API (64KB)
	maxResponseSize = 64 << 10
	// A fresh quote moving more than this against the cached one is treated as bad data.
	maxRateChangePercent = 0.10
)

type erAPIResponse struct {
	Result   string                     `json:"result"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

type cachedTable struct {
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

// OpenERAPIService quotes rates from an open.er-api.com compatible endpoint
// ({baseURL}/{BASE}). Tables are cached per base currency; a stale table is
// served for up to maxStale when the API is down.
type OpenERAPIService struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	maxStale   time.Duration
	clock      biztime.Clock
	logger     logger.Interface

	mu     sync.RWMutex
	tables map[string]cachedTable
}

func NewOpenERAPIService(baseURL string, cacheTTL, maxStale time.Duration, log logger.Interface) *OpenERAPIService {
	return &OpenERAPIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		cacheTTL:   cacheTTL,
		maxStale:   maxStale,
		clock:      biztime.SystemClock(),
		logger:     log,
		tables:     make(map[string]cachedTable),
	}
}

var _ exchangerate.RateProvider = (*OpenERAPIService)(nil)

// Rate returns how many units of quote one unit of base buys.
func (s *OpenERAPIService) Rate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	if base == quote {
		return decimal.NewFromInt(1), nil
	}

	now := s.clock.Now()
	s.mu.RLock()
	cached, hasCache := s.tables[base]
	s.mu.RUnlock()

	if hasCache && now.Sub(cached.fetchedAt) < s.cacheTTL {
		return pick(cached.rates, base, quote)
	}

	rates, err := s.fetch(ctx, base)
	if err != nil {
		if hasCache && now.Sub(cached.fetchedAt) < s.maxStale {
			s.logger.Warnw("failed to fetch exchange rates, using cached table",
				"base", base,
				"error", err,
				"cache_age", now.Sub(cached.fetchedAt),
			)
			return pick(cached.rates, base, quote)
		}
		return decimal.Zero, fmt.Errorf("failed to get %s/%s rate: %w", base, quote, err)
	}

	if hasCache {
		if old, ok := cached.rates[quote]; ok && old.IsPositive() {
			if fresh, ok := rates[quote]; ok {
				change := fresh.Sub(old).Abs().Div(old).InexactFloat64()
				if change > maxRateChangePercent {
					s.logger.Warnw("exchange rate change exceeds threshold, keeping cached value",
						"base", base,
						"quote", quote,
						"cached_rate", old.String(),
						"new_rate", fresh.String(),
						"change_percent", change*100,
					)
					return old, nil
				}
			}
		}
	}

	s.mu.Lock()
	s.tables[base] = cachedTable{rates: rates, fetchedAt: now}
	s.mu.Unlock()

	return pick(rates, base, quote)
}

func pick(rates map[string]decimal.Decimal, base, quote string) (decimal.Decimal, error) {
	r, ok := rates[quote]
	if !ok || !r.IsPositive() {
		return decimal.Zero, fmt.Errorf("no %s/%s rate available", base, quote)
	}
	return r, nil
}

func (s *OpenERAPIService) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+base, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var data erAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if data.Result != "success" || len(data.Rates) == 0 {
		return nil, fmt.Errorf("exchange rate api returned result %q", data.Result)
	}

	s.logger.Infow("fetched exchange rate table", "base", base, "currencies", len(data.Rates))
	return data.Rates, nil
}
