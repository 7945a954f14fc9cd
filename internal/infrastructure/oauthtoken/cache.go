// Package oauthtoken caches OAuth2 client-credentials tokens per
// (token endpoint, client id, scope) and coalesces concurrent refreshes into one upstream call.
package oauthtoken

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/orris-inc/paygate/internal/shared/biztime"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const (
	DefaultSafetyMargin = 5 * time.Minute
	MinSafetyMargin     = time.Minute
	defaultFetchTimeout = 15 * time.Second

	// UnspecifiedLifetime is how long past the safety margin a token without
	// expires_in is served before it is fetched again.
	UnspecifiedLifetime = 10 * time.Minute
)

var ErrTokenUnavailable = errors.New("oauth token unavailable")

// ClientCredentials identifies one token: the same client id against a
// different token endpoint or with different scopes gets a different token.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func (c ClientCredentials) cacheKey() string {
	scopes := append([]string(nil), c.Scopes...)
	sort.Strings(scopes)
	return c.TokenURL + "|" + c.ClientID + "|" + strings.Join(scopes, " ")
}

// Observer is notified of cache activity; metrics implement it.
type Observer interface {
	TokenServed(cached bool)
	TokenFetchFailed()
}

type Option func(*Cache)

func WithSafetyMargin(d time.Duration) Option {
	return func(c *Cache) {
		if d < MinSafetyMargin {
			d = MinSafetyMargin
		}
		c.margin = d
	}
}

func WithClock(clock biztime.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// Cache serves tokens while now < expiry - margin.
type Cache struct {
	store        Store
	fetcher      Fetcher
	group        singleflight.Group
	margin       time.Duration
	fetchTimeout time.Duration
	clock        biztime.Clock
	observer     Observer
	logger       logger.Interface
}

func NewCache(store Store, fetcher Fetcher, log logger.Interface, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		fetcher:      fetcher,
		margin:       DefaultSafetyMargin,
		fetchTimeout: defaultFetchTimeout,
		clock:        biztime.SystemClock(),
		logger:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetToken returns a usable access token, fetching one if the cached entry
// is missing or inside the safety margin.
func (c *Cache) GetToken(ctx context.Context, creds ClientCredentials) (string, error) {
	key := creds.cacheKey()
	if e, ok := c.lookup(ctx, key); ok {
		c.served(true)
		return e.AccessToken, nil
	}
	e, err := c.acquire(ctx, creds, key, false)
	if err != nil {
		return "", err
	}
	c.served(false)
	return e.AccessToken, nil
}

// RefreshToken discards the cached entry and acquires a new token. Callers
// use it after the provider rejected a token with 401.
func (c *Cache) RefreshToken(ctx context.Context, creds ClientCredentials) (string, error) {
	key := creds.cacheKey()
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warnw("failed to evict cached oauth token", "client_id", creds.ClientID, "error", err)
	}
	e, err := c.acquire(ctx, creds, key, true)
	if err != nil {
		return "", err
	}
	return e.AccessToken, nil
}

// ValidateToken reports the remaining usable lifetime of the cached token
// without fetching or evicting anything.
func (c *Cache) ValidateToken(ctx context.Context, creds ClientCredentials) (time.Duration, bool) {
	e, found, err := c.store.Get(ctx, creds.cacheKey())
	if err != nil || !found {
		return 0, false
	}
	ttl := e.Expiry.Add(-c.margin).Sub(c.clock.Now())
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	e, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warnw("oauth token store read failed", "error", err)
		return Entry{}, false
	}
	if !found || !c.usable(e) {
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) usable(e Entry) bool {
	return e.AccessToken != "" && c.clock.Now().Before(e.Expiry.Add(-c.margin))
}

// acquire runs at most one fetch per key at a time. The fetch is detached
// from the first caller's cancellation so other waiters still get a result;
// each caller stops waiting when its own context ends.
func (c *Cache) acquire(ctx context.Context, creds ClientCredentials, key string, force bool) (Entry, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if !force {
			if e, ok := c.lookup(ctx, key); ok {
				return e, nil
			}
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		e, err := c.fetcher.Fetch(fetchCtx, creds)
		if err != nil {
			if c.observer != nil {
				c.observer.TokenFetchFailed()
			}
			c.logger.Errorw("oauth token fetch failed", "client_id", creds.ClientID, "error", err)
			return Entry{}, errors.Join(ErrTokenUnavailable, err)
		}
		if e.Expiry.IsZero() {
			e.Expiry = c.clock.Now().Add(c.margin + UnspecifiedLifetime)
		}
		if err := c.store.Set(fetchCtx, key, e); err != nil {
			c.logger.Warnw("failed to cache oauth token", "client_id", creds.ClientID, "error", err)
		}
		return e, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func (c *Cache) served(cached bool) {
	if c.observer != nil {
		c.observer.TokenServed(cached)
	}
}
