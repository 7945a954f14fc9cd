// Package paymentstack assembles the payment ledger, gateway adapters and use
// cases from configuration. The HTTP server, the worker and the CLI share it
// so every process runs the same wiring.
package paymentstack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/infrastructure/cache"
	"github.com/orris-inc/paygate/internal/infrastructure/config"
	"github.com/orris-inc/paygate/internal/infrastructure/credentials"
	"github.com/orris-inc/paygate/internal/infrastructure/email"
	"github.com/orris-inc/paygate/internal/infrastructure/exchangerate"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/esewa"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/paypal"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/paypalinvoice"
	"github.com/orris-inc/paygate/internal/infrastructure/gateways/payu"
	"github.com/orris-inc/paygate/internal/infrastructure/metrics"
	"github.com/orris-inc/paygate/internal/infrastructure/oauthtoken"
	"github.com/orris-inc/paygate/internal/infrastructure/pubsub"
	"github.com/orris-inc/paygate/internal/infrastructure/repository"
	"github.com/orris-inc/paygate/internal/infrastructure/template"
	"github.com/orris-inc/paygate/internal/shared/db"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/services/markdown"
)

const (
	tokenKeyPrefix = "paygate:oauth:"
	sweepLockKey   = "paygate:lock:recovery-sweep"
)

// Stack is the assembled payment core.
type Stack struct {
	Ledger      *ledger.Service
	Registry    *gateway.Registry
	Credentials gateway.CredentialStore
	Publisher   usecases.FulfillmentPublisher
	Callbacks   *repository.CallbackEventRepository

	CreatePayment  *usecases.CreatePaymentUseCase
	GetPayment     *usecases.GetPaymentUseCase
	CapturePayment *usecases.CapturePaymentUseCase
	HandleCallback *usecases.HandleCallbackUseCase
	RecoverySweep  *usecases.RecoverySweepUseCase
	Expire         *usecases.ExpireTransactionsUseCase
	ReviewQueue    *usecases.ListReviewQueueUseCase
	Audit          *usecases.GetTransactionAuditUseCase

	closers []io.Closer
	logger  logger.Interface
}

// Build wires the payment core. redisClient may be nil when no configured
// component needs Redis; m may be nil to skip metrics.
func Build(cfg *config.Config, gormDB *gorm.DB, redisClient *redis.Client, m *metrics.Metrics, log logger.Interface) (*Stack, error) {
	if err := requireRedis(cfg, redisClient); err != nil {
		return nil, err
	}

	s := &Stack{logger: log}

	txns := repository.NewTransactionRepository(gormDB)
	events := repository.NewTransactionEventRepository(gormDB)
	s.Callbacks = repository.NewCallbackEventRepository(gormDB)
	notifications := repository.NewRecoveryNotificationRepository(gormDB)

	s.Ledger = ledger.NewService(txns, events, db.NewTransactionManager(gormDB), log.Named("ledger"),
		ledger.WithMaxRetries(cfg.Payment.TransitionRetries),
	)

	creds, err := NewCredentialStore(cfg, gormDB, log)
	if err != nil {
		return nil, err
	}
	s.Credentials = creds

	httpClient := &http.Client{Timeout: cfg.Payment.HTTPTimeout()}
	tokens := newTokenCache(cfg, redisClient, httpClient, m, log)
	s.Registry = gateway.NewRegistry(
		esewa.New(httpClient, log.Named("esewa")),
		payu.New(log.Named("payu")),
		paypal.New(httpClient, tokens, log.Named("paypal")),
		paypalinvoice.New(httpClient, tokens, log.Named("paypal_invoice")),
	)

	publisher, closer, err := pubsub.NewFulfillmentPublisher(cfg.Fulfillment, redisClient, log.Named("fulfillment"))
	if err != nil {
		return nil, err
	}
	s.Publisher = publisher
	s.closers = append(s.closers, closer)

	rates := exchangerate.NewOpenERAPIService(
		cfg.ExchangeRate.BaseURL,
		time.Duration(cfg.ExchangeRate.CacheTTLSeconds)*time.Second,
		time.Duration(cfg.ExchangeRate.MaxStaleMinutes)*time.Minute,
		log.Named("exchange_rate"),
	)

	s.CreatePayment = usecases.NewCreatePaymentUseCase(s.Ledger, s.Registry, s.Credentials, rates, log, usecases.CreatePaymentConfig{
		CallbackBaseURL: cfg.Payment.CallbackBaseURL,
		ProviderTimeout: cfg.Payment.HTTPTimeout(),
	})
	s.CreatePayment.SetQuoteReader(repository.NewQuoteReader(gormDB))
	s.GetPayment = usecases.NewGetPaymentUseCase(s.Ledger, log)
	s.CapturePayment = usecases.NewCapturePaymentUseCase(s.Ledger, s.Registry, s.Credentials, s.Publisher, log)
	s.HandleCallback = usecases.NewHandleCallbackUseCase(s.Ledger, s.Registry, s.Credentials, s.Callbacks, s.CapturePayment, s.Publisher, log)
	s.Expire = usecases.NewExpireTransactionsUseCase(s.Ledger, log)
	s.ReviewQueue = usecases.NewListReviewQueueUseCase(s.Ledger, log)
	s.Audit = usecases.NewGetTransactionAuditUseCase(s.Ledger, s.Callbacks, log)

	dispatcher := email.NewSMTPDispatcher(email.SMTPConfig{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		Username:    cfg.Email.SMTPUser,
		Password:    cfg.Email.SMTPPassword,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
	}, template.NewLoader("", log), markdown.NewMarkdownService(), log.Named("email"))

	s.RecoverySweep = usecases.NewRecoverySweepUseCase(s.Ledger, notifications, dispatcher, log, usecases.RecoverySweepConfig{
		Threshold: cfg.Payment.ReminderThreshold(),
		BatchSize: cfg.Payment.SweepBatchSize,
	})
	s.RecoverySweep.SetCustomerDirectory(repository.NewCustomerDirectory(gormDB))
	if cfg.Payment.SweepLockEnabled {
		s.RecoverySweep.SetLocker(cache.NewRedisSweepLock(redisClient, sweepLockKey, cfg.Payment.SweepInterval(), log))
	}

	if m != nil {
		s.CreatePayment.SetObserver(m)
		s.HandleCallback.SetObserver(m)
	}

	log.Infow("payment stack ready",
		"gateways", s.Registry.Codes(),
		"credential_source", cfg.Gateways.Source,
		"fulfillment_driver", cfg.Fulfillment.Driver,
		"token_store", cfg.Payment.TokenStore,
	)
	return s, nil
}

// Close flushes publishers. It is safe to call more than once.
func (s *Stack) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewCredentialStore returns the identity source cfg.Gateways.Source selects.
func NewCredentialStore(cfg *config.Config, gormDB *gorm.DB, log logger.Interface) (gateway.CredentialStore, error) {
	switch cfg.Gateways.Source {
	case "", "file":
		return credentials.NewFileStore(cfg.Gateways.FilePath), nil
	case "database":
		sealer, err := credentials.NewSealer(cfg.Gateways.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid gateways.encryption_key: %w", err)
		}
		return credentials.NewDBStore(gormDB, sealer, log.Named("credentials")), nil
	default:
		return nil, fmt.Errorf("unsupported gateways source %q", cfg.Gateways.Source)
	}
}

func newTokenCache(cfg *config.Config, redisClient *redis.Client, httpClient *http.Client, m *metrics.Metrics, log logger.Interface) *oauthtoken.Cache {
	var store oauthtoken.Store = oauthtoken.NewMemoryStore()
	if cfg.Payment.TokenStore == "redis" {
		store = oauthtoken.NewRedisStore(redisClient, tokenKeyPrefix)
	}
	opts := []oauthtoken.Option{
		oauthtoken.WithSafetyMargin(cfg.Payment.TokenSafetyMargin()),
		oauthtoken.WithFetchTimeout(cfg.Payment.HTTPTimeout()),
	}
	if m != nil {
		opts = append(opts, oauthtoken.WithObserver(m))
	}
	return oauthtoken.NewCache(store, oauthtoken.NewClientCredentialsFetcher(httpClient), log.Named("oauth_token"), opts...)
}

// NeedsRedis reports whether any configured component talks to Redis.
func NeedsRedis(cfg *config.Config) bool {
	return cfg.Payment.TokenStore == "redis" ||
		cfg.Payment.SweepLockEnabled ||
		cfg.Fulfillment.Driver == "redis"
}

func requireRedis(cfg *config.Config, redisClient *redis.Client) error {
	if NeedsRedis(cfg) && redisClient == nil {
		return fmt.Errorf("redis is required by payment.token_store, payment.sweep_lock_enabled or fulfillment.driver")
	}
	return nil
}

// ConnectRedis opens a client and checks it answers.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.GetAddr(), err)
	}
	return client, nil
}
