// Package metrics exposes payment counters and request latencies to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/infrastructure/oauthtoken"
)

const namespace = "paygate"

// Metrics holds every collector the service exports. It implements the
// observer hooks of the oauth token cache and the callback processor.
type Metrics struct {
	paymentsCreated  *prometheus.CounterVec
	callbacks        *prometheus.CounterVec
	oauthTokens      *prometheus.CounterVec
	oauthFetchErrors prometheus.Counter
	sweepNotified    prometheus.Counter
	sweepErrors      prometheus.Counter
	sweepLastRun     prometheus.Gauge
	expired          prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

var (
	_ oauthtoken.Observer       = (*Metrics)(nil)
	_ usecases.CallbackObserver = (*Metrics)(nil)
	_ usecases.CreateObserver   = (*Metrics)(nil)
)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_created_total",
			Help:      "Payments initiated, by gateway and resulting status.",
		}, []string{"gateway", "status"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Provider callbacks processed, by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		oauthTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_tokens_served_total",
			Help:      "OAuth access tokens handed to adapters, by cache result.",
		}, []string{"result"}),
		oauthFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_token_fetch_errors_total",
			Help:      "Failed OAuth token fetches.",
		}),
		sweepNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_reminders_sent_total",
			Help:      "Payment reminder emails sent by the recovery sweep.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_sweep_errors_total",
			Help:      "Transactions the recovery sweep failed to process.",
		}),
		sweepLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recovery_sweep_last_run_timestamp_seconds",
			Help:      "Unix time the last recovery sweep finished.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_expired_total",
			Help:      "Open transactions failed by the expiry job.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.paymentsCreated,
		m.callbacks,
		m.oauthTokens,
		m.oauthFetchErrors,
		m.sweepNotified,
		m.sweepErrors,
		m.sweepLastRun,
		m.expired,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) TokenServed(cached bool) {
	result := "fetched"
	if cached {
		result = "cached"
	}
	m.oauthTokens.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenFetchFailed() {
	m.oauthFetchErrors.Inc()
}

func (m *Metrics) CallbackProcessed(gatewayCode string, outcome payment.CallbackOutcome) {
	m.callbacks.WithLabelValues(gatewayCode, string(outcome)).Inc()
}

func (m *Metrics) PaymentCreated(gatewayCode, status string) {
	m.paymentsCreated.WithLabelValues(gatewayCode, status).Inc()
}

func (m *Metrics) SweepCompleted(report *usecases.SweepReport) {
	if report == nil || report.LockHeld {
		return
	}
	m.sweepNotified.Add(float64(report.Notified))
	m.sweepErrors.Add(float64(len(report.Errors)))
	m.sweepLastRun.Set(float64(report.FinishedAt.Unix()))
}

func (m *Metrics) TransactionsExpired(n int) {
	m.expired.Add(float64(n))
}

// ObserveHTTP records one served request. route is the matched pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
