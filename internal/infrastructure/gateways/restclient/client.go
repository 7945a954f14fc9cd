// Package restclient is the JSON-over-HTTP client shared by gateway adapters.
// Every failure is reported as *payment.UpstreamError.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

const (
	maxResponseSize = 1 << 20
	maxErrorBody    = 2 << 10
	DefaultTimeout  = 15 * time.Second
)

// Request describes one provider call. Body, when set, is encoded as JSON.
type Request struct {
	Operation string
	Method    string
	URL       string
	Header    http.Header
	Body      any
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, out)
}

// Raw decodes the body into a generic map for snapshots; non-object bodies yield nil.
func (r *Response) Raw() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		return nil
	}
	return m
}

type Client struct {
	gateway    string
	httpClient *http.Client
	tracer     trace.Tracer
	logger     logger.Interface
}

func New(gateway string, httpClient *http.Client, log logger.Interface) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		gateway:    gateway,
		httpClient: httpClient,
		tracer:     otel.Tracer("github.com/orris-inc/paygate/gateways"),
		logger:     log,
	}
}

// HTTPClient exposes the underlying client, e.g. for the OAuth token exchange.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do sends req and returns the response for any 2xx status.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, c.gateway+"."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("payment.gateway", c.gateway),
			attribute.String("http.request.method", req.Method),
		))
	defer span.End()

	resp, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, c.upstream(req, 0, "", fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, c.upstream(req, 0, "", fmt.Errorf("failed to create request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.upstream(req, 0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.upstream(req, resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debugw("provider call completed",
		"gateway", c.gateway,
		"operation", req.Operation,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.upstream(req, resp.StatusCode, utils.Truncate(string(data), maxErrorBody), nil)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) upstream(req Request, status int, body string, err error) error {
	return &payment.UpstreamError{
		Gateway:    c.gateway,
		Operation:  req.Operation,
		StatusCode: status,
		Body:       body,
		Err:        err,
	}
}

// IsStatus reports whether err is an upstream error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var up *payment.UpstreamError
	if !errors.As(err, &up) {
		return false
	}
	return up.StatusCode == status
}
