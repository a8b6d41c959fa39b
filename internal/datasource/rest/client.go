// Package rest implements the data source against the watchlist HTTP backend.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"stockwatch/internal/datasource"
	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/resilience"
	"stockwatch/internal/trace"
	"stockwatch/pkg/utils"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 2 << 20

// Config holds REST client configuration.
type Config struct {
	// BaseURL is the collection endpoint, e.g. http://localhost:8080/api/stocks.
	BaseURL    string
	Timeout    time.Duration
	Retry      utils.RetryConfig
	Breaker    resilience.CircuitBreakerConfig
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Retry:   utils.DefaultRetryConfig(),
		Breaker: resilience.DefaultCircuitBreakerConfig(),
	}
}

// Client talks to the /api/stocks backend.
type Client struct {
	baseURL string
	http    *http.Client
	retry   utils.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

var _ datasource.Source = (*Client)(nil)

// errorResponse covers both {"error": ...} and Spring's {"message": ...} bodies.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New creates a REST client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.NewValidationError("source.base_url", cfg.BaseURL, "base url is empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errors.NewValidationError("source.base_url", cfg.BaseURL, err.Error())
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger = logging.WithComponent(logger, "rest")

	retry := cfg.Retry
	retry.Retryable = isTransient

	breakerCfg := cfg.Breaker
	breakerCfg.IsFailure = isTransient
	breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit breaker state changed")
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker("watchlist-api", breakerCfg),
		logger:  logger,
	}, nil
}

// BaseURL returns the collection endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Breaker returns the circuit breaker guarding the backend.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// List returns every active record.
func (c *Client) List(ctx context.Context) ([]models.PlanRecord, error) {
	var wire []wireRecord
	if err := c.call(ctx, http.MethodGet, "", nil, &wire, true); err != nil {
		return nil, err
	}
	out := make([]models.PlanRecord, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toRecord())
	}
	return out, nil
}

// Create posts a new record. The backend re-activates a previously removed
// code and returns its original id.
func (c *Client) Create(ctx context.Context, draft models.PlanRecord) (models.PlanRecord, error) {
	var wire wireRecord
	body := newPayload(draft.InstrumentCode, draft.Fields())
	if err := c.call(ctx, http.MethodPost, "", body, &wire, false); err != nil {
		return models.PlanRecord{}, err
	}
	r := wire.toRecord()
	if r.ID == "" {
		return models.PlanRecord{}, fmt.Errorf("create %s: response carried no id", draft.InstrumentCode)
	}
	if r.InstrumentCode == "" {
		r.InstrumentCode = draft.InstrumentCode
		r.Symbol = models.SymbolOf(draft.InstrumentCode)
	}
	return r, nil
}

// Update replaces the user-owned fields of a record.
func (c *Client) Update(ctx context.Context, id string, fields models.PlanFields) (models.PlanRecord, error) {
	var wire wireRecord
	if err := c.call(ctx, http.MethodPut, "/"+url.PathEscape(id), newPayload("", fields), &wire, false); err != nil {
		return models.PlanRecord{}, notFound(err)
	}
	r := wire.toRecord()
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}

// Remove deletes a record.
func (c *Client) Remove(ctx context.Context, id string) error {
	return notFound(c.call(ctx, http.MethodDelete, "/"+url.PathEscape(id), nil, nil, false))
}

// Search queries the instrument catalog of the backend.
func (c *Client) Search(ctx context.Context, keyword string) ([]models.SearchResult, error) {
	var results []models.SearchResult
	path := "/search?keyword=" + url.QueryEscape(keyword)
	if err := c.call(ctx, http.MethodGet, path, nil, &results, true); err != nil {
		return nil, err
	}
	if len(results) > datasource.MaxSearchResults {
		results = results[:datasource.MaxSearchResults]
	}
	return results, nil
}

// call runs one request through the circuit breaker. Idempotent calls are retried.
func (c *Client) call(ctx context.Context, method, path string, body, out any, idempotent bool) error {
	ctx, span := trace.StartSpan(ctx, "watchlist.api",
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
	start := time.Now()

	attempt := func() (struct{}, error) {
		return resilience.ExecuteWithResult(c.breaker, ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.do(ctx, method, path, body, out)
		})
	}

	var err error
	if idempotent {
		_, err = utils.RetryWithResult(ctx, c.retry, attempt)
	} else {
		_, err = attempt()
	}

	logging.LogAPICall(c.logger, method, path, time.Since(start), err)
	trace.End(span, err)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewAPIError(method, path, resp.StatusCode, errorMessage(b))
	}

	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if msg := strings.TrimSpace(er.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(er.Error); msg != "" {
			return msg
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// notFound maps a 404 response to datasource.ErrNotFound.
func notFound(err error) error {
	var apiErr *errors.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %v", datasource.ErrNotFound, err)
	}
	return err
}

// isTransient reports whether err is worth retrying and counts against the breaker.
// Client errors (4xx), cancellation and an open circuit are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, errors.ErrCircuitOpen) {
		return false
	}
	var apiErr *errors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return true
}
