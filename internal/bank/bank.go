// Package bank is the client for the bank's bulk payout API.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrRejected indicates the bank refused the whole batch.
var ErrRejected = errors.New("bank rejected batch")

// Gateway submits payout batches to a bank.
// Implementations must honour ctx cancellation; a batch whose call fails has an unknown
// outcome at the bank and its rows must not be treated as failed.
type Gateway interface {
	SubmitBatch(ctx context.Context, req BatchRequest) (BatchResponse, error)
}

// Config configures an HTTPClient.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// HTTPClient talks JSON to the bank's payout API.
type HTTPClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// NewHTTPClient creates a client. Every call is bounded by cfg.Timeout and throttled to
// cfg.RateLimit requests per second.
func NewHTTPClient(cfg Config) *HTTPClient {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &HTTPClient{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
	}
}

// SubmitBatch posts req to /v1/payouts/batches and returns the per-row results.
func (c *HTTPClient) SubmitBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	if len(req.Payments) == 0 {
		return BatchResponse{}, fmt.Errorf("empty batch")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return BatchResponse{}, fmt.Errorf("bank rate limit: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return BatchResponse{}, fmt.Errorf("failed to encode batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payouts/batches", bytes.NewReader(body))
	if err != nil {
		return BatchResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return BatchResponse{}, fmt.Errorf("bank request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return BatchResponse{}, fmt.Errorf("failed to read bank response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Message != "" {
			return BatchResponse{}, fmt.Errorf("%w: %d %s: %s", ErrRejected, resp.StatusCode, errResp.Code, errResp.Message)
		}
		return BatchResponse{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out BatchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return BatchResponse{}, fmt.Errorf("failed to decode bank response: %w", err)
	}
	if out.BatchID == "" {
		return BatchResponse{}, fmt.Errorf("bank response has no batch id")
	}

	return out, nil
}
