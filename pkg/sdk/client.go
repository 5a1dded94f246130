package ratevault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/transport/api"
)

const defaultTimeout = 3 * time.Minute

// Client talks to one escrow server as one caller.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	obs     *observer
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ratevault: invalid base URL %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.token,
		http:    hc,
		obs:     obs,
	}, nil
}

// Deposit moves amount from the caller into the pool.
// The caller must have allowed the pool to pull amount beforehand.
func (c *Client) Deposit(ctx context.Context, amount *uint256.Int) (rec Receipt, err error) {
	start := time.Now()
	defer func() { c.obs.observe("deposit", start, err) }()

	var resp api.OperationResponse
	if err = c.do(ctx, http.MethodPost, "/api/v1/deposits", api.AmountRequest{Amount: amount.Dec()}, &resp); err != nil {
		return Receipt{}, fmt.Errorf("deposit: %w", err)
	}
	return receiptFromAPI(resp)
}

// Withdraw returns amount of the caller's own balance to them.
func (c *Client) Withdraw(ctx context.Context, amount *uint256.Int) (rec Receipt, err error) {
	start := time.Now()
	defer func() { c.obs.observe("withdraw", start, err) }()

	var resp api.OperationResponse
	if err = c.do(ctx, http.MethodPost, "/api/v1/withdrawals", api.AmountRequest{Amount: amount.Dec()}, &resp); err != nil {
		return Receipt{}, fmt.Errorf("withdraw: %w", err)
	}
	return receiptFromAPI(resp)
}

// Draw sends amount from the pool to recipient. Only the agent may draw.
func (c *Client) Draw(ctx context.Context, recipient common.Address, amount *uint256.Int) (rec Receipt, err error) {
	start := time.Now()
	defer func() { c.obs.observe("draw", start, err) }()

	req := api.DrawRequest{To: recipient.Hex(), Amount: amount.Dec()}
	var resp api.OperationResponse
	if err = c.do(ctx, http.MethodPost, "/api/v1/draws", req, &resp); err != nil {
		return Receipt{}, fmt.Errorf("draw: %w", err)
	}
	return receiptFromAPI(resp)
}

// Escrow returns the current escrow state.
func (c *Client) Escrow(ctx context.Context) (e Escrow, err error) {
	start := time.Now()
	defer func() { c.obs.observe("escrow", start, err) }()

	var resp api.EscrowResponse
	if err = c.do(ctx, http.MethodGet, "/api/v1/escrow", nil, &resp); err != nil {
		return Escrow{}, fmt.Errorf("get escrow: %w", err)
	}
	return escrowFromAPI(resp)
}

// Depositor returns the recorded balance of who.
func (c *Client) Depositor(ctx context.Context, who common.Address) (bal *uint256.Int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("depositor", start, err) }()

	var resp api.DepositorResponse
	if err = c.do(ctx, http.MethodGet, "/api/v1/depositors/"+who.Hex(), nil, &resp); err != nil {
		return nil, fmt.Errorf("get depositor: %w", err)
	}
	return parseAmount("balance", resp.Balance)
}

// Operations returns up to limit journal entries, newest first. limit <= 0 uses the server default.
func (c *Client) Operations(ctx context.Context, limit int) (ops []Operation, err error) {
	start := time.Now()
	defer func() { c.obs.observe("operations", start, err) }()

	path := "/api/v1/operations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.OperationListResponse
	if err = c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	ops = make([]Operation, len(resp.Items))
	for i, o := range resp.Items {
		ops[i] = operationFromAPI(o)
	}
	return ops, nil
}

// Health reports server health. An unhealthy server is not an error.
func (c *Client) Health(ctx context.Context) (hs HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	var resp api.HealthResponse
	err = c.do(ctx, http.MethodGet, "/health", nil, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && resp.Status != "" {
		err = nil
	}
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health: %w", err)
	}
	checks := make(map[string]string, len(resp.Checks))
	for k, v := range resp.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{Status: string(resp.Status), Checks: checks, Version: resp.Version}, nil
}

// do sends body as JSON and decodes the response into out.
// Non-2xx responses become *APIError; out is still filled when the body matches it.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er api.ErrorResponse
	if json.Unmarshal(data, &er) == nil && er.Code != "" {
		apiErr.Code = string(er.Code)
		apiErr.Message = er.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
		// Some endpoints (health) answer non-2xx with their regular body.
		_ = json.Unmarshal(data, out)
	}
	return apiErr
}
