package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Invocation is a journaled program method invocation as reported by the server.
type Invocation struct {
	Signature      string    `json:"signature"`
	Method         string    `json:"method"`
	ProgramAddress string    `json:"program_address"`
	Network        string    `json:"network"`
	Payer          string    `json:"payer"`
	Status         string    `json:"status"`
	Error          *string   `json:"error,omitempty"`
	Slot           *int64    `json:"slot,omitempty"`
	WorkflowID     *string   `json:"workflow_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Terminal reports whether the invocation can no longer change status.
func (i *Invocation) Terminal() bool {
	switch i.Status {
	case "finalized", "failed", "not-found":
		return true
	}
	return false
}

// InvokeRequest describes one method invocation to run through the service.
type InvokeRequest struct {
	Method   string   `json:"method"`
	Network  string   `json:"network"`
	Args     []string `json:"args"`
	Accounts []string `json:"accounts"`
	Payer    string   `json:"payer"`
	Async    bool     `json:"async"`
}

// InvokeResult is the server's response to a synchronous invocation.
type InvokeResult struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id,omitempty"`
	Signature  string `json:"signature,omitempty"`
	Slot       int64  `json:"slot,omitempty"`
	Status     string `json:"status,omitempty"`
}

// ListInvocationsOptions filters List results. Zero values mean "no filter".
type ListInvocationsOptions struct {
	Method  string
	Network string
	Status  string
	Limit   int
	Offset  int
}

// Client is the HTTP client for the zero-fun invocation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new invocation service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Invoke runs one method invocation through the service. With req.Async set
// the server returns as soon as the workflow is enqueued; otherwise the call
// blocks until the invocation reaches a terminal outcome.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/invocations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var result InvokeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("invocation submitted",
		"method", req.Method,
		"workflow_id", result.WorkflowID,
		"signature", result.Signature,
	)
	return &result, nil
}

// Get retrieves one journaled invocation by transaction signature.
func (c *Client) Get(ctx context.Context, signature string) (*Invocation, error) {
	u := fmt.Sprintf("%s/api/v1/invocations/%s", c.baseURL, url.PathEscape(signature))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var inv Invocation
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &inv, nil
}

// List retrieves journaled invocations, most recent first.
func (c *Client) List(ctx context.Context, opts ListInvocationsOptions) ([]*Invocation, error) {
	q := url.Values{}
	if opts.Method != "" {
		q.Set("method", opts.Method)
	}
	if opts.Network != "" {
		q.Set("network", opts.Network)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	u := c.baseURL + "/api/v1/invocations"
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Invocations []*Invocation `json:"invocations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Invocations, nil
}

// Await polls an invocation until it reaches a terminal status or ctx is done.
func (c *Client) Await(ctx context.Context, signature string, pollInterval time.Duration) (*Invocation, error) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		inv, err := c.Get(ctx, signature)
		if err == nil && inv.Terminal() {
			return inv, nil
		}
		if err != nil {
			// The journal row may not exist yet; keep polling until ctx expires.
			c.logger.Debug("await poll failed", "signature", signature, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
