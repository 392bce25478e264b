// Package client is a Go client for the payfi orchestration service.
package client

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

	"github.com/shopspring/decimal"

	"github.com/xueqianLu/payfi/internal/middleware"
)

// Run is a snapshot of one action run.
type Run struct {
	ID              string            `json:"id"`
	Action          string            `json:"action"`
	Phase           string            `json:"phase"`
	Status          string            `json:"status"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	ErrorKind       string            `json:"errorKind,omitempty"`
	OrderID         string            `json:"orderId,omitempty"`
	TransactionHash string            `json:"transactionHash,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
	Caveat          string            `json:"caveat,omitempty"`
	StartedAt       time.Time         `json:"startedAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Done reports whether the run reached success or error.
func (r Run) Done() bool { return r.Phase == "success" || r.Phase == "error" }

// PurchaseRequest starts an NFT purchase.
type PurchaseRequest struct {
	TierID       int64  `json:"tierId"`
	Quantity     int    `json:"quantity"`
	PaymentToken string `json:"paymentToken,omitempty"`
}

// StakeRequest starts staking one NFT.
type StakeRequest struct {
	TokenID int64 `json:"tokenId"`
	Staked  bool  `json:"staked"`
}

// SwapRequest starts a token swap.
type SwapRequest struct {
	FromToken string          `json:"fromToken"`
	ToToken   string          `json:"toToken"`
	Amount    decimal.Decimal `json:"amount"`
	Slippage  decimal.Decimal `json:"slippage"`
}

// WithdrawRequest starts a reward withdrawal.
type WithdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Token  string          `json:"token"`
}

// WalletInfo describes the signing account of the service.
type WalletInfo struct {
	Address string `json:"address"`
	ChainID string `json:"chainId"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err means an action of the same kind is already running,
// or a run could not be reset because it is in flight.
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusConflict
}

// Client is a client for the payfi service.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a new payfi client.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health checks the health of the service.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp)
	return resp.Status, err
}

// Wallet returns the signing account of the service.
func (c *Client) Wallet(ctx context.Context) (*WalletInfo, error) {
	var resp WalletInfo
	if err := c.doRequest(ctx, http.MethodGet, "/wallet", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartPurchase starts an NFT purchase and returns the new run.
func (c *Client) StartPurchase(ctx context.Context, req PurchaseRequest) (*Run, error) {
	return c.run(ctx, http.MethodPost, "/actions/purchase", req)
}

// StartStake starts staking an NFT.
func (c *Client) StartStake(ctx context.Context, req StakeRequest) (*Run, error) {
	return c.run(ctx, http.MethodPost, "/actions/stake", req)
}

// StartBurn starts burning PIC worth usdt.
func (c *Client) StartBurn(ctx context.Context, usdt decimal.Decimal) (*Run, error) {
	return c.run(ctx, http.MethodPost, "/actions/burn", map[string]decimal.Decimal{"usdtAmount": usdt})
}

// StartSwap starts a token swap.
func (c *Client) StartSwap(ctx context.Context, req SwapRequest) (*Run, error) {
	return c.run(ctx, http.MethodPost, "/actions/swap", req)
}

// StartWithdraw creates a withdrawal order and claims it.
func (c *Client) StartWithdraw(ctx context.Context, req WithdrawRequest) (*Run, error) {
	return c.run(ctx, http.MethodPost, "/actions/withdraw", req)
}

// ClaimWithdraw resumes the claim of an existing withdrawal order.
func (c *Client) ClaimWithdraw(ctx context.Context, orderID int64) (*Run, error) {
	return c.run(ctx, http.MethodPost, "/actions/withdraw/"+strconv.FormatInt(orderID, 10)+"/claim", nil)
}

// GetRun returns the current snapshot of a run.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	return c.run(ctx, http.MethodGet, "/runs/"+url.PathEscape(id), nil)
}

// ResetRun resets a finished run. The returned run has a new id.
func (c *Client) ResetRun(ctx context.Context, id string) (*Run, error) {
	return c.run(ctx, http.MethodPost, "/runs/"+url.PathEscape(id)+"/reset", nil)
}

// ListRuns returns journaled runs, newest first. An empty action lists all of them.
func (c *Client) ListRuns(ctx context.Context, action string, limit int) ([]Run, error) {
	q := url.Values{}
	if action != "" {
		q.Set("action", action)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Runs []Run `json:"runs"`
	}
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// WaitRun polls a run until it is done or ctx ends.
func (c *Client) WaitRun(ctx context.Context, id string, interval time.Duration) (*Run, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run, err := c.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Done() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) run(ctx context.Context, method, path string, data interface{}) (*Run, error) {
	var resp Run
	if err := c.doRequest(ctx, method, path, data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, data, result interface{}) error {
	var reqBody []byte
	var err error

	if data != nil {
		reqBody, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.APIKeyHeader, c.apiKey)
	req.Header.Set(middleware.TimestampHeader, timestamp)
	req.Header.Set(middleware.SignatureHeader, middleware.Signature(c.apiSecret, timestamp, reqBody))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var er struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &er) == nil && er.Error != "" {
			se.Message = er.Error
		}
		return se
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
