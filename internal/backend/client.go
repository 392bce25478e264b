package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// Client talks to the PayFi backend REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a backend client. token is sent as a bearer token when non-empty.
func NewClient(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response wrapper of the backend.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateOrder creates an NFT purchase order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/nft/orders", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitPaymentConfirmation reports the payment transaction of an order.
func (c *Client) SubmitPaymentConfirmation(ctx context.Context, req PaymentConfirmation) (*Ack, error) {
	return c.ack(ctx, "/api/v1/nft/orders/"+strconv.FormatInt(req.OrderID, 10)+"/payment", req)
}

// GetOrderStatus returns the current state of an NFT order.
func (c *Client) GetOrderStatus(ctx context.Context, orderID int64) (*OrderStatus, error) {
	var resp OrderStatus
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/nft/orders/"+strconv.FormatInt(orderID, 10), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateStakeTransaction prepares the staking call for an NFT.
func (c *Client) CreateStakeTransaction(ctx context.Context, req StakeTransactionRequest) (*StakeTransaction, error) {
	var resp StakeTransaction
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/stake/transaction", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitStaking reports a staking transaction.
func (c *Client) SubmitStaking(ctx context.Context, req SubmitStakingRequest) (*StakingResult, error) {
	var resp StakingResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/stake/submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PreparePICBurn prepares a PIC burn.
func (c *Client) PreparePICBurn(ctx context.Context, req BurnPrepareRequest) (*BurnPreparation, error) {
	var resp BurnPreparation
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/pic/burn/prepare", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitPICBurn reports a burn transaction.
func (c *Client) SubmitPICBurn(ctx context.Context, req BurnSubmission) (*Ack, error) {
	return c.ack(ctx, "/api/v1/pic/burn/submit", req)
}

// CreateSwapOrder creates a swap order.
func (c *Client) CreateSwapOrder(ctx context.Context, req SwapOrderRequest) (*SwapOrder, error) {
	var resp SwapOrder
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/swap/orders", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitSwapTransaction reports a swap transaction.
func (c *Client) SubmitSwapTransaction(ctx context.Context, req SwapSubmission) (*Ack, error) {
	return c.ack(ctx, "/api/v1/swap/orders/"+strconv.FormatInt(req.OrderID, 10)+"/submit", req)
}

// GetSwapOrder returns the current snapshot of a swap order.
func (c *Client) GetSwapOrder(ctx context.Context, orderID int64) (*SwapOrder, error) {
	var resp SwapOrder
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/swap/orders/"+strconv.FormatInt(orderID, 10), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateWithdrawOrder creates a withdrawal order.
func (c *Client) CreateWithdrawOrder(ctx context.Context, req WithdrawOrderRequest) (*WithdrawOrder, error) {
	var resp WithdrawOrder
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/withdraw/orders", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWithdrawTransaction returns the unsigned claim transaction of an order.
func (c *Client) GetWithdrawTransaction(ctx context.Context, orderID int64) (*WithdrawTransaction, error) {
	var resp WithdrawTransaction
	path := "/api/v1/withdraw/orders/" + strconv.FormatInt(orderID, 10) + "/transaction"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckClaimResult reports the claim transaction of a withdrawal.
func (c *Client) CheckClaimResult(ctx context.Context, req ClaimCheck) (*Ack, error) {
	return c.ack(ctx, "/api/v1/withdraw/orders/"+strconv.FormatInt(req.OrderID, 10)+"/claim-result", req)
}

// ack posts data to an acknowledgement endpoint. An envelope without data counts
// as a positive acknowledgement.
func (c *Client) ack(ctx context.Context, path string, data interface{}) (*Ack, error) {
	resp := Ack{Success: true}
	if err := c.doRequest(ctx, http.MethodPost, path, data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, data, result interface{}) error {
	var body io.Reader
	if data != nil {
		reqBody, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("failed to build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend request")

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: requestID}
		if decodeErr == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
		} else {
			apiErr.Body = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to unmarshal response: %w", decodeErr)
	}
	if env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message, RequestID: requestID}
	}

	if result != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}
