package wallet

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	apiKeyHeader    = "X-API-Key"
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
)

// remoteSignTxRequest is the body of the signer service's /sign-transaction endpoint.
type remoteSignTxRequest struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Nonce     uint64   `json:"nonce"`
	Value     *big.Int `json:"value"`
	Data      []byte   `json:"data"`
	GasLimit  uint64   `json:"gasLimit"`
	GasPrice  *big.Int `json:"gasPrice,omitempty"`
	GasFeeCap *big.Int `json:"gasFeeCap,omitempty"`
	GasTipCap *big.Int `json:"gasTipCap,omitempty"`
	ChainID   string   `json:"chainId"`
}

type remoteSignTxResponse struct {
	RawTx string `json:"rawTx"`
}

// RemoteKeyManager delegates signing to an HMAC-authenticated signer service.
type RemoteKeyManager struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client

	mu       sync.Mutex
	accounts []common.Address
}

// NewRemoteKeyManager creates a client for the signer service at baseURL.
func NewRemoteKeyManager(baseURL, apiKey, apiSecret string) *RemoteKeyManager {
	return &RemoteKeyManager{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetAccounts returns the accounts of the signer service. The list is fetched once.
func (km *RemoteKeyManager) GetAccounts() []common.Address {
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.accounts != nil {
		return km.accounts
	}

	var accStrs []string
	if err := km.doRequest(http.MethodGet, "/accounts", nil, &accStrs); err != nil {
		return nil
	}
	accounts := make([]common.Address, 0, len(accStrs))
	for _, a := range accStrs {
		if common.IsHexAddress(a) {
			accounts = append(accounts, common.HexToAddress(a))
		}
	}
	km.accounts = accounts
	return accounts
}

// SignTx sends the transaction fields to the signer service and decodes the signed result.
func (km *RemoteKeyManager) SignTx(address common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	req := remoteSignTxRequest{
		From:     address.Hex(),
		Nonce:    tx.Nonce(),
		Value:    tx.Value(),
		Data:     tx.Data(),
		GasLimit: tx.Gas(),
		ChainID:  chainID.String(),
	}
	if tx.To() != nil {
		req.To = tx.To().Hex()
	}
	if tx.Type() == types.DynamicFeeTxType {
		req.GasFeeCap = tx.GasFeeCap()
		req.GasTipCap = tx.GasTipCap()
	} else {
		req.GasPrice = tx.GasPrice()
	}

	var resp remoteSignTxResponse
	if err := km.doRequest(http.MethodPost, "/sign-transaction", req, &resp); err != nil {
		return nil, err
	}

	raw, err := hexutil.Decode(ensure0x(resp.RawTx))
	if err != nil {
		return nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signed transaction: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		return nil, fmt.Errorf("failed to recover signer: %w", err)
	}
	if sender != address {
		return nil, fmt.Errorf("signer service signed with %s, expected %s", sender.Hex(), address.Hex())
	}
	return signed, nil
}

func (km *RemoteKeyManager) doRequest(method, path string, data, result interface{}) error {
	var reqBody []byte
	var err error

	if data != nil {
		reqBody, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	req, err := http.NewRequest(method, km.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, km.apiKey)
	req.Header.Set(timestampHeader, timestamp)
	req.Header.Set(signatureHeader, hmacSignature(km.apiSecret, timestamp, reqBody))

	resp, err := km.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func hmacSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
