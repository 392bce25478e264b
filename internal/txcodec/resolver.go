package txcodec

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrDecodeFailure is the sentinel behind every DecodeError.
var ErrDecodeFailure = errors.New("could not parse transaction data")

// minFields is nonce, gasPrice, gasLimit, to, value, data.
const minFields = 6

// Path names the decoder that produced an Intent.
type Path string

const (
	PathStandard Path = "standard"
	PathManual   Path = "manual"
)

// Intent is a normalised contract call ready to be handed to a wallet.
type Intent struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

// ValueInt returns the native-token amount, never nil.
func (i *Intent) ValueInt() *big.Int {
	if i == nil || i.Value == nil {
		return new(big.Int)
	}
	return i.Value.ToInt()
}

// DecodeError reports why an unsigned transaction could not be turned into an Intent.
type DecodeError struct {
	Input    string
	Standard error
	Manual   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: standard parser: %v; rlp fallback: %v", ErrDecodeFailure, e.Standard, e.Manual)
}

func (e *DecodeError) Unwrap() error { return ErrDecodeFailure }

// UserMessage is shown to the user instead of the parser details.
func (e *DecodeError) UserMessage() string { return "Could not parse transaction data" }

func (e *DecodeError) ErrorKind() string { return "decode" }

// Resolve turns a backend-supplied unsigned EIP-155 transaction into an Intent.
func Resolve(raw string) (*Intent, error) {
	intent, _, err := ResolveWithPath(raw)
	return intent, err
}

// ResolveWithPath is Resolve that also reports which decoder succeeded.
//
// The go-ethereum transaction parser is tried first. It reads the trailing
// [chainId, 0, 0] of an unsigned EIP-155 payload as [v, r, s], which leaves to, value
// and data in place. When it fails or yields no recipient, the flat RLP decoder is used.
func ResolveWithPath(raw string) (*Intent, Path, error) {
	normalized := strings.TrimSpace(raw)
	if !strings.HasPrefix(normalized, "0x") && !strings.HasPrefix(normalized, "0X") {
		normalized = "0x" + normalized
	}

	b, err := HexToBytes(normalized)
	if err != nil {
		return nil, "", &DecodeError{Input: raw, Standard: err, Manual: err}
	}

	intent, stdErr := parseStandard(b)
	if stdErr == nil {
		return intent, PathStandard, nil
	}

	intent, manualErr := parseManual(b)
	if manualErr == nil {
		return intent, PathManual, nil
	}
	return nil, "", &DecodeError{Input: raw, Standard: stdErr, Manual: manualErr}
}

func parseStandard(b []byte) (*Intent, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	if tx.To() == nil {
		return nil, errors.New("transaction has no recipient")
	}
	value := tx.Value()
	if value == nil {
		value = new(big.Int)
	}
	data := tx.Data()
	if data == nil {
		data = []byte{}
	}
	return &Intent{To: *tx.To(), Data: data, Value: (*hexutil.Big)(value)}, nil
}

func parseManual(b []byte) (*Intent, error) {
	items, err := DecodeList(b)
	if err != nil {
		return nil, err
	}
	if len(items) < minFields {
		return nil, fmt.Errorf("expected at least %d fields, got %d", minFields, len(items))
	}
	to := items[3]
	if len(to) != common.AddressLength {
		return nil, fmt.Errorf("recipient must be %d bytes, got %d", common.AddressLength, len(to))
	}
	data := make([]byte, len(items[5]))
	copy(data, items[5])
	return &Intent{
		To:    common.BytesToAddress(to),
		Data:  data,
		Value: (*hexutil.Big)(BytesToBigInt(items[4])),
	}, nil
}

// FromParams builds an Intent from structured transaction fields returned by the
// backend. value may be decimal or 0x-prefixed hex; empty means zero.
func FromParams(to, data, value string) (*Intent, error) {
	if !common.IsHexAddress(to) {
		return nil, &DecodeError{Input: to, Standard: fmt.Errorf("invalid recipient %q", to), Manual: errors.New("not attempted")}
	}
	var payload []byte
	if data != "" && data != "0x" {
		b, err := HexToBytes(data)
		if err != nil {
			return nil, &DecodeError{Input: data, Standard: err, Manual: errors.New("not attempted")}
		}
		payload = b
	}
	if payload == nil {
		payload = []byte{}
	}
	amount := new(big.Int)
	if value != "" {
		v, ok := parseBig(value)
		if !ok {
			return nil, &DecodeError{Input: value, Standard: fmt.Errorf("invalid value %q", value), Manual: errors.New("not attempted")}
		}
		amount = v
	}
	return &Intent{To: common.HexToAddress(to), Data: payload, Value: (*hexutil.Big)(amount)}, nil
}

// parseBig parses an unsigned decimal or 0x-prefixed hex integer. Signs are rejected.
func parseBig(s string) (*big.Int, bool) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return new(big.Int), true
		}
		s, base = s[2:], 16
	}
	if s == "" || s[0] == '-' || s[0] == '+' {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
