package wallet

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrUserRejected is returned when the user declines to sign.
var ErrUserRejected = errors.New("user rejected the request")

// rejectionCode is the EIP-1193 "User Rejected Request" provider error code.
const rejectionCode = 4001

var rejectionPhrases = []string{
	"user rejected",
	"user denied",
	"rejected by user",
	"user cancelled",
	"user canceled",
	"request rejected",
}

// Classification tells a user rejection apart from every other wallet failure.
type Classification int

const (
	Other Classification = iota
	Rejected
)

func (c Classification) String() string {
	if c == Rejected {
		return "rejected"
	}
	return "other"
}

// Classify inspects a wallet error and reports whether the user rejected the request.
// All known rejection signatures live here: the ErrUserRejected sentinel, JSON-RPC
// error code 4001 and the phrases wallets put in their messages.
func Classify(err error) Classification {
	if err == nil {
		return Other
	}
	if errors.Is(err, ErrUserRejected) {
		return Rejected
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rejectionCode {
		return Rejected
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rejectionPhrases {
		if strings.Contains(msg, phrase) {
			return Rejected
		}
	}
	return Other
}

// SignError wraps a failure of the signing step.
type SignError struct {
	Err            error
	Classification Classification
}

// NewSignError classifies err and wraps it. It returns nil for a nil err.
func NewSignError(err error) error {
	if err == nil {
		return nil
	}
	return &SignError{Err: err, Classification: Classify(err)}
}

func (e *SignError) Error() string { return "wallet: " + e.Err.Error() }

func (e *SignError) Unwrap() error { return e.Err }

// UserMessage distinguishes a cancellation from a real failure.
func (e *SignError) UserMessage() string {
	if e.Classification == Rejected {
		return "Transaction cancelled by user"
	}
	return e.Err.Error()
}

func (e *SignError) ErrorKind() string {
	if e.Classification == Rejected {
		return "rejected"
	}
	return "wallet"
}
