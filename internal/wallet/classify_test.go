package wallet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type rpcCodeErr struct {
	code int
	msg  string
}

func (e rpcCodeErr) Error() string  { return e.msg }
func (e rpcCodeErr) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"nil", nil, Other},
		{"sentinel", ErrUserRejected, Rejected},
		{"wrapped sentinel", fmt.Errorf("approval: %w", ErrUserRejected), Rejected},
		{"provider code 4001", rpcCodeErr{code: 4001, msg: "nope"}, Rejected},
		{"other provider code", rpcCodeErr{code: -32000, msg: "insufficient funds"}, Other},
		{"message phrase", errors.New("MetaMask Tx Signature: User denied transaction signature."), Rejected},
		{"user cancelled", errors.New("User cancelled the request"), Rejected},
		{"plain failure", errors.New("nonce too low"), Other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSignError(t *testing.T) {
	assert.Nil(t, NewSignError(nil))

	rejected := NewSignError(ErrUserRejected)
	var se *SignError
	assert.True(t, errors.As(rejected, &se))
	assert.Equal(t, "Transaction cancelled by user", se.UserMessage())
	assert.Equal(t, "rejected", se.ErrorKind())
	assert.ErrorIs(t, rejected, ErrUserRejected)

	failed := NewSignError(errors.New("insufficient funds for gas"))
	assert.True(t, errors.As(failed, &se))
	assert.Equal(t, "insufficient funds for gas", se.UserMessage())
	assert.Equal(t, "wallet", se.ErrorKind())
}
