package txcodec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecipient = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func TestResolve_UnsignedEIP155UsesStandardParser(t *testing.T) {
	data := []byte{0xa9, 0x05, 0x9c, 0xbb, 0x01}
	raw := unsignedLegacy(t, testRecipient, big.NewInt(12345), data)

	intent, path, err := ResolveWithPath(hexutil.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, PathStandard, path)
	assert.Equal(t, testRecipient, intent.To)
	assert.Equal(t, hexutil.Bytes(data), intent.Data)
	assert.Equal(t, big.NewInt(12345), intent.ValueInt())
}

func TestResolve_AcceptsMissingPrefix(t *testing.T) {
	raw := unsignedLegacy(t, testRecipient, big.NewInt(1), nil)

	intent, err := Resolve(hexutil.Encode(raw)[2:])
	require.NoError(t, err)
	assert.Equal(t, testRecipient, intent.To)
	assert.Empty(t, intent.Data)
}

func TestResolve_FallsBackToManualDecoder(t *testing.T) {
	// A nonce with a leading zero byte is rejected by the canonical go-ethereum decoder
	// but is still a flat list the manual decoder understands.
	raw, err := rlp.EncodeToBytes([]interface{}{
		[]byte{0x00, 0x07},
		big.NewInt(1_000_000_000),
		uint64(90_000),
		testRecipient,
		big.NewInt(500),
		[]byte{0xde, 0xad},
		big.NewInt(56),
		uint(0),
		uint(0),
	})
	require.NoError(t, err)

	intent, path, err := ResolveWithPath(hexutil.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, PathManual, path)
	assert.Equal(t, testRecipient, intent.To)
	assert.Equal(t, hexutil.Bytes{0xde, 0xad}, intent.Data)
	assert.Equal(t, big.NewInt(500), intent.ValueInt())
}

func TestResolve_ShortFieldListUsesManualDecoder(t *testing.T) {
	raw, err := rlp.EncodeToBytes([]interface{}{
		uint64(1), big.NewInt(1), uint64(21000), testRecipient, uint(0), []byte{},
	})
	require.NoError(t, err)

	intent, path, err := ResolveWithPath(hexutil.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, PathManual, path)
	assert.Equal(t, testRecipient, intent.To)
	assert.Equal(t, 0, intent.ValueInt().Sign())
	assert.Empty(t, intent.Data)
}

func TestResolve_StandardOnlyTypedTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainID := big.NewInt(56)
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), &types.AccessListTx{
		ChainID:  chainID,
		Nonce:    3,
		GasPrice: big.NewInt(1),
		Gas:      50_000,
		To:       &testRecipient,
		Value:    big.NewInt(9),
		Data:     []byte{0x01},
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	intent, path, err := ResolveWithPath(hexutil.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, PathStandard, path)
	assert.Equal(t, testRecipient, intent.To)
	assert.Equal(t, big.NewInt(9), intent.ValueInt())
}

func TestResolve_Failures(t *testing.T) {
	shortTo, err := rlp.EncodeToBytes([]interface{}{
		uint64(1), big.NewInt(1), uint64(21000), []byte{0x01, 0x02}, uint(0), []byte{},
	})
	require.NoError(t, err)
	tooFew, err := rlp.EncodeToBytes([]interface{}{uint64(1), big.NewInt(1), uint64(21000)})
	require.NoError(t, err)
	creation, err := rlp.EncodeToBytes([]interface{}{
		uint64(1), big.NewInt(1), uint64(21000), []byte{}, uint(0), []byte{0x60}, big.NewInt(56), uint(0), uint(0),
	})
	require.NoError(t, err)

	cases := map[string]string{
		"not a list":      "0x8201ff",
		"malformed hex":   "0x12g4",
		"odd length":      "0xc",
		"empty":           "",
		"short recipient": hexutil.Encode(shortTo),
		"too few fields":  hexutil.Encode(tooFew),
		"no recipient":    hexutil.Encode(creation),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			intent, err := Resolve(input)
			assert.Nil(t, intent)
			assert.ErrorIs(t, err, ErrDecodeFailure)
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, "Could not parse transaction data", decErr.UserMessage())
		})
	}
}

func TestFromParams(t *testing.T) {
	intent, err := FromParams(testRecipient.Hex(), "0xabcd", "1000")
	require.NoError(t, err)
	assert.Equal(t, testRecipient, intent.To)
	assert.Equal(t, hexutil.Bytes{0xab, 0xcd}, intent.Data)
	assert.Equal(t, big.NewInt(1000), intent.ValueInt())

	intent, err = FromParams(testRecipient.Hex(), "", "0x10")
	require.NoError(t, err)
	assert.Empty(t, intent.Data)
	assert.Equal(t, big.NewInt(16), intent.ValueInt())

	intent, err = FromParams(testRecipient.Hex(), "0x", "")
	require.NoError(t, err)
	assert.Equal(t, 0, intent.ValueInt().Sign())

	_, err = FromParams("0x1234", "0x", "0")
	assert.ErrorIs(t, err, ErrDecodeFailure)
	_, err = FromParams(testRecipient.Hex(), "0xzz", "0")
	assert.ErrorIs(t, err, ErrDecodeFailure)
	for _, value := range []string{"-5", "+5", "0x-5", "0x+5", "0X-ff"} {
		_, err = FromParams(testRecipient.Hex(), "0x", value)
		var de *DecodeError
		assert.ErrorAs(t, err, &de, value)
		assert.ErrorIs(t, err, ErrDecodeFailure, value)
	}
}
