package txcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrMalformedHex is returned when a hex string has odd length or non-hex characters.
	ErrMalformedHex = errors.New("malformed hex string")
	// ErrNotList is returned when the input does not start with an RLP list prefix.
	ErrNotList = errors.New("input is not an rlp list")
	// ErrNestedList is returned when a list item is itself a list. The decoder only
	// understands the flat field lists used by legacy and EIP-155 transactions.
	ErrNestedList = errors.New("nested rlp lists are not supported")
	// ErrTruncated is returned when a declared length runs past the available bytes.
	ErrTruncated = errors.New("rlp input truncated")
)

// HexToBytes decodes a hex string with an optional 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedHex, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return b, nil
}

// BytesToHex encodes b as lower-case hex with a 0x prefix. Empty input yields "0x".
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// BytesToBigInt interprets b as a big-endian unsigned integer.
func BytesToBigInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// DecodeList decodes a flat RLP list into its string items.
//
// Only byte-string items are supported. When a nested list is encountered the items
// decoded so far are returned together with ErrNestedList. Bytes after the end of the
// outer list are ignored.
func DecodeList(b []byte) ([][]byte, error) {
	if len(b) == 0 || b[0] < 0xc0 {
		return [][]byte{}, ErrNotList
	}

	offset, listLen, err := readListHeader(b)
	if err != nil {
		return [][]byte{}, err
	}
	if listLen > uint64(len(b))-offset {
		return [][]byte{}, fmt.Errorf("%w: list declares %d bytes, have %d", ErrTruncated, listLen, uint64(len(b))-offset)
	}
	end := offset + listLen

	items := make([][]byte, 0, 9)
	pos := offset
	for pos < end {
		prefix := b[pos]
		switch {
		case prefix < 0x80:
			items = append(items, []byte{prefix})
			pos++
		case prefix == 0x80:
			items = append(items, []byte{})
			pos++
		case prefix <= 0xb7:
			n := uint64(prefix - 0x80)
			start := pos + 1
			if n > end-start {
				return items, fmt.Errorf("%w: item at offset %d", ErrTruncated, pos)
			}
			items = append(items, b[start:start+n])
			pos = start + n
		case prefix <= 0xbf:
			lenOfLen := uint64(prefix - 0xb7)
			if lenOfLen > end-pos-1 {
				return items, fmt.Errorf("%w: length prefix at offset %d", ErrTruncated, pos)
			}
			n := readUint(b[pos+1 : pos+1+lenOfLen])
			start := pos + 1 + lenOfLen
			if n > end-start {
				return items, fmt.Errorf("%w: item at offset %d", ErrTruncated, pos)
			}
			items = append(items, b[start:start+n])
			pos = start + n
		default:
			return items, fmt.Errorf("%w: item %d at offset %d", ErrNestedList, len(items), pos)
		}
	}
	return items, nil
}

func readListHeader(b []byte) (offset, length uint64, err error) {
	prefix := b[0]
	if prefix <= 0xf7 {
		return 1, uint64(prefix - 0xc0), nil
	}
	lenOfLen := uint64(prefix - 0xf7)
	if 1+lenOfLen > uint64(len(b)) {
		return 0, 0, fmt.Errorf("%w: list length prefix", ErrTruncated)
	}
	return 1 + lenOfLen, readUint(b[1 : 1+lenOfLen]), nil
}

func readUint(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}
