package abi

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selectors for the read-only wallet calls used when a wallet is
// discovered through registration instead of factory creation.
var (
	SelectorGetOwners = crypto.Keccak256([]byte("getOwners()"))[:4]
	SelectorThreshold = crypto.Keccak256([]byte("threshold()"))[:4]
)

// maxOwnerCount bounds the decoded owner array. A longer array means the
// contract returned garbage, not a real owner set.
const maxOwnerCount = 1000

// ErrMalformedAddressArray is returned when contract return data does not
// encode a plausible address array.
var ErrMalformedAddressArray = errors.New("malformed address array")

// ErrShortReturnData is returned when return data is too short for the
// expected value.
var ErrShortReturnData = errors.New("return data too short")

// DecodeAddressArray decodes return data holding a single address[]
// value: a 32-byte offset word, a 32-byte length word, then one address
// per 32-byte slot. Addresses are returned as lowercase hex.
func DecodeAddressArray(ret []byte) ([]string, error) {
	if len(ret) < 64 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedAddressArray, len(ret))
	}

	length := new(big.Int).SetBytes(ret[32:64])
	if !length.IsUint64() || length.Uint64() > maxOwnerCount {
		return nil, fmt.Errorf("%w: implausible length %s", ErrMalformedAddressArray, length)
	}

	n := int(length.Uint64())
	if len(ret) < 64+32*n {
		return nil, fmt.Errorf("%w: %d addresses need %d bytes, have %d",
			ErrMalformedAddressArray, n, 64+32*n, len(ret))
	}

	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		word := ret[64+32*i : 64+32*(i+1)]
		addrs[i] = strings.ToLower(common.BytesToAddress(word).Hex())
	}
	return addrs, nil
}

// DecodeUint256 decodes return data holding a single uint256, surfaced
// as a decimal string.
func DecodeUint256(ret []byte) (string, error) {
	if len(ret) < 32 {
		return "", fmt.Errorf("%w: %d bytes for uint256", ErrShortReturnData, len(ret))
	}
	return new(big.Int).SetBytes(ret[:32]).String(), nil
}
