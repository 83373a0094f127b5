package abi

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownEvent is returned when a log's topic0 is not in the registry.
// The pipeline skips these logs with a warning and counts them as skipped.
var ErrUnknownEvent = errors.New("unknown event topic")

// DecodedLog is the neutral event record the handlers consume. Numeric
// arguments are decimal strings so 256-bit values survive the store's
// text columns; addresses are lowercase hex.
type DecodedLog struct {
	Name        string
	Source      string
	Address     string
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
	Args        map[string]interface{}
}

// DecodeLog decodes a raw log against the contract tables.
func DecodeLog(log *types.Log) (*DecodedLog, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: log has no topics", ErrUnknownEvent)
	}

	spec, ok := eventRegistry[log.Topics[0]]
	if !ok {
		return nil, ErrUnknownEvent
	}

	args := make(map[string]interface{})

	var indexed abi.Arguments
	for _, input := range spec.Event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("decode %s topics: %w", spec.Name, err)
		}
	}

	nonIndexed := spec.Event.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", spec.Name, err)
		}
	}

	return &DecodedLog{
		Name:        spec.Name,
		Source:      spec.Source,
		Address:     strings.ToLower(log.Address.Hex()),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
		Args:        serializeArgs(args),
	}, nil
}

func serializeArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for key, value := range args {
		out[key] = serializeValue(value)
	}
	return out
}

func serializeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return strings.ToLower(v.Hex())
	case common.Hash:
		return v.Hex()
	case [32]byte:
		return hexutil.Encode(v[:])
	case []byte:
		return hexutil.Encode(v)
	case []common.Address:
		out := make([]string, len(v))
		for i, a := range v {
			out[i] = strings.ToLower(a.Hex())
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = serializeValue(item)
		}
		return out
	default:
		return value
	}
}
