package abi

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction types assigned by the calldata classifier.
const (
	TxTypeTransfer      = "transfer"
	TxTypeWalletAdmin   = "wallet_admin"
	TxTypeModuleConfig  = "module_config"
	TxTypeRecoverySetup = "recovery_setup"
	TxTypeExternalCall  = "external_call"
)

// FunctionUnknown marks calldata whose arguments could not be decoded.
const FunctionUnknown = "unknown"

const walletMethodsABI = `[
	{"type":"function","name":"addOwner","inputs":[
		{"name":"owner","type":"address"}]},
	{"type":"function","name":"removeOwner","inputs":[
		{"name":"owner","type":"address"}]},
	{"type":"function","name":"changeThreshold","inputs":[
		{"name":"threshold","type":"uint256"}]},
	{"type":"function","name":"enableModule","inputs":[
		{"name":"module","type":"address"}]},
	{"type":"function","name":"disableModule","inputs":[
		{"name":"module","type":"address"}]},
	{"type":"function","name":"setDailyLimit","inputs":[
		{"name":"limit","type":"uint256"}]},
	{"type":"function","name":"resetDailyLimit","inputs":[]},
	{"type":"function","name":"addToWhitelist","inputs":[
		{"name":"target","type":"address"},
		{"name":"limit","type":"uint256"}]},
	{"type":"function","name":"removeFromWhitelist","inputs":[
		{"name":"target","type":"address"}]},
	{"type":"function","name":"setupRecovery","inputs":[
		{"name":"guardians","type":"address[]"},
		{"name":"guardianThreshold","type":"uint256"},
		{"name":"recoveryPeriod","type":"uint256"}]}
]`

type methodSpec struct {
	Function string
	TxType   string
	Method   abi.Method
}

var methodsBySelector = buildMethodTable()

func buildMethodTable() map[[4]byte]methodSpec {
	txTypes := map[string]string{
		"addOwner":            TxTypeWalletAdmin,
		"removeOwner":         TxTypeWalletAdmin,
		"changeThreshold":     TxTypeWalletAdmin,
		"enableModule":        TxTypeModuleConfig,
		"disableModule":       TxTypeModuleConfig,
		"setDailyLimit":       TxTypeModuleConfig,
		"resetDailyLimit":     TxTypeModuleConfig,
		"addToWhitelist":      TxTypeModuleConfig,
		"removeFromWhitelist": TxTypeModuleConfig,
		"setupRecovery":       TxTypeRecoverySetup,
	}

	parsed := mustParse(walletMethodsABI)
	table := make(map[[4]byte]methodSpec, len(parsed.Methods))
	for _, m := range parsed.Methods {
		txType, ok := txTypes[m.RawName]
		if !ok {
			panic(fmt.Sprintf("abi: method %s has no transaction type", m.RawName))
		}
		var sel [4]byte
		copy(sel[:], m.ID)
		table[sel] = methodSpec{Function: m.RawName, TxType: txType, Method: m}
	}
	return table
}

// DecodedCall classifies the calldata of a proposed transaction.
type DecodedCall struct {
	TransactionType string
	Function        string
	Params          map[string]interface{}
}

// DecodeCalldata classifies proposal calldata. It never fails: undecodable
// input degrades to an unknown function with the raw data preserved.
//
// Empty data is a plain value transfer. A known selector yields the
// table's type, falling back to rawData if the arguments do not unpack.
// An unknown selector aimed at a configured module is module_config;
// anything else is an external call.
func DecodeCalldata(to string, data []byte, modules map[string]bool) DecodedCall {
	if len(data) == 0 {
		return DecodedCall{
			TransactionType: TxTypeTransfer,
			Function:        "transfer",
			Params:          map[string]interface{}{},
		}
	}

	if len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		if spec, ok := methodsBySelector[sel]; ok {
			args := make(map[string]interface{})
			if err := spec.Method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
				return DecodedCall{
					TransactionType: spec.TxType,
					Function:        FunctionUnknown,
					Params:          rawParams(data),
				}
			}
			return DecodedCall{
				TransactionType: spec.TxType,
				Function:        spec.Function,
				Params:          serializeArgs(args),
			}
		}
	}

	if modules[strings.ToLower(to)] {
		return DecodedCall{
			TransactionType: TxTypeModuleConfig,
			Function:        FunctionUnknown,
			Params:          rawParams(data),
		}
	}

	return DecodedCall{
		TransactionType: TxTypeExternalCall,
		Function:        FunctionUnknown,
		Params:          rawParams(data),
	}
}

func rawParams(data []byte) map[string]interface{} {
	return map[string]interface{}{"rawData": hexutil.Encode(data)}
}
