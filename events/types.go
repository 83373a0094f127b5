package events

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/arcwallet/indexer-go/abi"
)

// ErrUnsupportedEvent is returned by Parse for registry names without a
// typed variant.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Meta carries log provenance shared by every event variant. Address is
// the emitting contract, lowercased.
type Meta struct {
	Address     string
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// EventMeta satisfies the Event interface for every variant embedding Meta.
func (m Meta) EventMeta() Meta { return m }

// Event is the closed set of decoded log variants.
type Event interface {
	EventMeta() Meta
}

type WalletCreated struct {
	Meta
	Wallet    string
	Owners    []string
	Threshold uint64
	Creator   string
	Salt      string
}

type WalletRegistered struct {
	Meta
	Wallet    string
	Registrar string
}

type TransactionProposed struct {
	Meta
	Wallet       string
	ProposalHash string
	Proposer     string
	To           string
	Value        string
	Data         string
}

type TransactionApproved struct {
	Meta
	Wallet       string
	ProposalHash string
	Owner        string
}

type ApprovalRevoked struct {
	Meta
	Wallet       string
	ProposalHash string
	Owner        string
}

type TransactionExecuted struct {
	Meta
	Wallet       string
	ProposalHash string
	Executor     string
}

type TransactionCancelled struct {
	Meta
	Wallet       string
	ProposalHash string
	Canceller    string
}

type OwnerAdded struct {
	Meta
	Wallet string
	Owner  string
}

type OwnerRemoved struct {
	Meta
	Wallet string
	Owner  string
}

type ThresholdChanged struct {
	Meta
	Wallet    string
	Threshold uint64
}

type ModuleEnabled struct {
	Meta
	Wallet string
	Module string
}

type ModuleDisabled struct {
	Meta
	Wallet string
	Module string
}

type Received struct {
	Meta
	Wallet string
	Sender string
	Value  string
}

type RecoverySetup struct {
	Meta
	Wallet            string
	Guardians         []string
	GuardianThreshold uint64
	RecoveryPeriod    uint64
}

type RecoveryInitiated struct {
	Meta
	Wallet       string
	RecoveryHash string
	NewOwners    []string
	NewThreshold uint64
	Initiator    string
}

type RecoveryApproved struct {
	Meta
	Wallet       string
	RecoveryHash string
	Guardian     string
}

type RecoveryApprovalRevoked struct {
	Meta
	Wallet       string
	RecoveryHash string
	Guardian     string
}

type RecoveryExecuted struct {
	Meta
	Wallet       string
	RecoveryHash string
}

type RecoveryCancelled struct {
	Meta
	Wallet       string
	RecoveryHash string
}

type DailyLimitSet struct {
	Meta
	Wallet string
	Limit  string
}

type DailyLimitReset struct {
	Meta
	Wallet string
}

type DailyLimitTransactionExecuted struct {
	Meta
	Wallet         string
	To             string
	Value          string
	RemainingLimit string
}

type AddressWhitelisted struct {
	Meta
	Wallet string
	Target string
	Limit  string
}

type AddressRemovedFromWhitelist struct {
	Meta
	Wallet string
	Target string
}

type WhitelistTransactionExecuted struct {
	Meta
	Wallet string
	To     string
	Value  string
}

// Parse maps a decoded log into its typed variant. Wallet-contract events
// name the wallet by emitter; factory and module events carry it as an
// argument.
func Parse(decoded *abi.DecodedLog) (Event, error) {
	meta := Meta{
		Address:     decoded.Address,
		BlockNumber: decoded.BlockNumber,
		TxHash:      decoded.TxHash,
		LogIndex:    decoded.LogIndex,
	}
	args := argReader{name: decoded.Name, args: decoded.Args}

	var ev Event
	switch decoded.Name {
	case abi.EventWalletCreated:
		ev = WalletCreated{
			Meta:      meta,
			Wallet:    args.str("wallet"),
			Owners:    args.strs("owners"),
			Threshold: args.u64("threshold"),
			Creator:   args.str("creator"),
			Salt:      args.str("salt"),
		}
	case abi.EventWalletRegistered:
		ev = WalletRegistered{
			Meta:      meta,
			Wallet:    args.str("wallet"),
			Registrar: args.str("registrar"),
		}
	case abi.EventTransactionProposed:
		ev = TransactionProposed{
			Meta:         meta,
			Wallet:       decoded.Address,
			ProposalHash: args.str("txHash"),
			Proposer:     args.str("proposer"),
			To:           args.str("to"),
			Value:        args.str("value"),
			Data:         args.str("data"),
		}
	case abi.EventTransactionApproved:
		ev = TransactionApproved{
			Meta:         meta,
			Wallet:       decoded.Address,
			ProposalHash: args.str("txHash"),
			Owner:        args.str("owner"),
		}
	case abi.EventApprovalRevoked:
		ev = ApprovalRevoked{
			Meta:         meta,
			Wallet:       decoded.Address,
			ProposalHash: args.str("txHash"),
			Owner:        args.str("owner"),
		}
	case abi.EventTransactionExecuted:
		ev = TransactionExecuted{
			Meta:         meta,
			Wallet:       decoded.Address,
			ProposalHash: args.str("txHash"),
			Executor:     args.str("executor"),
		}
	case abi.EventTransactionCancelled:
		ev = TransactionCancelled{
			Meta:         meta,
			Wallet:       decoded.Address,
			ProposalHash: args.str("txHash"),
			Canceller:    args.str("canceller"),
		}
	case abi.EventOwnerAdded:
		ev = OwnerAdded{Meta: meta, Wallet: decoded.Address, Owner: args.str("owner")}
	case abi.EventOwnerRemoved:
		ev = OwnerRemoved{Meta: meta, Wallet: decoded.Address, Owner: args.str("owner")}
	case abi.EventThresholdChanged:
		ev = ThresholdChanged{Meta: meta, Wallet: decoded.Address, Threshold: args.u64("threshold")}
	case abi.EventModuleEnabled:
		ev = ModuleEnabled{Meta: meta, Wallet: decoded.Address, Module: args.str("module")}
	case abi.EventModuleDisabled:
		ev = ModuleDisabled{Meta: meta, Wallet: decoded.Address, Module: args.str("module")}
	case abi.EventReceived:
		ev = Received{Meta: meta, Wallet: decoded.Address, Sender: args.str("sender"), Value: args.str("value")}
	case abi.EventRecoverySetup:
		ev = RecoverySetup{
			Meta:              meta,
			Wallet:            args.str("wallet"),
			Guardians:         args.strs("guardians"),
			GuardianThreshold: args.u64("guardianThreshold"),
			RecoveryPeriod:    args.u64("recoveryPeriod"),
		}
	case abi.EventRecoveryInitiated:
		ev = RecoveryInitiated{
			Meta:         meta,
			Wallet:       args.str("wallet"),
			RecoveryHash: args.str("recoveryHash"),
			NewOwners:    args.strs("newOwners"),
			NewThreshold: args.u64("newThreshold"),
			Initiator:    args.str("initiator"),
		}
	case abi.EventRecoveryApproved:
		ev = RecoveryApproved{
			Meta:         meta,
			Wallet:       args.str("wallet"),
			RecoveryHash: args.str("recoveryHash"),
			Guardian:     args.str("guardian"),
		}
	case abi.EventRecoveryApprovalRevoked:
		ev = RecoveryApprovalRevoked{
			Meta:         meta,
			Wallet:       args.str("wallet"),
			RecoveryHash: args.str("recoveryHash"),
			Guardian:     args.str("guardian"),
		}
	case abi.EventRecoveryExecuted:
		ev = RecoveryExecuted{Meta: meta, Wallet: args.str("wallet"), RecoveryHash: args.str("recoveryHash")}
	case abi.EventRecoveryCancelled:
		ev = RecoveryCancelled{Meta: meta, Wallet: args.str("wallet"), RecoveryHash: args.str("recoveryHash")}
	case abi.EventDailyLimitSet:
		ev = DailyLimitSet{Meta: meta, Wallet: args.str("wallet"), Limit: args.str("limit")}
	case abi.EventDailyLimitReset:
		ev = DailyLimitReset{Meta: meta, Wallet: args.str("wallet")}
	case abi.EventDailyLimitTransactionExecuted:
		ev = DailyLimitTransactionExecuted{
			Meta:           meta,
			Wallet:         args.str("wallet"),
			To:             args.str("to"),
			Value:          args.str("value"),
			RemainingLimit: args.str("remainingLimit"),
		}
	case abi.EventAddressWhitelisted:
		ev = AddressWhitelisted{
			Meta:   meta,
			Wallet: args.str("wallet"),
			Target: args.str("target"),
			Limit:  args.str("limit"),
		}
	case abi.EventAddressRemovedFromWhitelist:
		ev = AddressRemovedFromWhitelist{Meta: meta, Wallet: args.str("wallet"), Target: args.str("target")}
	case abi.EventWhitelistTransactionExecuted:
		ev = WhitelistTransactionExecuted{
			Meta:   meta,
			Wallet: args.str("wallet"),
			To:     args.str("to"),
			Value:  args.str("value"),
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, decoded.Name)
	}

	if args.err != nil {
		return nil, args.err
	}
	return ev, nil
}

// argReader pulls typed values out of the decoder's arg map, keeping the
// first failure so call sites stay flat.
type argReader struct {
	name string
	args map[string]interface{}
	err  error
}

func (r *argReader) str(key string) string {
	if r.err != nil {
		return ""
	}
	v, ok := r.args[key]
	if !ok {
		r.err = fmt.Errorf("event %s: missing argument %q", r.name, key)
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.err = fmt.Errorf("event %s: argument %q is %T, want string", r.name, key, v)
		return ""
	}
	return s
}

func (r *argReader) strs(key string) []string {
	if r.err != nil {
		return nil
	}
	v, ok := r.args[key]
	if !ok {
		r.err = fmt.Errorf("event %s: missing argument %q", r.name, key)
		return nil
	}
	s, ok := v.([]string)
	if !ok {
		r.err = fmt.Errorf("event %s: argument %q is %T, want []string", r.name, key, v)
		return nil
	}
	return s
}

func (r *argReader) u64(key string) uint64 {
	s := r.str(key)
	if r.err != nil {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		r.err = fmt.Errorf("event %s: argument %q: %w", r.name, key, err)
		return 0
	}
	return n
}
