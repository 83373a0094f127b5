package abi

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Log source groups. Priority within a block follows this order:
// factory events first, then wallet events, then module events.
const (
	SourceFactory    = "factory"
	SourceWallet     = "wallet"
	SourceRecovery   = "recovery"
	SourceDailyLimit = "daily_limit"
	SourceWhitelist  = "whitelist"
)

// Registry names for every decodable event. The daily-limit module's
// TransactionExecuted is registered under a distinct name because the
// wallet emits an event with the same textual name (different topic0).
const (
	EventWalletCreated    = "WalletCreated"
	EventWalletRegistered = "WalletRegistered"

	EventTransactionProposed  = "TransactionProposed"
	EventTransactionApproved  = "TransactionApproved"
	EventApprovalRevoked      = "ApprovalRevoked"
	EventTransactionExecuted  = "TransactionExecuted"
	EventTransactionCancelled = "TransactionCancelled"
	EventOwnerAdded           = "OwnerAdded"
	EventOwnerRemoved         = "OwnerRemoved"
	EventThresholdChanged     = "ThresholdChanged"
	EventModuleEnabled        = "ModuleEnabled"
	EventModuleDisabled       = "ModuleDisabled"
	EventReceived             = "Received"

	EventRecoverySetup           = "RecoverySetup"
	EventRecoveryInitiated       = "RecoveryInitiated"
	EventRecoveryApproved        = "RecoveryApproved"
	EventRecoveryApprovalRevoked = "RecoveryApprovalRevoked"
	EventRecoveryExecuted        = "RecoveryExecuted"
	EventRecoveryCancelled       = "RecoveryCancelled"

	EventDailyLimitSet                 = "DailyLimitSet"
	EventDailyLimitReset               = "DailyLimitReset"
	EventDailyLimitTransactionExecuted = "DailyLimitTransactionExecuted"

	EventAddressWhitelisted           = "AddressWhitelisted"
	EventAddressRemovedFromWhitelist  = "AddressRemovedFromWhitelist"
	EventWhitelistTransactionExecuted = "WhitelistTransactionExecuted"
)

const factoryABI = `[
	{"type":"event","name":"WalletCreated","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"owners","type":"address[]","indexed":false},
		{"name":"threshold","type":"uint256","indexed":false},
		{"name":"creator","type":"address","indexed":false},
		{"name":"salt","type":"bytes32","indexed":false}]},
	{"type":"event","name":"WalletRegistered","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"registrar","type":"address","indexed":false}]}
]`

const walletABI = `[
	{"type":"event","name":"TransactionProposed","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"proposer","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":false},
		{"name":"value","type":"uint256","indexed":false},
		{"name":"data","type":"bytes","indexed":false}]},
	{"type":"event","name":"TransactionApproved","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"ApprovalRevoked","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"TransactionExecuted","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"executor","type":"address","indexed":true}]},
	{"type":"event","name":"TransactionCancelled","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"canceller","type":"address","indexed":true}]},
	{"type":"event","name":"OwnerAdded","inputs":[
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"OwnerRemoved","inputs":[
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"ThresholdChanged","inputs":[
		{"name":"threshold","type":"uint256","indexed":false}]},
	{"type":"event","name":"ModuleEnabled","inputs":[
		{"name":"module","type":"address","indexed":true}]},
	{"type":"event","name":"ModuleDisabled","inputs":[
		{"name":"module","type":"address","indexed":true}]},
	{"type":"event","name":"Received","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]}
]`

const recoveryABI = `[
	{"type":"event","name":"RecoverySetup","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"guardians","type":"address[]","indexed":false},
		{"name":"guardianThreshold","type":"uint256","indexed":false},
		{"name":"recoveryPeriod","type":"uint256","indexed":false}]},
	{"type":"event","name":"RecoveryInitiated","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true},
		{"name":"newOwners","type":"address[]","indexed":false},
		{"name":"newThreshold","type":"uint256","indexed":false},
		{"name":"initiator","type":"address","indexed":false}]},
	{"type":"event","name":"RecoveryApproved","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true},
		{"name":"guardian","type":"address","indexed":false}]},
	{"type":"event","name":"RecoveryApprovalRevoked","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true},
		{"name":"guardian","type":"address","indexed":false}]},
	{"type":"event","name":"RecoveryExecuted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true}]},
	{"type":"event","name":"RecoveryCancelled","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true}]}
]`

const dailyLimitABI = `[
	{"type":"event","name":"DailyLimitSet","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"limit","type":"uint256","indexed":false}]},
	{"type":"event","name":"DailyLimitReset","inputs":[
		{"name":"wallet","type":"address","indexed":true}]},
	{"type":"event","name":"TransactionExecuted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":false},
		{"name":"value","type":"uint256","indexed":false},
		{"name":"remainingLimit","type":"uint256","indexed":false}]}
]`

const whitelistABI = `[
	{"type":"event","name":"AddressWhitelisted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"target","type":"address","indexed":false},
		{"name":"limit","type":"uint256","indexed":false}]},
	{"type":"event","name":"AddressRemovedFromWhitelist","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"target","type":"address","indexed":false}]},
	{"type":"event","name":"WhitelistTransactionExecuted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":false},
		{"name":"value","type":"uint256","indexed":false}]}
]`

// EventSpec ties a registry name and source group to the parsed event.
type EventSpec struct {
	Name   string
	Source string
	Event  abi.Event
}

var (
	factoryContract    = mustParse(factoryABI)
	walletContract     = mustParse(walletABI)
	recoveryContract   = mustParse(recoveryABI)
	dailyLimitContract = mustParse(dailyLimitABI)
	whitelistContract  = mustParse(whitelistABI)
)

var eventRegistry = buildRegistry()

func mustParse(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("abi: invalid contract table: %v", err))
	}
	return parsed
}

func buildRegistry() map[common.Hash]EventSpec {
	reg := make(map[common.Hash]EventSpec)

	register := func(source string, contract abi.ABI, rename map[string]string) {
		for _, ev := range contract.Events {
			name := ev.RawName
			if alias, ok := rename[name]; ok {
				name = alias
			}
			if prev, dup := reg[ev.ID]; dup {
				panic(fmt.Sprintf("abi: topic %s registered twice: %s and %s", ev.ID, prev.Name, name))
			}
			reg[ev.ID] = EventSpec{Name: name, Source: source, Event: ev}
		}
	}

	register(SourceFactory, factoryContract, nil)
	register(SourceWallet, walletContract, nil)
	register(SourceRecovery, recoveryContract, nil)
	register(SourceDailyLimit, dailyLimitContract, map[string]string{
		"TransactionExecuted": EventDailyLimitTransactionExecuted,
	})
	register(SourceWhitelist, whitelistContract, nil)

	return reg
}

// EventByTopic looks up the event registered for a topic0 hash.
func EventByTopic(topic common.Hash) (EventSpec, bool) {
	spec, ok := eventRegistry[topic]
	return spec, ok
}

// TopicsForSource returns the topic0 hashes of every event a source
// group emits, for use in getLogs filters.
func TopicsForSource(source string) []common.Hash {
	var topics []common.Hash
	for topic, spec := range eventRegistry {
		if spec.Source == source {
			topics = append(topics, topic)
		}
	}
	return topics
}
