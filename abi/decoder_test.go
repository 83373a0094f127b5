package abi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoversAllSignatures(t *testing.T) {
	tests := []struct {
		signature string
		name      string
		source    string
	}{
		{"WalletCreated(address,address[],uint256,address,bytes32)", EventWalletCreated, SourceFactory},
		{"WalletRegistered(address,address)", EventWalletRegistered, SourceFactory},
		{"TransactionProposed(bytes32,address,address,uint256,bytes)", EventTransactionProposed, SourceWallet},
		{"TransactionApproved(bytes32,address)", EventTransactionApproved, SourceWallet},
		{"ApprovalRevoked(bytes32,address)", EventApprovalRevoked, SourceWallet},
		{"TransactionExecuted(bytes32,address)", EventTransactionExecuted, SourceWallet},
		{"TransactionCancelled(bytes32,address)", EventTransactionCancelled, SourceWallet},
		{"OwnerAdded(address)", EventOwnerAdded, SourceWallet},
		{"OwnerRemoved(address)", EventOwnerRemoved, SourceWallet},
		{"ThresholdChanged(uint256)", EventThresholdChanged, SourceWallet},
		{"ModuleEnabled(address)", EventModuleEnabled, SourceWallet},
		{"ModuleDisabled(address)", EventModuleDisabled, SourceWallet},
		{"Received(address,uint256)", EventReceived, SourceWallet},
		{"RecoverySetup(address,address[],uint256,uint256)", EventRecoverySetup, SourceRecovery},
		{"RecoveryInitiated(address,bytes32,address[],uint256,address)", EventRecoveryInitiated, SourceRecovery},
		{"RecoveryApproved(address,bytes32,address)", EventRecoveryApproved, SourceRecovery},
		{"RecoveryApprovalRevoked(address,bytes32,address)", EventRecoveryApprovalRevoked, SourceRecovery},
		{"RecoveryExecuted(address,bytes32)", EventRecoveryExecuted, SourceRecovery},
		{"RecoveryCancelled(address,bytes32)", EventRecoveryCancelled, SourceRecovery},
		{"DailyLimitSet(address,uint256)", EventDailyLimitSet, SourceDailyLimit},
		{"DailyLimitReset(address)", EventDailyLimitReset, SourceDailyLimit},
		{"TransactionExecuted(address,address,uint256,uint256)", EventDailyLimitTransactionExecuted, SourceDailyLimit},
		{"AddressWhitelisted(address,address,uint256)", EventAddressWhitelisted, SourceWhitelist},
		{"AddressRemovedFromWhitelist(address,address)", EventAddressRemovedFromWhitelist, SourceWhitelist},
		{"WhitelistTransactionExecuted(address,address,uint256)", EventWhitelistTransactionExecuted, SourceWhitelist},
	}

	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			topic := common.BytesToHash(crypto.Keccak256([]byte(tt.signature)))
			spec, ok := EventByTopic(topic)
			require.True(t, ok, "signature not registered")
			assert.Equal(t, tt.name, spec.Name)
			assert.Equal(t, tt.source, spec.Source)
		})
	}

	assert.Len(t, eventRegistry, len(tests))
}

func TestTopicsForSource(t *testing.T) {
	assert.Len(t, TopicsForSource(SourceFactory), 2)
	assert.Len(t, TopicsForSource(SourceWallet), 11)
	assert.Empty(t, TopicsForSource("unknown"))
}

func TestDecodeLogWalletCreated(t *testing.T) {
	event := factoryContract.Events["WalletCreated"]

	owners := []common.Address{
		common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"),
		common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"),
	}
	creator := common.HexToAddress("0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD")
	var salt [32]byte
	salt[31] = 0x7

	data, err := event.Inputs.NonIndexed().Pack(owners, big.NewInt(2), creator, salt)
	require.NoError(t, err)

	wallet := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	log := &types.Log{
		Address:     common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Topics:      []common.Hash{event.ID, common.BytesToHash(wallet.Bytes())},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111"),
		Index:       0,
	}

	decoded, err := DecodeLog(log)
	require.NoError(t, err)

	assert.Equal(t, EventWalletCreated, decoded.Name)
	assert.Equal(t, SourceFactory, decoded.Source)
	assert.Equal(t, "0x1000000000000000000000000000000000000001", decoded.Address)
	assert.Equal(t, uint64(100), decoded.BlockNumber)

	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", decoded.Args["wallet"])
	assert.Equal(t, []string{
		"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		"0xcccccccccccccccccccccccccccccccccccccccc",
	}, decoded.Args["owners"])
	assert.Equal(t, "2", decoded.Args["threshold"])
	assert.Equal(t, "0xdddddddddddddddddddddddddddddddddddddddd", decoded.Args["creator"])
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000007", decoded.Args["salt"])
}

func TestDecodeLogTransactionProposed(t *testing.T) {
	event := walletContract.Events["TransactionProposed"]

	to := common.HexToAddress("0xEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEE")
	data, err := event.Inputs.NonIndexed().Pack(to, big.NewInt(1), []byte{0x12, 0x34})
	require.NoError(t, err)

	txHash := common.HexToHash("0x5555555555555555555555555555555555555555555555555555555555555555")
	proposer := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	decoded, err := DecodeLog(&types.Log{
		Address:     common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"),
		Topics:      []common.Hash{event.ID, txHash, common.BytesToHash(proposer.Bytes())},
		Data:        data,
		BlockNumber: 101,
		Index:       2,
	})
	require.NoError(t, err)

	assert.Equal(t, EventTransactionProposed, decoded.Name)
	assert.Equal(t, txHash.Hex(), decoded.Args["txHash"])
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", decoded.Args["proposer"])
	assert.Equal(t, "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", decoded.Args["to"])
	assert.Equal(t, "1", decoded.Args["value"])
	assert.Equal(t, "0x1234", decoded.Args["data"])
}

func TestDecodeLogDailyLimitVariantRenamed(t *testing.T) {
	event := dailyLimitContract.Events["TransactionExecuted"]

	to := common.HexToAddress("0xEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEE")
	data, err := event.Inputs.NonIndexed().Pack(to, big.NewInt(500), big.NewInt(1500))
	require.NoError(t, err)

	wallet := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	decoded, err := DecodeLog(&types.Log{
		Address: common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Topics:  []common.Hash{event.ID, common.BytesToHash(wallet.Bytes())},
		Data:    data,
	})
	require.NoError(t, err)

	assert.Equal(t, EventDailyLimitTransactionExecuted, decoded.Name)
	assert.Equal(t, SourceDailyLimit, decoded.Source)
	assert.Equal(t, "500", decoded.Args["value"])
	assert.Equal(t, "1500", decoded.Args["remainingLimit"])
}

func TestDecodeLogUnknownTopic(t *testing.T) {
	_, err := DecodeLog(&types.Log{
		Topics: []common.Hash{common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000")},
	})
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeLogNoTopics(t *testing.T) {
	_, err := DecodeLog(&types.Log{})
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeLogTruncatedData(t *testing.T) {
	event := walletContract.Events["ThresholdChanged"]

	_, err := DecodeLog(&types.Log{
		Topics: []common.Hash{event.ID},
		Data:   []byte{0x01, 0x02},
	})
	require.Error(t, err)
}
