package mock

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/internal/rpctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMetadata = &interfaces.RelayerMetadata{
	ACLAddress:           common.HexToAddress("0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"),
	InputVerifierAddress: common.HexToAddress("0x901F8942346f7AB3a01F6D7613119Bca447Bb030"),
	KMSVerifierAddress:   common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"),
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMockNode scripts the relayer extensions of a development node.
func newMockNode(t *testing.T) *rpctest.Node {
	node := rpctest.NewNode(t)
	var mu sync.Mutex
	values := make(map[common.Hash]*big.Int)

	node.Handle(InputProofMethod, func(params []json.RawMessage) (interface{}, error) {
		var req instanceutils.InputProofRequest
		if err := json.Unmarshal(params[0], &req); err != nil {
			return nil, err
		}
		decoded, err := instanceutils.DeserializeValues(req.CiphertextWithInputVerification)
		if err != nil {
			return nil, err
		}
		handles := instanceutils.ComputeHandles(req.CiphertextWithInputVerification, instanceutils.ValueTypes(decoded), testMetadata.ACLAddress, uint64(req.ContractChainID))

		mu.Lock()
		for i, h := range handles {
			values[h] = decoded[i].Value
		}
		mu.Unlock()
		return instanceutils.InputProofResult{Handles: handles, Signatures: []hexutil.Bytes{}}, nil
	})

	node.Handle(UserDecryptMethod, func(params []json.RawMessage) (interface{}, error) {
		var payload instanceutils.UserDecryptPayload
		if err := json.Unmarshal(params[0], &payload); err != nil {
			return nil, err
		}
		result := instanceutils.UserDecryptResult{Values: make(map[common.Hash]string)}
		mu.Lock()
		for _, pair := range payload.HandleContractPairs {
			if v, ok := values[pair.Handle]; ok {
				result.Values[pair.Handle] = v.String()
			}
		}
		mu.Unlock()
		return result, nil
	})

	return node
}

func TestNewInstanceRequiresMetadata(t *testing.T) {
	_, err := NewInstance(context.Background(), "http://localhost:8545", 31337, nil, discardLogger())
	assert.Error(t, err)
}

func TestMockInstance(t *testing.T) {
	node := newMockNode(t)
	instance, err := NewInstance(context.Background(), node.URL, 31337, testMetadata, discardLogger())
	require.NoError(t, err)
	defer instance.Close()

	assert.Nil(t, instance.GetPublicKey())
	assert.Nil(t, instance.GetPublicParams(2048))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	user := crypto.PubkeyToAddress(key.PublicKey)
	contract := common.HexToAddress("0xd0")

	input, err := instance.CreateEncryptedInput(contract, user).Add64(250).Add8(7).Encrypt(context.Background())
	require.NoError(t, err)
	require.Len(t, input.Handles, 2)
	assert.Equal(t, uint64(31337), instanceutils.HandleChainID(input.Handles[0]))

	kp, err := instance.GenerateKeypair()
	require.NoError(t, err)

	start := time.Now().Unix()
	td, err := instance.CreateEIP712(kp.PublicKey, []common.Address{contract}, start, 1)
	require.NoError(t, err)
	assert.Equal(t, testMetadata.KMSVerifierAddress.Hex(), td.Domain.VerifyingContract)

	hash, err := instanceutils.TypedDataHash(*td)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, key)
	require.NoError(t, err)

	pairs := []interfaces.HandleContractPair{
		{Handle: input.Handles[0], ContractAddress: contract},
		{Handle: input.Handles[1], ContractAddress: contract},
	}
	req := &interfaces.UserDecryptRequest{
		PrivateKey:        kp.PrivateKey,
		PublicKey:         kp.PublicKey,
		Signature:         hexutil.Encode(sig),
		ContractAddresses: []common.Address{contract},
		UserAddress:       user,
		StartTimestamp:    start,
		DurationDays:      1,
	}

	values, err := instance.UserDecrypt(context.Background(), pairs, req)
	require.NoError(t, err)
	assert.Equal(t, int64(250), values[input.Handles[0]].Int64())
	assert.Equal(t, int64(7), values[input.Handles[1]].Int64())
	assert.Equal(t, 1, node.Calls(UserDecryptMethod))

	t.Run("signature by someone else", func(t *testing.T) {
		forged := *req
		forged.UserAddress = common.HexToAddress("0xbad")
		_, err := instance.UserDecrypt(context.Background(), pairs, &forged)
		assert.ErrorIs(t, err, instanceutils.ErrInvalidSignature)
		assert.Equal(t, 1, node.Calls(UserDecryptMethod))
	})

	t.Run("malformed signature", func(t *testing.T) {
		bad := *req
		bad.Signature = "0xzz"
		_, err := instance.UserDecrypt(context.Background(), pairs, &bad)
		assert.ErrorIs(t, err, instanceutils.ErrInvalidSignature)
	})
}

func TestMockInputProofFailure(t *testing.T) {
	node := rpctest.NewNode(t)
	node.HandleError(InputProofMethod, -32000, "input verification failed")

	instance, err := NewInstance(context.Background(), node.URL, 31337, testMetadata, discardLogger())
	require.NoError(t, err)
	defer instance.Close()

	_, err = instance.CreateEncryptedInput(common.HexToAddress("0xd0"), common.HexToAddress("0xa0")).AddBool(true).Encrypt(context.Background())
	assert.ErrorContains(t, err, "input verification failed")
}
