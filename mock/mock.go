// Package mock implements an encryption instance backed by a local
// development node. The node plays the relayer through JSON-RPC extensions
// and values travel in clear, so nothing here is confidential.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ruteri/fhevm-client/cryptoutils"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
)

const (
	InputProofMethod  = "fhevm_relayer_v1_input_proof"
	UserDecryptMethod = "fhevm_relayer_v1_user_decrypt"
)

type Instance struct {
	client   *rpc.Client
	chainID  uint64
	metadata interfaces.RelayerMetadata
	log      *slog.Logger

	now func() time.Time
}

var _ interfaces.Instance = (*Instance)(nil)

// NewInstance dials the node at rpcURL. metadata must come from a successful
// probe of that node.
func NewInstance(ctx context.Context, rpcURL string, chainID uint64, metadata *interfaces.RelayerMetadata, log *slog.Logger) (*Instance, error) {
	if metadata == nil {
		return nil, fmt.Errorf("mock instance for chain %d requires relayer metadata", chainID)
	}

	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("could not dial mock node: %w", err)
	}

	log.Debug("Created mock instance",
		slog.Uint64("chainId", chainID),
		slog.String("acl", metadata.ACLAddress.Hex()),
		slog.String("kmsVerifier", metadata.KMSVerifierAddress.Hex()))

	return &Instance{
		client:   client,
		chainID:  chainID,
		metadata: *metadata,
		log:      log,
		now:      time.Now,
	}, nil
}

func (i *Instance) Close() {
	i.client.Close()
}

func (i *Instance) Metadata() interfaces.RelayerMetadata {
	return i.metadata
}

func (i *Instance) GenerateKeypair() (*interfaces.Keypair, error) {
	pub, priv, err := cryptoutils.GenerateDecryptionKeypair()
	if err != nil {
		return nil, err
	}
	return &interfaces.Keypair{
		PublicKey:  hexutil.Encode(pub),
		PrivateKey: hexutil.Encode(priv),
	}, nil
}

// CreateEIP712 builds the authorization verified by the node's KMS verifier
// contract, on the node's own chain.
func (i *Instance) CreateEIP712(publicKey string, contractAddresses []common.Address, startTimestamp, durationDays int64) (*apitypes.TypedData, error) {
	domain := instanceutils.UserDecryptDomain{
		ChainID:           i.chainID,
		VerifyingContract: i.metadata.KMSVerifierAddress,
	}
	return instanceutils.UserDecryptTypedData(domain, publicKey, contractAddresses, i.chainID, startTimestamp, durationDays)
}

func (i *Instance) CreateEncryptedInput(contractAddress, userAddress common.Address) interfaces.EncryptedInput {
	return instanceutils.NewInputBuilder(contractAddress, userAddress, i.submitInput)
}

func (i *Instance) submitInput(ctx context.Context, contractAddress, userAddress common.Address, values []instanceutils.EncryptedValue) (*interfaces.EncryptedInputResult, error) {
	req := &instanceutils.InputProofRequest{
		ContractAddress:                 contractAddress,
		UserAddress:                     userAddress,
		CiphertextWithInputVerification: instanceutils.SerializeValues(values),
		ContractChainID:                 hexutil.Uint64(i.chainID),
		ExtraData:                       hexutil.Bytes{0x00},
	}

	var result instanceutils.InputProofResult
	if err := i.client.CallContext(ctx, &result, InputProofMethod, req); err != nil {
		return nil, fmt.Errorf("mock input proof failed: %w", err)
	}
	if len(result.Handles) != len(values) {
		return nil, fmt.Errorf("mock node returned %d handles for %d values", len(result.Handles), len(values))
	}

	sigs := make([][]byte, len(result.Signatures))
	for n, sig := range result.Signatures {
		sigs[n] = sig
	}
	proof, err := instanceutils.PackInputProof(result.Handles, sigs, req.ExtraData)
	if err != nil {
		return nil, err
	}
	return &interfaces.EncryptedInputResult{Handles: result.Handles, InputProof: proof}, nil
}

// UserDecrypt checks the authorization signature locally, then reads the
// clear values from the node.
func (i *Instance) UserDecrypt(ctx context.Context, pairs []interfaces.HandleContractPair, req *interfaces.UserDecryptRequest) (map[common.Hash]*big.Int, error) {
	if err := instanceutils.ValidateUserDecrypt(pairs, req, i.now()); err != nil {
		return nil, err
	}

	td, err := i.CreateEIP712(req.PublicKey, req.ContractAddresses, req.StartTimestamp, req.DurationDays)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", instanceutils.ErrInvalidSignature, err)
	}
	if err := instanceutils.VerifyTypedDataSignature(*td, sig, req.UserAddress); err != nil {
		return nil, err
	}

	payload := instanceutils.NewUserDecryptPayload(pairs, req, i.chainID)
	var result instanceutils.UserDecryptResult
	if err := i.client.CallContext(ctx, &result, UserDecryptMethod, payload); err != nil {
		return nil, fmt.Errorf("mock user decrypt failed: %w", err)
	}
	return result.ValuesFor(pairs)
}

// GetPublicKey returns nil: mock instances have no network key.
func (i *Instance) GetPublicKey() *interfaces.PublicKey {
	return nil
}

func (i *Instance) GetPublicParams(bits int) *interfaces.PublicParams {
	return nil
}
