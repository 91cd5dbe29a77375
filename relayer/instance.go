package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ruteri/fhevm-client/cryptoutils"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
)

// Instance is a relayer-backed encryption instance.
type Instance struct {
	config       interfaces.InstanceConfig
	client       *client
	publicKey    *interfaces.PublicKey
	publicParams *interfaces.PublicParams
	log          *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

var _ interfaces.Instance = (*Instance)(nil)

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

func (i *Instance) CreateEIP712(publicKey string, contractAddresses []common.Address, startTimestamp, durationDays int64) (*apitypes.TypedData, error) {
	domain := instanceutils.UserDecryptDomain{
		ChainID:           i.config.GatewayChainID,
		VerifyingContract: i.config.VerifyingContractAddressDecryption,
	}
	return instanceutils.UserDecryptTypedData(domain, publicKey, contractAddresses, i.config.ChainID, startTimestamp, durationDays)
}

func (i *Instance) CreateEncryptedInput(contractAddress, userAddress common.Address) interfaces.EncryptedInput {
	return instanceutils.NewInputBuilder(contractAddress, userAddress, i.submitInput)
}

// InputAAD binds a sealed input to its contract and user.
func InputAAD(contractAddress, userAddress common.Address) []byte {
	return append(contractAddress.Bytes(), userAddress.Bytes()...)
}

func (i *Instance) submitInput(ctx context.Context, contractAddress, userAddress common.Address, values []instanceutils.EncryptedValue) (*interfaces.EncryptedInputResult, error) {
	sealed, err := cryptoutils.Seal(i.publicKey.Data, instanceutils.SerializeValues(values), InputAAD(contractAddress, userAddress))
	if err != nil {
		return nil, fmt.Errorf("could not encrypt input: %w", err)
	}

	req := &instanceutils.InputProofRequest{
		ContractAddress:                 contractAddress,
		UserAddress:                     userAddress,
		CiphertextWithInputVerification: sealed,
		ContractChainID:                 hexutil.Uint64(i.config.ChainID),
		ExtraData:                       hexutil.Bytes{0x00},
	}

	var resp instanceutils.InputProofResponse
	if err := i.client.do(ctx, http.MethodPost, "/v1/input-proof", req, &resp); err != nil {
		return nil, fmt.Errorf("input proof request failed: %w", err)
	}

	handles := resp.Response.Handles
	if len(handles) != len(values) {
		return nil, fmt.Errorf("relayer returned %d handles for %d values", len(handles), len(values))
	}

	sigs := make([][]byte, len(resp.Response.Signatures))
	for n, sig := range resp.Response.Signatures {
		sigs[n] = sig
	}
	proof, err := instanceutils.PackInputProof(handles, sigs, req.ExtraData)
	if err != nil {
		return nil, err
	}

	i.log.Debug("Encrypted input verified", slog.String("contract", contractAddress.Hex()), slog.Int("values", len(values)))
	return &interfaces.EncryptedInputResult{Handles: handles, InputProof: proof}, nil
}

// UserDecrypt asks the relayer to re-encrypt the values behind pairs to the
// request public key and opens the reply with the request private key.
func (i *Instance) UserDecrypt(ctx context.Context, pairs []interfaces.HandleContractPair, req *interfaces.UserDecryptRequest) (map[common.Hash]*big.Int, error) {
	now := time.Now()
	if i.now != nil {
		now = i.now()
	}
	if err := instanceutils.ValidateUserDecrypt(pairs, req, now); err != nil {
		return nil, err
	}

	privateKey, err := hexutil.Decode(req.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoutils.ErrInvalidPrivateKey, err)
	}

	payload := instanceutils.NewUserDecryptPayload(pairs, req, i.config.ChainID)
	var resp instanceutils.SealedUserDecryptResponse
	if err := i.client.do(ctx, http.MethodPost, "/v1/user-decrypt", payload, &resp); err != nil {
		return nil, fmt.Errorf("user decrypt request failed: %w", err)
	}

	opened, err := cryptoutils.Open(privateKey, resp.Response.Payload, req.UserAddress.Bytes())
	if err != nil {
		return nil, fmt.Errorf("could not open relayer reply: %w", err)
	}

	return decodeDecryptResult(opened, pairs)
}

func decodeDecryptResult(data []byte, pairs []interfaces.HandleContractPair) (map[common.Hash]*big.Int, error) {
	var result instanceutils.UserDecryptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("malformed decryption result: %w", err)
	}
	return result.ValuesFor(pairs)
}

func (i *Instance) GetPublicKey() *interfaces.PublicKey {
	return i.publicKey
}

// GetPublicParams returns the parameters the instance was built with when
// they match bits.
func (i *Instance) GetPublicParams(bits int) *interfaces.PublicParams {
	if i.publicParams == nil || i.publicParams.Bits != bits {
		return nil
	}
	return i.publicParams
}
