package instanceutils

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/fhevm-client/interfaces"
)

// InputProofRequest asks the relayer (or a mock node) to verify an encrypted
// input and return its handles with coprocessor signatures.
type InputProofRequest struct {
	ContractAddress                 common.Address `json:"contractAddress"`
	UserAddress                     common.Address `json:"userAddress"`
	CiphertextWithInputVerification hexutil.Bytes  `json:"ciphertextWithInputVerification"`
	ContractChainID                 hexutil.Uint64 `json:"contractChainId"`
	ExtraData                       hexutil.Bytes  `json:"extraData"`
}

type InputProofResult struct {
	Handles    []common.Hash   `json:"handles"`
	Signatures []hexutil.Bytes `json:"signatures"`
}

// InputProofResponse wraps the result the way the relayer HTTP API does.
type InputProofResponse struct {
	Response InputProofResult `json:"response"`
}

type RequestValidity struct {
	StartTimestamp string `json:"startTimestamp"`
	DurationDays   string `json:"durationDays"`
}

// UserDecryptPayload is the body of a batched user decryption request.
type UserDecryptPayload struct {
	HandleContractPairs []interfaces.HandleContractPair `json:"handleContractPairs"`
	RequestValidity     RequestValidity                 `json:"requestValidity"`
	ContractsChainID    string                          `json:"contractsChainId"`
	ContractAddresses   []common.Address                `json:"contractAddresses"`
	UserAddress         common.Address                  `json:"userAddress"`
	Signature           string                          `json:"signature"`
	PublicKey           string                          `json:"publicKey"`
	ExtraData           string                          `json:"extraData"`
}

// NewUserDecryptPayload assembles the payload from an authorization tuple.
// Signature and public key are sent without a hex prefix.
func NewUserDecryptPayload(pairs []interfaces.HandleContractPair, req *interfaces.UserDecryptRequest, contractsChainID uint64) *UserDecryptPayload {
	return &UserDecryptPayload{
		HandleContractPairs: pairs,
		RequestValidity: RequestValidity{
			StartTimestamp: strconv.FormatInt(req.StartTimestamp, 10),
			DurationDays:   strconv.FormatInt(req.DurationDays, 10),
		},
		ContractsChainID:  strconv.FormatUint(contractsChainID, 10),
		ContractAddresses: req.ContractAddresses,
		UserAddress:       req.UserAddress,
		Signature:         Strip0x(req.Signature),
		PublicKey:         Strip0x(req.PublicKey),
		ExtraData:         DefaultExtraData,
	}
}

// Validity parses the request window back into integers.
func (p *UserDecryptPayload) Validity() (startTimestamp, durationDays int64, err error) {
	startTimestamp, err = strconv.ParseInt(p.RequestValidity.StartTimestamp, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	durationDays, err = strconv.ParseInt(p.RequestValidity.DurationDays, 10, 64)
	return startTimestamp, durationDays, err
}

// UserDecryptResult carries the clear values keyed by handle, as decimal
// strings.
type UserDecryptResult struct {
	Values map[common.Hash]string `json:"values"`
}

// ValuesFor picks the value of every pair's handle out of the result.
func (r *UserDecryptResult) ValuesFor(pairs []interfaces.HandleContractPair) (map[common.Hash]*big.Int, error) {
	values := make(map[common.Hash]*big.Int, len(pairs))
	for _, pair := range pairs {
		raw, ok := r.Values[pair.Handle]
		if !ok {
			return nil, fmt.Errorf("no value for handle %s", pair.Handle.Hex())
		}
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("malformed value for handle %s", pair.Handle.Hex())
		}
		values[pair.Handle] = v
	}
	return values, nil
}

// SealedUserDecryptResponse is the relayer reply: a UserDecryptResult
// serialized to JSON and sealed to the request public key.
type SealedUserDecryptResponse struct {
	Response struct {
		Payload hexutil.Bytes `json:"payload"`
	} `json:"response"`
}

// KeyURLResponse lists where the network public key and parameters live.
type KeyURLResponse struct {
	Response struct {
		FheKeyInfo []struct {
			FhePublicKey struct {
				DataID string   `json:"dataId"`
				URLs   []string `json:"urls"`
			} `json:"fhePublicKey"`
		} `json:"fheKeyInfo"`
		CRS map[string]struct {
			DataID string   `json:"dataId"`
			URLs   []string `json:"urls"`
		} `json:"crs"`
	} `json:"response"`
}
