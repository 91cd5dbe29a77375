package instanceutils

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	UserDecryptPrimaryType = "UserDecryptRequestVerification"

	DecryptionDomainName    = "Decryption"
	DecryptionDomainVersion = "1"

	// DefaultExtraData is the extra data field of version 0 requests.
	DefaultExtraData = "0x00"
)

var ErrInvalidSignature = errors.New("invalid signature")

// UserDecryptDomain describes who verifies the authorization.
type UserDecryptDomain struct {
	ChainID           uint64
	VerifyingContract common.Address
}

// UserDecryptTypedData builds the typed data a wallet signs to authorize
// decryption. Message values are strings and []interface{} so the payload
// survives a JSON round trip unchanged.
func UserDecryptTypedData(domain UserDecryptDomain, publicKey string, contractAddresses []common.Address, contractsChainID uint64, startTimestamp, durationDays int64) (*apitypes.TypedData, error) {
	if _, err := hexutil.Decode(with0x(publicKey)); err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	if len(contractAddresses) == 0 {
		return nil, errors.New("at least one contract address is required")
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("invalid duration: %d days", durationDays)
	}

	addresses := make([]interface{}, len(contractAddresses))
	for i, addr := range contractAddresses {
		addresses[i] = addr.Hex()
	}

	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			UserDecryptPrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "contractsChainId", Type: "uint256"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
				{Name: "extraData", Type: "bytes"},
			},
		},
		PrimaryType: UserDecryptPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DecryptionDomainName,
			Version:           DecryptionDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         with0x(publicKey),
			"contractAddresses": addresses,
			"contractsChainId":  strconv.FormatUint(contractsChainID, 10),
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.FormatInt(durationDays, 10),
			"extraData":         DefaultExtraData,
		},
	}, nil
}

// TypedDataHash returns the EIP-712 digest that is signed.
func TypedDataHash(td apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	return hash, err
}

// RecoverTypedDataSigner returns the address that produced sig over td.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverTypedDataSigner(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	hash, err := TypedDataHash(td)
	if err != nil {
		return common.Address{}, err
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyTypedDataSignature checks that signer produced sig over td.
func VerifyTypedDataSignature(td apitypes.TypedData, sig []byte, signer common.Address) error {
	recovered, err := RecoverTypedDataSigner(td, sig)
	if err != nil {
		return err
	}
	if recovered != signer {
		return fmt.Errorf("%w: signed by %s, expected %s", ErrInvalidSignature, recovered.Hex(), signer.Hex())
	}
	return nil
}

func with0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// Strip0x removes a hex prefix if present.
func Strip0x(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}
