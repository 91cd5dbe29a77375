package api

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/fhevm-client/interfaces"
)

var ErrUnknownValueType = errors.New("unknown value type")

// InstanceResponse reports the lifecycle state of the encryption instance.
type InstanceResponse struct {
	Status     string `json:"status"`
	Step       string `json:"step,omitempty"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`

	// PublicKeyID is set when the instance is ready and exposes a key.
	PublicKeyID string `json:"publicKeyId,omitempty"`
}

// Value is one clear value with its encrypted type: bool, uint8, uint16,
// uint32, uint64, uint128, uint256 or address. Value holds a decimal or 0x
// hex integer, true/false, or an address.
type Value struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type EncryptRequest struct {
	ContractAddress common.Address `json:"contractAddress"`
	UserAddress     common.Address `json:"userAddress"`
	Values          []Value        `json:"values"`
}

type EncryptResponse struct {
	Handles    []common.Hash `json:"handles"`
	InputProof hexutil.Bytes `json:"inputProof"`
}

type DecryptRequest struct {
	Handles []interfaces.HandleContractPair `json:"handles"`
}

// DecryptResponse maps handle hex to the clear value in decimal.
type DecryptResponse struct {
	UserAddress common.Address    `json:"userAddress"`
	Values      map[string]string `json:"values"`
}

// AuthorizationResponse describes a cached decryption authorization. The
// private key never leaves the daemon.
type AuthorizationResponse struct {
	UserAddress       common.Address   `json:"userAddress"`
	ContractAddresses []common.Address `json:"contractAddresses"`
	PublicKey         string           `json:"publicKey"`
	StartTimestamp    int64            `json:"startTimestamp"`
	DurationDays      int64            `json:"durationDays"`
	ExpiresAt         int64            `json:"expiresAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// AddTo appends v to input with the matching typed adder.
func (v Value) AddTo(input interfaces.EncryptedInput) error {
	t := strings.ToLower(v.Type)
	switch t {
	case "bool":
		switch strings.ToLower(v.Value) {
		case "true", "1":
			input.AddBool(true)
		case "false", "0":
			input.AddBool(false)
		default:
			return fmt.Errorf("invalid bool %q", v.Value)
		}
		return nil
	case "address":
		if !common.IsHexAddress(v.Value) {
			return fmt.Errorf("%w: %q", interfaces.ErrInvalidAddress, v.Value)
		}
		input.AddAddress(common.HexToAddress(v.Value))
		return nil
	}

	n, ok := new(big.Int).SetString(v.Value, 0)
	if !ok || n.Sign() < 0 {
		return fmt.Errorf("invalid integer %q", v.Value)
	}

	switch t {
	case "uint8", "uint16", "uint32", "uint64":
		if !n.IsUint64() {
			return fmt.Errorf("value %s does not fit %s", v.Value, t)
		}
	}

	switch t {
	case "uint8":
		if n.Uint64() > 0xff {
			return fmt.Errorf("value %s does not fit %s", v.Value, t)
		}
		input.Add8(uint8(n.Uint64()))
	case "uint16":
		if n.Uint64() > 0xffff {
			return fmt.Errorf("value %s does not fit %s", v.Value, t)
		}
		input.Add16(uint16(n.Uint64()))
	case "uint32":
		if n.Uint64() > 0xffffffff {
			return fmt.Errorf("value %s does not fit %s", v.Value, t)
		}
		input.Add32(uint32(n.Uint64()))
	case "uint64":
		input.Add64(n.Uint64())
	case "uint128":
		input.Add128(n)
	case "uint256":
		input.Add256(n)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownValueType, v.Type)
	}
	return nil
}
