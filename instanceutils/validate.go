package instanceutils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/fhevm-client/interfaces"
)

const (
	// MaxDecryptContracts caps the contracts bound by one authorization.
	MaxDecryptContracts = 10
	// MaxDecryptBits caps the total width of values decrypted in one batch.
	MaxDecryptBits = 2048

	secondsPerDay = 86400
)

var ErrInvalidDecryptRequest = errors.New("invalid user decryption request")

// IsValidAddress reports whether s is a 20-byte hex address. Mixed-case
// addresses must carry a correct EIP-55 checksum.
func IsValidAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	digits := s
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
	}
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return true
	}
	return common.HexToAddress(digits).Hex()[2:] == digits
}

// ValidateUserDecrypt checks a batched decryption request against the
// authorization it carries, at time now.
func ValidateUserDecrypt(pairs []interfaces.HandleContractPair, req *interfaces.UserDecryptRequest, now time.Time) error {
	if req == nil {
		return fmt.Errorf("%w: missing authorization", ErrInvalidDecryptRequest)
	}
	if len(pairs) == 0 {
		return fmt.Errorf("%w: no handles", ErrInvalidDecryptRequest)
	}
	if len(req.ContractAddresses) == 0 || len(req.ContractAddresses) > MaxDecryptContracts {
		return fmt.Errorf("%w: %d contract addresses", ErrInvalidDecryptRequest, len(req.ContractAddresses))
	}
	if req.UserAddress == (common.Address{}) {
		return fmt.Errorf("%w: missing user address", ErrInvalidDecryptRequest)
	}
	if req.Signature == "" || req.PublicKey == "" || req.PrivateKey == "" {
		return fmt.Errorf("%w: incomplete authorization", ErrInvalidDecryptRequest)
	}
	if req.DurationDays <= 0 || req.DurationDays > 365 {
		return fmt.Errorf("%w: duration of %d days", ErrInvalidDecryptRequest, req.DurationDays)
	}

	nowSec := now.Unix()
	if req.StartTimestamp > nowSec {
		return fmt.Errorf("%w: authorization starts in the future", ErrInvalidDecryptRequest)
	}
	if nowSec >= req.StartTimestamp+req.DurationDays*secondsPerDay {
		return fmt.Errorf("%w: authorization expired", ErrInvalidDecryptRequest)
	}

	allowed := make(map[common.Address]bool, len(req.ContractAddresses))
	for _, addr := range req.ContractAddresses {
		allowed[addr] = true
	}

	bits := 0
	for _, pair := range pairs {
		if !allowed[pair.ContractAddress] {
			return fmt.Errorf("%w: contract %s is not covered by the authorization", ErrInvalidDecryptRequest, pair.ContractAddress.Hex())
		}
		bits += HandleType(pair.Handle).Bits()
	}
	if bits > MaxDecryptBits {
		return fmt.Errorf("%w: %d bits exceed the batch limit", ErrInvalidDecryptRequest, bits)
	}

	return nil
}
