// Package decryption caches wallet-signed, time-boxed authorizations that
// let a user decrypt values addressed to them.
package decryption

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ruteri/fhevm-client/interfaces"
)

const (
	// DefaultDurationDays is the validity of a new authorization.
	DefaultDurationDays = 365

	secondsPerDay = 24 * 60 * 60

	storageKeyPrefix = "fhevm:decrypt"
)

// DecryptionAuthorization is a signed grant binding an ephemeral keypair to
// a user and a set of contracts for a limited time.
type DecryptionAuthorization struct {
	PublicKey         string              `json:"publicKey"`
	PrivateKey        string              `json:"privateKey"`
	Signature         string              `json:"signature"`
	StartTimestamp    int64               `json:"startTimestamp"`
	DurationDays      int64               `json:"durationDays"`
	UserAddress       common.Address      `json:"userAddress"`
	ContractAddresses []common.Address    `json:"contractAddresses"`
	EIP712            *apitypes.TypedData `json:"eip712"`
}

// ExpiresAt is the first instant at which the authorization is no longer
// valid.
func (a *DecryptionAuthorization) ExpiresAt() time.Time {
	return time.Unix(a.StartTimestamp+a.DurationDays*secondsPerDay, 0)
}

// IsValidAt reports whether t is strictly before expiry.
func (a *DecryptionAuthorization) IsValidAt(t time.Time) bool {
	return t.Unix() < a.StartTimestamp+a.DurationDays*secondsPerDay
}

func (a *DecryptionAuthorization) IsValid() bool {
	return a.IsValidAt(time.Now())
}

func (a *DecryptionAuthorization) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

func FromJSON(data []byte) (*DecryptionAuthorization, error) {
	var a DecryptionAuthorization
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("malformed decryption authorization: %w", err)
	}
	return &a, nil
}

// UserDecryptRequest is the authorization tuple handed to
// Instance.UserDecrypt.
func (a *DecryptionAuthorization) UserDecryptRequest() *interfaces.UserDecryptRequest {
	return &interfaces.UserDecryptRequest{
		PrivateKey:        a.PrivateKey,
		PublicKey:         a.PublicKey,
		Signature:         a.Signature,
		ContractAddresses: append([]common.Address(nil), a.ContractAddresses...),
		UserAddress:       a.UserAddress,
		StartTimestamp:    a.StartTimestamp,
		DurationDays:      a.DurationDays,
	}
}

// Covers reports whether every contract is part of the authorization.
func (a *DecryptionAuthorization) Covers(contracts []common.Address) bool {
	allowed := make(map[common.Address]bool, len(a.ContractAddresses))
	for _, c := range a.ContractAddresses {
		allowed[c] = true
	}
	for _, c := range contracts {
		if !allowed[c] {
			return false
		}
	}
	return true
}

// StorageKey derives where an authorization is kept:
// fhevm:decrypt:<user>:<c1,c2,...>[:<publicKey>]. Contract order is kept as
// given, so the same set in another order is another key.
func StorageKey(user common.Address, contracts []common.Address, publicKey string) string {
	addrs := make([]string, len(contracts))
	for i, c := range contracts {
		addrs[i] = c.Hex()
	}

	key := storageKeyPrefix + ":" + user.Hex() + ":" + strings.Join(addrs, ",")
	if publicKey != "" {
		key += ":" + publicKey
	}
	return key
}
