// Package signer provides wallet accounts that sign decryption
// authorizations and contract transactions.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
)

var ErrNoAccount = errors.New("wallet exposes no account")

// KeySigner signs with a local secp256k1 key. Signatures carry a 27/28
// recovery id, the same as wallet signatures.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// KeySignerFromHex parses a hex encoded private key, with or without 0x.
func KeySignerFromHex(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(instanceutils.Strip0x(strings.TrimSpace(hexKey)))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeySigner(key), nil
}

// KeySignerFromKeystore decrypts a keystore v3 file.
func KeySignerFromKeystore(path, passphrase string) (*KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt keystore: %w", err)
	}
	return NewKeySigner(key.PrivateKey), nil
}

func (s *KeySigner) Address(context.Context) (common.Address, error) {
	return s.address, nil
}

func (s *KeySigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, err := instanceutils.TypedDataHash(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// TransactOpts returns transaction options signing for chainID.
func (s *KeySigner) TransactOpts(ctx context.Context, chainID uint64) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// RPCSigner delegates to a wallet reachable over JSON-RPC. The first account
// reported by eth_accounts is used unless one is pinned.
type RPCSigner struct {
	provider interfaces.Provider
	account  common.Address
}

func NewRPCSigner(provider interfaces.Provider) *RPCSigner {
	return &RPCSigner{provider: provider}
}

// WithAccount pins the signing account.
func (s *RPCSigner) WithAccount(account common.Address) *RPCSigner {
	s.account = account
	return s
}

func (s *RPCSigner) Address(ctx context.Context) (common.Address, error) {
	if s.account != (common.Address{}) {
		return s.account, nil
	}

	var accounts []common.Address
	if err := s.provider.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return common.Address{}, fmt.Errorf("eth_accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccount
	}
	return accounts[0], nil
}

func (s *RPCSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	account, err := s.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
	}

	var sig hexutil.Bytes
	if err := s.provider.CallContext(ctx, &sig, "eth_signTypedData_v4", account, data); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature length %d", interfaces.ErrSignatureRejected, len(sig))
	}
	return sig, nil
}

var (
	_ interfaces.TypedDataSigner = (*KeySigner)(nil)
	_ interfaces.TypedDataSigner = (*RPCSigner)(nil)
)
