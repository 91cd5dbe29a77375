// Package interfaces defines the contracts shared by the encryption-instance
// resolution and decryption-authorization packages, separating interface
// definitions from implementations.
//
// # Network
//
// NetworkHandle carries either a live JSON-RPC Provider (a wallet or an
// *rpc.Client) or a raw RPC URL. ChainResolution is the per-attempt result of
// classifying a chain as a local mock chain or a production network.
// RelayerMetadata is only obtainable from a local development node.
//
// # Relayer SDK
//
// RelayerSDK is the capability contract every SDK implementation satisfies:
// InitSDK, CreateInstance and EthereumConfig. Instance is the ready-to-use
// encryption instance with key generation, EIP-712 payload construction,
// encrypted input building and batched user decryption.
//
// # Storage
//
// KeyValueStore is the durable store used for public key material and signed
// decryption authorizations. Stores are addressed by StorageBackendLocation
// URIs (memory, file, leveldb, s3, vault, ipfs).
//
// # Errors
//
// Sentinel errors distinguish cancellation from terminal failures so callers
// can ignore superseded runs silently.
package interfaces
