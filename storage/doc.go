// Package storage provides durable key-value stores with pluggable backends
// and the public key cache built on top of them.
//
// The storage package offers a unified interfaces.KeyValueStore across
// several backends:
//
//   - In-memory storage for tests and short-lived processes
//   - File system storage for local development
//   - LevelDB storage, the default durable local store
//   - S3-compatible storage for shared deployments
//   - Vault KV v2 storage for signed decryption authorizations
//   - IPFS MFS storage
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - memory://
//   - file:///var/lib/fhevm/
//   - leveldb:///var/lib/fhevm/db
//   - s3://bucket-name/prefix/?region=us-west-2
//   - vault://vault.example.com:8200/secret/fhevm?token=...
//   - ipfs://127.0.0.1:5001/fhevm
//
// Any location accepts encrypted=true; values are then sealed with a key
// derived from the factory passphrase.
//
// # Key Naming
//
// Remote and file backends address values by the SHA-256 of the key, since
// authorization keys may embed a full public key and exceed path limits.
//
// # Public Key Cache
//
// PublicKeyStorage keeps two independent tables keyed by the ACL contract
// address, one for public keys and one for public parameters. A write only
// touches the tables for which a value is given.
//
// # Multi-Backend Example
//
//	factory := storage.NewStorageBackendFactory(logger)
//	store, err := factory.CreateMultiStore([]interfaces.StorageBackendLocation{
//	    "leveldb:///var/lib/fhevm/db",
//	    "s3://fhevm-cache/keys/?region=eu-west-1",
//	})
package storage
