// Package instanceutils holds the plumbing shared by every encryption
// instance implementation: the EIP-712 user decryption payload, signature
// recovery, the encrypted input builder, handle layout, input proof packing,
// request validation and the relayer wire types.
//
// # User decryption payload
//
// The typed data signed by a wallet to authorize decryption has primary type
// UserDecryptRequestVerification and binds the ephemeral public key, the
// ordered list of contract addresses, the contracts chain id, the start
// timestamp and the duration in days:
//
//	domain  {name: "Decryption", version: "1", chainId, verifyingContract}
//	message {publicKey, contractAddresses, contractsChainId,
//	         startTimestamp, durationDays, extraData}
//
// # Handles
//
// A handle is 32 bytes: a keccak256 prefix derived from the ciphertext, then
// the value index, the chain id, the value type and a version byte.
//
//	[0:21] hash  [21] index  [22:30] chain id  [30] type  [31] version
//
// # Input proofs
//
//	[numHandles][numSigners][handles (32 bytes each)][signatures (65 bytes each)][extra data]
package instanceutils
