// Package relayer implements the hosted relayer SDK.
//
// An SDK is described by a Manifest: the relayer base URL and the network
// configuration of the deployment. Manifests come from a Source: a CDN URL
// (HTTPSource), a local file (FileSource) or the copy compiled into the
// binary (BundledSource). The sdk package tries them in that order.
//
// Instances talk to the relayer over HTTP:
//
//	GET  /v1/keyurl        where the network public key and parameters live
//	POST /v1/input-proof   verify an encrypted input, returns handles and signatures
//	POST /v1/user-decrypt  batched user decryption, reply sealed to the user key
//
// Values of an encrypted input are sealed to the network ML-KEM public key.
// User decryption replies are sealed to the ephemeral keypair generated by
// Instance.GenerateKeypair, so only the holder of the private half can read
// them.
package relayer
