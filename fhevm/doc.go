// Package fhevm builds ready-to-use encryption instances for a network.
//
// A build resolves the chain, short-circuits to an in-process mock instance
// when a local development node reports relayer metadata, and otherwise loads
// and initializes the relayer SDK, looks up cached public material for the
// deployment's ACL contract and constructs a hosted instance. Public material
// reported by the new instance is written back to the cache.
//
// Every step checks the caller's context. A build whose context is done fails
// with interfaces.ErrAborted and never returns a partially built instance.
package fhevm
