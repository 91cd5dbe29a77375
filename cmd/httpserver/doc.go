// Package main (cmd/httpserver) runs the fhEVM client daemon.
//
// The daemon resolves the configured network, loads the relayer SDK and keeps
// an encryption instance ready through the lifecycle manager, rebuilding it on
// POST /api/instance/refresh. Clients encrypt inputs for any contract and user
// and decrypt handles readable by the daemon's own account, whose decryption
// authorization is signed once and cached in the configured storage.
//
// Every flag can also be set through an FHEVM_* environment variable or a
// dotenv file given with --env-file.
//
// Example usage against a local development node:
//
//	fhevm-server --rpc-addr=http://localhost:8545 \
//	    --mock-chain=31337=http://localhost:8545 \
//	    --private-key=$KEY \
//	    --contract=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	    --storage=leveldb:///var/lib/fhevm/cache
package main
