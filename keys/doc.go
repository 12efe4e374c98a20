// Package keys provides signer keys for mcpreg requests.
//
// Stable:
//   - Deterministic role-seed derivation and signer-key formatting.
//   - Identity addresses for ed25519 and dilithium3 signer keys.
//
// Experimental:
//   - The filesystem Wallet and keypair-file helpers. These are
//     local-first conveniences for the CLI and may change.
package keys
