// Package web3 houses blockchain connectivity utilities: chain definitions
// loaded from YAML, the JSON-RPC backend contract used by the swap signer,
// and the read-only client view exposed to the API.
package web3
