// Package bridge exposes a wallet connect client over HTTP.
//
// Ownership boundary:
// - gin routing, auth and per-client rate limiting
// - JSON request binding and error-kind to status mapping
// - no protocol state; every call is delegated to a Wallet
package bridge
