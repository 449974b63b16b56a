// Package protocol owns the NIP-47 wallet connect wire contract.
//
// Ownership boundary:
// - event kinds, tag names, method names
// - request/response payload shapes and result validators
// - envelope codec (seal request, open response)
// - error taxonomy shared by the engine and callers
// - wallet service-info parsing
package protocol
