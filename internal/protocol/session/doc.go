// Package session owns the client side of one wallet connect exchange.
//
// Ownership boundary:
// - request publication and reply correlation over a relay
// - publish and reply deadlines with a single terminal outcome per call
// - batch reply aggregation by the "d" tag
// - in-flight exchange registry
// - capability discovery and notification subscriptions
//
// The exchange state machine in exchange.go has no I/O; Engine drives it from
// a select loop over the publish result, both deadlines, subscription events
// and the caller's context.
package session
