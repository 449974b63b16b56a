// Package relay is the transport boundary of the wallet connect client.
//
// Ownership boundary:
// - connection lifecycle to one relay URL
// - publish and subscribe primitives over nostr events
// - no protocol decoding; payloads are opaque to this package
package relay

import (
	"context"
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

var (
	ErrNotConnected = errors.New("relay: not connected")
	ErrClosed       = errors.New("relay: closed")
	ErrInvalidURL   = errors.New("relay: invalid url")
)

// Subscription delivers events matching one filter set until Close.
// Close is idempotent.
type Subscription interface {
	Events() <-chan *nostr.Event
	EndOfStoredEvents() <-chan struct{}
	Close()
}

// Relay is one logical connection to a relay. Implementations must tolerate
// overlapping subscriptions and publishes from concurrent callers.
type Relay interface {
	URL() string
	Connect(ctx context.Context) error
	IsConnected() bool
	Publish(ctx context.Context, evt nostr.Event) error
	Subscribe(ctx context.Context, filters nostr.Filters) (Subscription, error)
	Close() error
}
