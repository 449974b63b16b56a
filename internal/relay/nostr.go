package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog/log"
)

// Nostr is the websocket Relay backed by go-nostr.
type Nostr struct {
	url  string
	cfg  Config
	dial func(ctx context.Context, url string) (*nostr.Relay, error)

	// dialMu serializes Connect; mu guards conn and closed and is never held
	// across a dial or backoff wait.
	dialMu sync.Mutex
	rng    *rand.Rand

	mu     sync.Mutex
	conn   *nostr.Relay
	closed bool
}

// NewNostr validates rawURL and returns an unconnected relay.
func NewNostr(rawURL string, cfg Config) (*Nostr, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return &Nostr{
		url:  nostr.NormalizeURL(rawURL),
		cfg:  cfg,
		dial: func(ctx context.Context, url string) (*nostr.Relay, error) { return nostr.RelayConnect(ctx, url) },
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// ValidateURL requires a ws:// or wss:// URL with a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

func (r *Nostr) URL() string {
	return r.url
}

// Connect dials the relay, retrying up to MaxConnectAttempts with backoff.
// Connecting an already connected relay is a no-op. Concurrent callers wait
// for one dial; traffic on the relay is not blocked meanwhile.
func (r *Nostr) Connect(ctx context.Context) error {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()
	if _, err := r.current(); err == nil || errors.Is(err, ErrClosed) {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxConnectAttempts; attempt++ {
		if wait := NextBackoffDelay(r.cfg.Backoff, attempt, r.rng); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if r.isClosed() {
			return ErrClosed
		}
		dialCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		conn, err := r.dial(dialCtx, r.url)
		cancel()
		if err == nil {
			if err := r.swap(conn); err != nil {
				return err
			}
			log.Debug().Str("relay", r.url).Int("attempt", attempt).Msg("relay connected")
			return nil
		}
		lastErr = err
		log.Warn().Str("relay", r.url).Int("attempt", attempt).Err(err).Msg("relay connect failed")
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("relay: connect %s: %w", r.url, lastErr)
}

// swap installs a fresh connection and closes the dropped one. A relay closed
// during the dial discards conn.
func (r *Nostr) swap(conn *nostr.Relay) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	old := r.conn
	r.conn = conn
	r.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (r *Nostr) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Nostr) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && r.conn.IsConnected()
}

func (r *Nostr) current() (*nostr.Relay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.conn == nil || !r.conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return r.conn, nil
}

// Publish returns once the relay acknowledges evt or ctx ends.
func (r *Nostr) Publish(ctx context.Context, evt nostr.Event) error {
	conn, err := r.current()
	if err != nil {
		return err
	}
	return conn.Publish(ctx, evt)
}

func (r *Nostr) Subscribe(ctx context.Context, filters nostr.Filters) (Subscription, error) {
	conn, err := r.current()
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("relay: subscribe: %w", err)
	}
	return &nostrSubscription{sub: sub}, nil
}

func (r *Nostr) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

type nostrSubscription struct {
	sub  *nostr.Subscription
	once sync.Once
}

func (s *nostrSubscription) Events() <-chan *nostr.Event {
	return s.sub.Events
}

func (s *nostrSubscription) EndOfStoredEvents() <-chan struct{} {
	return s.sub.EndOfStoredEvents
}

func (s *nostrSubscription) Close() {
	s.once.Do(s.sub.Unsub)
}
