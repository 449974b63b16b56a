// Package relaytest provides an in-memory relay for exercising the client engine
// without a network.
package relaytest

import (
	"context"
	"sync"

	"github.com/danmuck/nwcctl/internal/relay"
	"github.com/nbd-wtf/go-nostr"
)

const subscriptionBuffer = 64

// PublishHook runs in place of the default publish path and owns delivery: it
// calls Deliver when evt should reach subscribers. Its return value is the
// publish result seen by the caller.
type PublishHook func(ctx context.Context, r *Relay, evt nostr.Event) error

// Relay is a goroutine-safe in-memory relay. Replaceable events are kept,
// ephemeral events are only fanned out.
type Relay struct {
	url string

	mu        sync.Mutex
	connected bool
	closed    bool
	stored    []*nostr.Event
	subs      map[int]*subscription
	nextSubID int
	published []nostr.Event
	hook      PublishHook
	opened    int
	dials     int
	dialErr   error
}

var _ relay.Relay = (*Relay)(nil)

func New() *Relay {
	return &Relay{
		url:       "ws://relaytest.invalid",
		connected: true,
		subs:      make(map[int]*subscription),
	}
}

func (r *Relay) URL() string {
	return r.url
}

func (r *Relay) Connect(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return relay.ErrClosed
	}
	if r.connected {
		return nil
	}
	r.dials++
	if r.dialErr != nil {
		return r.dialErr
	}
	r.connected = true
	return nil
}

// SetConnectError makes later dials fail with err; nil lets them succeed.
func (r *Relay) SetConnectError(err error) {
	r.mu.Lock()
	r.dialErr = err
	r.mu.Unlock()
}

// Dials counts Connect calls that found the relay down.
func (r *Relay) Dials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

func (r *Relay) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected && !r.closed
}

// SetConnected simulates a dropped or restored connection.
func (r *Relay) SetConnected(v bool) {
	r.mu.Lock()
	r.connected = v
	r.mu.Unlock()
}

// SetPublishHook replaces the publish behavior; nil restores the default.
func (r *Relay) SetPublishHook(h PublishHook) {
	r.mu.Lock()
	r.hook = h
	r.mu.Unlock()
}

func (r *Relay) Publish(ctx context.Context, evt nostr.Event) error {
	r.mu.Lock()
	if r.closed || !r.connected {
		r.mu.Unlock()
		return relay.ErrNotConnected
	}
	r.published = append(r.published, evt)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		return hook(ctx, r, evt)
	}
	r.Deliver(evt)
	return nil
}

// Deliver stores evt when it is not ephemeral and fans it out to matching
// subscriptions, bypassing the publish hook.
func (r *Relay) Deliver(evt nostr.Event) {
	e := evt
	r.mu.Lock()
	r.store(&e)
	targets := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if s.filters.Match(&e) {
			targets = append(targets, s)
		}
	}
	r.mu.Unlock()

	for _, s := range targets {
		s.send(&e)
	}
}

func (r *Relay) store(evt *nostr.Event) {
	switch {
	case isEphemeral(evt.Kind):
		return
	case isReplaceable(evt.Kind):
		for i, have := range r.stored {
			if have.Kind == evt.Kind && have.PubKey == evt.PubKey {
				if have.CreatedAt <= evt.CreatedAt {
					r.stored[i] = evt
				}
				return
			}
		}
	}
	r.stored = append(r.stored, evt)
}

func (r *Relay) Subscribe(ctx context.Context, filters nostr.Filters) (relay.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.connected {
		return nil, relay.ErrNotConnected
	}

	backlog := r.matchStored(filters)
	s := &subscription{
		relay:   r,
		id:      r.nextSubID,
		filters: filters,
		events:  make(chan *nostr.Event, subscriptionBuffer+len(backlog)),
		eose:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.nextSubID++
	r.opened++
	for _, evt := range backlog {
		s.events <- evt
	}
	close(s.eose)
	r.subs[s.id] = s

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// matchStored returns stored matches, newest first, honoring each filter's limit.
func (r *Relay) matchStored(filters nostr.Filters) []*nostr.Event {
	seen := make(map[string]struct{})
	out := make([]*nostr.Event, 0)
	for _, f := range filters {
		n := 0
		for i := len(r.stored) - 1; i >= 0; i-- {
			evt := r.stored[i]
			if !f.Matches(evt) {
				continue
			}
			if f.Limit > 0 && n >= f.Limit {
				break
			}
			n++
			if _, dup := seen[evt.ID]; dup {
				continue
			}
			seen[evt.ID] = struct{}{}
			out = append(out, evt)
		}
	}
	return out
}

func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	return nil
}

// Published returns a copy of every event handed to Publish.
func (r *Relay) Published() []nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]nostr.Event(nil), r.published...)
}

// ActiveSubscriptions is the number of subscriptions not yet closed.
func (r *Relay) ActiveSubscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// OpenedSubscriptions counts every Subscribe that succeeded.
func (r *Relay) OpenedSubscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

func (r *Relay) drop(id int) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

type subscription struct {
	relay   *Relay
	id      int
	filters nostr.Filters
	events  chan *nostr.Event
	eose    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Events() <-chan *nostr.Event {
	return s.events
}

func (s *subscription) EndOfStoredEvents() <-chan struct{} {
	return s.eose
}

func (s *subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.relay.drop(s.id)
	})
}

func (s *subscription) send(evt *nostr.Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- evt:
	case <-s.done:
	}
}

func isEphemeral(kind int) bool {
	return kind >= 20000 && kind < 30000
}

func isReplaceable(kind int) bool {
	return kind == 0 || kind == 3 || (kind >= 10000 && kind < 20000)
}
