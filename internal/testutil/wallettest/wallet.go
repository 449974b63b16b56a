// Package wallettest runs a scripted wallet service against a relay so client
// calls can be exercised end to end.
package wallettest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/danmuck/nwcctl/internal/identity"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/relay"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog/log"
)

// Request is one decrypted request seen by the wallet.
type Request struct {
	Event  nostr.Event
	Method protocol.Method
	Params json.RawMessage
	DTags  []string
}

// Reply scripts one reply event. Raw, when set, is sent as the plaintext verbatim.
type Reply struct {
	Result any
	Error  *protocol.ResponseError
	Raw    string
	DTag   string
	Delay  time.Duration
}

// Handler returns the replies for one request; nil sends nothing.
type Handler func(req Request) []Reply

func Result(v any) Reply {
	return Reply{Result: v}
}

func Failure(message, code string) Reply {
	return Reply{Error: &protocol.ResponseError{Message: message, Code: code}}
}

// Wallet answers requests addressed to its key.
type Wallet struct {
	Keys    *identity.Keys
	relay   relay.Relay
	handler Handler

	mu       sync.Mutex
	requests []Request
	wg       sync.WaitGroup
}

func New(r relay.Relay, handler Handler) (*Wallet, error) {
	keys, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	return &Wallet{Keys: keys, relay: r, handler: handler}, nil
}

func (w *Wallet) PublicKey() string {
	return w.Keys.PublicKey()
}

// Requests returns every request handled so far.
func (w *Wallet) Requests() []Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Request(nil), w.requests...)
}

// Serve subscribes for requests and answers them until the returned stop func runs.
func (w *Wallet) Serve(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := w.relay.Subscribe(ctx, nostr.Filters{{
		Kinds: []int{protocol.KindRequest},
		Tags:  nostr.TagMap{protocol.TagPubkey: []string{w.PublicKey()}},
	}})
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-sub.Events():
				if evt != nil {
					w.handle(ctx, evt)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
		w.wg.Wait()
	}, nil
}

func (w *Wallet) handle(ctx context.Context, evt *nostr.Event) {
	var body struct {
		Method protocol.Method `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := protocol.OpenContent(evt, w.Keys, evt.PubKey, &body); err != nil {
		log.Warn().Err(err).Str("request_id", evt.ID).Msg("wallettest: unreadable request")
		return
	}
	req := Request{Event: *evt, Method: body.Method, Params: body.Params}
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == protocol.TagAggregation {
			req.DTags = append(req.DTags, tag[1])
		}
	}
	w.mu.Lock()
	w.requests = append(w.requests, req)
	w.mu.Unlock()

	for _, reply := range w.handler(req) {
		w.wg.Add(1)
		go func(reply Reply) {
			defer w.wg.Done()
			if reply.Delay > 0 {
				timer := time.NewTimer(reply.Delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
				}
			}
			if err := w.Send(ctx, evt.PubKey, evt.ID, req.Method, reply); err != nil {
				log.Warn().Err(err).Str("request_id", evt.ID).Msg("wallettest: reply failed")
			}
		}(reply)
	}
}

// Send publishes one reply to client referencing requestID.
func (w *Wallet) Send(ctx context.Context, client, requestID string, method protocol.Method, reply Reply) error {
	evt, err := w.BuildReply(client, requestID, method, reply)
	if err != nil {
		return err
	}
	return w.relay.Publish(ctx, evt)
}

// BuildReply seals reply without publishing it.
func (w *Wallet) BuildReply(client, requestID string, method protocol.Method, reply Reply) (nostr.Event, error) {
	plaintext := reply.Raw
	if plaintext == "" {
		body := map[string]any{"result_type": method}
		if reply.Error != nil {
			body["error"] = reply.Error
		} else {
			body["result"] = reply.Result
		}
		raw, err := json.Marshal(body)
		if err != nil {
			return nostr.Event{}, err
		}
		plaintext = string(raw)
	}
	content, err := w.Keys.Encrypt(client, plaintext)
	if err != nil {
		return nostr.Event{}, err
	}
	tags := nostr.Tags{{protocol.TagPubkey, client}, {protocol.TagEvent, requestID}}
	if reply.DTag != "" {
		tags = append(tags, nostr.Tag{protocol.TagAggregation, reply.DTag})
	}
	evt := nostr.Event{
		Kind:      protocol.KindResponse,
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   content,
	}
	if err := w.Keys.Sign(&evt); err != nil {
		return nostr.Event{}, err
	}
	return evt, nil
}

// PublishInfo announces capabilities and notification types.
func (w *Wallet) PublishInfo(ctx context.Context, capabilities, notifications string) error {
	evt := nostr.Event{
		Kind:      protocol.KindInfo,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{},
		Content:   capabilities,
	}
	if notifications != "" {
		evt.Tags = append(evt.Tags, nostr.Tag{protocol.TagNotifications, notifications})
	}
	if err := w.Keys.Sign(&evt); err != nil {
		return err
	}
	return w.relay.Publish(ctx, evt)
}

// Notify pushes a notification to client.
func (w *Wallet) Notify(ctx context.Context, client string, n protocol.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	content, err := w.Keys.Encrypt(client, string(raw))
	if err != nil {
		return err
	}
	evt := nostr.Event{
		Kind:      protocol.KindNotification,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{protocol.TagPubkey, client}},
		Content:   content,
	}
	if err := w.Keys.Sign(&evt); err != nil {
		return err
	}
	return w.relay.Publish(ctx, evt)
}
