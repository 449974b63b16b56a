package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/nwcctl/internal/observability"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/relay"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Identity is the client key material an Engine seals and opens with.
type Identity interface {
	protocol.Sealer
	protocol.Opener
}

// Engine runs request/reply exchanges against one wallet over one relay.
// It is safe for concurrent calls; each call owns its subscription and timers.
type Engine struct {
	relay  relay.Relay
	id     Identity
	wallet string
	cfg    Config

	pending *Registry
	now     func() time.Time
}

func NewEngine(r relay.Relay, id Identity, wallet string, cfg Config) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("session: nil relay")
	}
	if id == nil {
		return nil, fmt.Errorf("session: nil identity")
	}
	return &Engine{
		relay:   r,
		id:      id,
		wallet:  wallet,
		cfg:     cfg,
		pending: NewRegistry(),
		now:     time.Now,
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Wallet() string {
	return e.wallet
}

// Pending lists in-flight exchanges.
func (e *Engine) Pending() []PendingExchange {
	return e.pending.List()
}

// Execute publishes one request and waits for its single reply.
func (e *Engine) Execute(ctx context.Context, method protocol.Method, params any, validator protocol.Validator) (json.RawMessage, error) {
	out := e.run(ctx, method, params, newExchange(method, validator), nil)
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Result, nil
}

// ExecuteMulti publishes one batch request carrying a "d" tag per key and waits
// for one reply per key. Items come back in key order.
func (e *Engine) ExecuteMulti(ctx context.Context, method protocol.Method, params any, keys []string, validator protocol.Validator) ([]ItemResult, error) {
	if err := checkKeys(keys); err != nil {
		return nil, err
	}
	tags := make([]nostr.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, nostr.Tag{protocol.TagAggregation, k})
	}
	x := newBatchExchange(method, validator, keys, e.cfg.AggregationPolicy)
	out := e.run(ctx, method, params, x, tags)
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Items, nil
}

func checkKeys(keys []string) error {
	if len(keys) == 0 {
		return protocol.NewError(protocol.KindInvalidRequest, "empty batch")
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			return protocol.NewError(protocol.KindInvalidRequest, "empty batch item id")
		}
		if _, dup := seen[k]; dup {
			return protocol.NewError(protocol.KindInvalidRequest, "duplicate batch item id %q", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (e *Engine) precondition(ctx context.Context) error {
	if !e.id.CanSign() {
		return protocol.NewError(protocol.KindNotConnected, "wallet service not connected: missing secret key")
	}
	return e.ensureConnected(ctx)
}

// ensureConnected redials a dropped relay before a call goes out.
func (e *Engine) ensureConnected(ctx context.Context) error {
	if e.relay.IsConnected() {
		return nil
	}
	log.Debug().Str("relay", e.relay.URL()).Msg("relay down; reconnecting")
	if err := e.relay.Connect(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return protocol.WrapError(protocol.KindNotConnected, err, "wallet service not connected: relay %s is down", e.relay.URL())
	}
	return nil
}

func (e *Engine) run(ctx context.Context, method protocol.Method, params any, x *exchange, tags []nostr.Tag) (out Outcome) {
	start := e.now()
	defer func() {
		observability.RecordExchange(string(method), outcomeLabel(out.Err), x.received, time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}
	if err := e.precondition(ctx); err != nil {
		return Outcome{Err: err}
	}

	evt, err := protocol.BuildRequest(method, params, e.id, e.wallet, nostr.Timestamp(start.Unix()), tags...)
	if err != nil {
		return Outcome{Err: err}
	}

	// The reply deadline bounds the whole exchange, publish included.
	replyTimer := time.NewTimer(e.cfg.ReplyTimeout)
	defer replyTimer.Stop()

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	sub, err := e.relay.Subscribe(subCtx, nostr.Filters{{
		Kinds:   []int{protocol.KindResponse},
		Authors: []string{e.wallet},
		Tags:    nostr.TagMap{protocol.TagEvent: []string{evt.ID}},
	}})
	if err != nil {
		return Outcome{Err: protocol.WrapError(protocol.KindNotConnected, err, "failed to subscribe for %s reply", method)}
	}
	defer sub.Close()

	e.pending.Add(PendingExchange{
		RequestID:         evt.ID,
		Method:            method,
		Expected:          x.want(),
		Phase:             PhasePublishing,
		QueuedAt:          start,
		PublishDeadlineAt: start.Add(e.cfg.PublishTimeout),
		ReplyDeadlineAt:   start.Add(e.cfg.ReplyTimeout),
	})
	defer e.pending.Remove(evt.ID)

	logger := log.With().Str("method", string(method)).Str("request_id", evt.ID).Logger()
	logger.Debug().Int("expected", x.want()).Msg("publishing request")

	pubCtx, cancelPub := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	defer cancelPub()
	pubTimer := time.NewTimer(e.cfg.PublishTimeout)
	defer pubTimer.Stop()
	pubDone := make(chan error, 1)
	go func() {
		pubDone <- e.relay.Publish(pubCtx, evt)
	}()

	pubResult := (<-chan error)(pubDone)
	pubDeadline := pubTimer.C
	events := sub.Events()

	for !x.done() {
		select {
		case err := <-pubResult:
			pubResult, pubDeadline = nil, nil
			pubTimer.Stop()
			switch {
			case err != nil && ctx.Err() != nil:
				x.cancel(ctx.Err())
			case err != nil && errors.Is(err, context.DeadlineExceeded):
				x.publishDeadline()
			default:
				x.publishResult(err)
			}
			if !x.done() {
				e.pending.Update(evt.ID, func(p *PendingExchange) { p.Phase = PhaseAwaiting })
				logger.Debug().Msg("request published")
			}
		case <-pubDeadline:
			pubResult, pubDeadline = nil, nil
			x.publishDeadline()
		case got, ok := <-events:
			if !ok {
				// Subscription ended underneath us; only the deadlines remain.
				events = nil
				continue
			}
			if got == nil {
				continue
			}
			r, ok := e.decode(logger, method, evt.ID, got)
			if !ok {
				continue
			}
			if x.redelivered(r) {
				observability.RecordDroppedReply(string(method), "duplicate")
				logger.Debug().Str("event_id", got.ID).Msg("dropping redelivered reply")
				continue
			}
			if !x.reply(r) {
				continue
			}
			e.pending.Update(evt.ID, func(p *PendingExchange) { p.Received++ })
		case <-replyTimer.C:
			x.replyDeadline()
		case <-ctx.Done():
			x.cancel(ctx.Err())
		}
		if events != nil && !x.listening() {
			// No further reply can change the outcome.
			sub.Close()
			events = nil
		}
	}

	out = x.outcome()
	if out.Err != nil {
		logger.Debug().Err(out.Err).Msg("exchange failed")
	} else {
		logger.Debug().Int("replies", x.received).Msg("exchange resolved")
	}
	return out
}

// decode screens one subscription event and opens it. Events that are not
// replies from the wallet to this request are dropped.
func (e *Engine) decode(logger zerolog.Logger, method protocol.Method, requestID string, evt *nostr.Event) (reply, bool) {
	if evt.Kind != protocol.KindResponse || evt.PubKey != e.wallet || !protocol.ReferencesEvent(evt, requestID) {
		observability.RecordDroppedReply(string(method), "mismatch")
		logger.Debug().Str("event_id", evt.ID).Msg("dropping unrelated event")
		return reply{}, false
	}
	key, hasKey := protocol.TagValue(evt.Tags, protocol.TagAggregation)
	resp, err := protocol.DecodeResponse(evt, e.id, e.wallet)
	return reply{eventID: evt.ID, key: key, hasKey: hasKey, resp: resp, err: err}, true
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return protocol.KindOf(err).String()
}
