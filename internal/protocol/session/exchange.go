package session

import (
	"encoding/json"
	"errors"

	"github.com/danmuck/nwcctl/internal/protocol"
)

// ItemResult is one settled batch item. Exactly one of Result and Err is set.
type ItemResult struct {
	Key    string
	Result json.RawMessage
	Err    *protocol.Error
}

// Outcome is the terminal result of an exchange. Err is set on rejection;
// otherwise Result (single) or Items (batch) carries the payload.
type Outcome struct {
	Result json.RawMessage
	Items  []ItemResult
	Err    error
}

// reply is one decoded reply event as seen by the state machine.
type reply struct {
	eventID string
	key     string
	hasKey  bool
	resp    protocol.Response
	err     error
}

// exchange is the per-call state machine. It performs no I/O and is not safe
// for concurrent use; Engine owns one per call. Every input after the first
// terminal outcome is ignored.
type exchange struct {
	method    protocol.Method
	validator protocol.Validator
	policy    AggregationPolicy

	batch    bool
	keys     []string
	expected map[string]struct{}

	phase    Phase
	early    []reply
	events   map[string]struct{}
	settled  map[string]ItemResult
	received int
	out      *Outcome
}

func newExchange(method protocol.Method, validator protocol.Validator) *exchange {
	return &exchange{
		method:    method,
		validator: validator,
		phase:     PhasePublishing,
		events:    make(map[string]struct{}),
	}
}

// newBatchExchange expects one reply per key. keys must be unique and non-empty.
func newBatchExchange(method protocol.Method, validator protocol.Validator, keys []string, policy AggregationPolicy) *exchange {
	x := newExchange(method, validator)
	x.batch = true
	x.policy = policy
	x.keys = append([]string(nil), keys...)
	x.expected = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		x.expected[k] = struct{}{}
	}
	x.settled = make(map[string]ItemResult, len(keys))
	return x
}

func (x *exchange) want() int {
	if x.batch {
		return len(x.keys)
	}
	return 1
}

func (x *exchange) done() bool {
	return x.out != nil
}

func (x *exchange) outcome() Outcome {
	if x.out == nil {
		return Outcome{}
	}
	return *x.out
}

// listening reports whether further reply events can still matter.
func (x *exchange) listening() bool {
	return !x.done() && x.received+len(x.early) < x.want()
}

func (x *exchange) fail(err error) {
	if x.done() {
		return
	}
	x.phase = PhaseDone
	x.early = nil
	x.out = &Outcome{Err: err}
}

func (x *exchange) resolve(out Outcome) {
	if x.done() {
		return
	}
	x.phase = PhaseDone
	x.early = nil
	x.out = &out
}

// publishResult records the relay's answer to the publish. A nil err moves the
// exchange to awaiting and drains replies buffered while publishing.
func (x *exchange) publishResult(err error) {
	if x.done() || x.phase != PhasePublishing {
		return
	}
	if err != nil {
		x.fail(protocol.WrapError(protocol.KindPublish, err, "failed to publish %s request", x.method))
		return
	}
	x.phase = PhaseAwaiting
	early := x.early
	x.early = nil
	for _, r := range early {
		x.accept(r)
		if x.done() {
			return
		}
	}
}

func (x *exchange) publishDeadline() {
	if x.done() || x.phase != PhasePublishing {
		return
	}
	x.fail(protocol.NewError(protocol.KindPublishTimeout, "publish timeout: %s request", x.method))
}

// reply feeds one decoded reply and reports whether it was taken. Replies seen
// before the publish ack are held until publishResult so that a publish failure
// stays authoritative. A redelivered event id is dropped.
func (x *exchange) reply(r reply) bool {
	if x.done() || x.redelivered(r) {
		return false
	}
	if x.phase == PhasePublishing {
		if !x.listening() {
			return false
		}
		x.remember(r)
		x.early = append(x.early, r)
		return true
	}
	if x.received >= x.want() {
		return false
	}
	x.remember(r)
	x.accept(r)
	return true
}

func (x *exchange) redelivered(r reply) bool {
	if r.eventID == "" {
		return false
	}
	_, ok := x.events[r.eventID]
	return ok
}

func (x *exchange) remember(r reply) {
	if r.eventID != "" {
		x.events[r.eventID] = struct{}{}
	}
}

func (x *exchange) replyDeadline() {
	if x.done() {
		return
	}
	if !x.batch || x.policy != AggregatePartial || x.phase == PhasePublishing {
		x.fail(protocol.NewError(protocol.KindReplyTimeout, "reply timeout: %s request", x.method))
		return
	}
	for _, k := range x.keys {
		if _, ok := x.settled[k]; ok {
			continue
		}
		x.settled[k] = ItemResult{
			Key: k,
			Err: protocol.NewError(protocol.KindReplyTimeout, "reply timeout: %s item %s", x.method, k),
		}
	}
	x.resolve(Outcome{Items: x.items()})
}

// cancel ends the exchange with err, typically the caller's context error.
func (x *exchange) cancel(err error) {
	x.fail(err)
}

func (x *exchange) accept(r reply) {
	x.received++
	if !x.batch {
		if itemErr := x.check(r); itemErr != nil {
			x.fail(itemErr)
			return
		}
		x.resolve(Outcome{Result: r.resp.Result})
		return
	}

	switch {
	case !r.hasKey || r.key == "":
		x.fail(protocol.NewError(protocol.KindResponseValidation, "%s reply %s has no d tag", x.method, r.eventID))
		return
	case !x.known(r.key):
		x.fail(protocol.NewError(protocol.KindResponseValidation, "%s reply %s has unknown d tag %q", x.method, r.eventID, r.key))
		return
	case x.seen(r.key):
		x.fail(protocol.NewError(protocol.KindResponseValidation, "%s reply %s repeats d tag %q", x.method, r.eventID, r.key))
		return
	}

	if itemErr := x.check(r); itemErr != nil {
		if x.policy != AggregatePartial {
			x.fail(itemErr)
			return
		}
		x.settled[r.key] = ItemResult{Key: r.key, Err: itemErr}
	} else {
		x.settled[r.key] = ItemResult{Key: r.key, Result: r.resp.Result}
	}
	if len(x.settled) == len(x.keys) {
		x.resolve(Outcome{Items: x.items()})
	}
}

// check classifies one reply: decoding failure, wallet error, or failed validation.
func (x *exchange) check(r reply) *protocol.Error {
	if r.err != nil {
		return asProtocolError(r.err, protocol.KindResponseDecoding)
	}
	if r.resp.Error != nil {
		return asProtocolError(r.resp.WalletError(), protocol.KindWallet)
	}
	if x.validator != nil && !x.validator(r.resp.Result) {
		return protocol.ValidationError(x.method, r.resp.Result)
	}
	return nil
}

func (x *exchange) known(key string) bool {
	_, ok := x.expected[key]
	return ok
}

func (x *exchange) seen(key string) bool {
	_, ok := x.settled[key]
	return ok
}

// items lists settled items in request order.
func (x *exchange) items() []ItemResult {
	out := make([]ItemResult, 0, len(x.settled))
	for _, k := range x.keys {
		if item, ok := x.settled[k]; ok {
			out = append(out, item)
		}
	}
	return out
}

func asProtocolError(err error, fallback protocol.ErrorKind) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}
	return protocol.WrapError(fallback, err, "%v", err)
}
