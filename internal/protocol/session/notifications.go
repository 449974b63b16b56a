package session

import (
	"context"
	"sync"

	"github.com/danmuck/nwcctl/internal/observability"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog/log"
)

// NotificationHandler receives decrypted wallet notifications in arrival order.
type NotificationHandler func(protocol.Notification)

// SubscribeNotifications delivers wallet notifications addressed to the client
// until stop is called or ctx ends. An empty types list accepts every type.
// stop is idempotent and returns after the last handler call.
func (e *Engine) SubscribeNotifications(ctx context.Context, handler NotificationHandler, types ...protocol.NotificationType) (stop func(), err error) {
	if err := e.precondition(ctx); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, protocol.NewError(protocol.KindInvalidRequest, "nil notification handler")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := e.relay.Subscribe(ctx, nostr.Filters{{
		Kinds:   []int{protocol.KindNotification},
		Authors: []string{e.wallet},
		Tags:    nostr.TagMap{protocol.TagPubkey: []string{e.id.PublicKey()}},
	}})
	if err != nil {
		cancel()
		return nil, protocol.WrapError(protocol.KindNotConnected, err, "failed to subscribe for notifications")
	}

	accept := make(map[protocol.NotificationType]struct{}, len(types))
	for _, t := range types {
		accept[t] = struct{}{}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sub.Events():
				if !ok {
					return
				}
				if evt == nil || evt.PubKey != e.wallet {
					continue
				}
				if ok, err := evt.CheckSignature(); err != nil || !ok {
					log.Warn().Str("event_id", evt.ID).Msg("dropping notification with bad signature")
					continue
				}
				var n protocol.Notification
				if err := protocol.OpenContent(evt, e.id, e.wallet, &n); err != nil {
					log.Warn().Err(err).Str("event_id", evt.ID).Msg("dropping unreadable notification")
					continue
				}
				if len(accept) > 0 {
					if _, ok := accept[n.NotificationType]; !ok {
						continue
					}
				}
				observability.RecordNotification(string(n.NotificationType))
				handler(n)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
