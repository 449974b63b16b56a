package session

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog/log"
)

// ErrServiceInfoNotFound means the relay had no info event for the wallet.
var ErrServiceInfoNotFound = errors.New("session: wallet service info not found")

// WalletServiceInfo reads the wallet's announced capabilities. It publishes
// nothing and needs no secret key. The wait ends at the first info event, at
// end of stored events, or after InfoTimeout.
func (e *Engine) WalletServiceInfo(ctx context.Context) (protocol.ServiceInfo, error) {
	if err := e.ensureConnected(ctx); err != nil {
		return protocol.ServiceInfo{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.InfoTimeout)
	defer cancel()
	sub, err := e.relay.Subscribe(ctx, nostr.Filters{{
		Kinds:   []int{protocol.KindInfo},
		Authors: []string{e.wallet},
		Limit:   1,
	}})
	if err != nil {
		return protocol.ServiceInfo{}, protocol.WrapError(protocol.KindNotConnected, err, "failed to subscribe for service info")
	}
	defer sub.Close()

	start := time.Now()
	eose := sub.EndOfStoredEvents()
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return protocol.ServiceInfo{}, ErrServiceInfoNotFound
			}
			if evt == nil || evt.Kind != protocol.KindInfo || evt.PubKey != e.wallet {
				continue
			}
			info := protocol.ParseServiceInfo(evt)
			log.Debug().
				Str("wallet", e.wallet).
				Int("capabilities", len(info.Capabilities)).
				Dur("elapsed", time.Since(start)).
				Msg("wallet service info")
			return info, nil
		case <-eose:
			// Stored events are queued ahead of end of stored events; drain before giving up.
			select {
			case evt, ok := <-sub.Events():
				if ok && evt != nil && evt.Kind == protocol.KindInfo && evt.PubKey == e.wallet {
					return protocol.ParseServiceInfo(evt), nil
				}
			default:
			}
			return protocol.ServiceInfo{}, ErrServiceInfoNotFound
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return protocol.ServiceInfo{}, ErrServiceInfoNotFound
			}
			return protocol.ServiceInfo{}, ctx.Err()
		}
	}
}
