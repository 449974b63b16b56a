// Package nwc is the linkable wallet connect client. A Client resolves its
// connection once at construction, then exposes one typed call per wallet
// method over a shared relay connection.
package nwc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danmuck/nwcctl/internal/config"
	"github.com/danmuck/nwcctl/internal/identity"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/danmuck/nwcctl/internal/relay"
	"github.com/rs/zerolog/log"
)

// Options configure a Client. Connection fields follow config.Resolve
// precedence. Relay, when set, replaces the websocket relay built from the
// resolved URL.
type Options struct {
	Connection   config.Options
	Providers    config.Providers
	SecurityMode config.SecurityMode
	Session      session.Config
	RelayConfig  relay.Config
	Relay        relay.Relay
}

type Client struct {
	conn   config.Connection
	keys   *identity.Keys
	relay  relay.Relay
	engine *session.Engine
}

func NewClient(opts Options) (*Client, error) {
	providers := opts.Providers
	if providers == nil {
		providers = config.DefaultProviders()
	}
	conn, err := config.Resolve(opts.Connection, providers)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateRelaySecurity(opts.SecurityMode, conn.RelayURL); err != nil {
		return nil, err
	}

	keys := new(identity.Keys)
	if conn.Secret != "" {
		keys, err = identity.New(conn.Secret)
		if err != nil {
			return nil, err
		}
	}

	r := opts.Relay
	if r == nil {
		r, err = relay.NewNostr(conn.RelayURL, opts.RelayConfig)
		if err != nil {
			return nil, err
		}
	}

	engine, err := session.NewEngine(r, keys, conn.WalletPubkey, opts.Session)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, keys: keys, relay: r, engine: engine}, nil
}

// Connect opens the relay connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.relay.Connect(ctx)
}

func (c *Client) Connected() bool {
	return c.relay.IsConnected()
}

// KeepConnected redials a dropped relay every interval until ctx ends. Calls
// reconnect on their own; this keeps Connected accurate for idle clients.
func (c *Client) KeepConnected(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.relay.IsConnected() {
			continue
		}
		if err := c.relay.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Str("relay", c.relay.URL()).Err(err).Msg("relay reconnect failed")
			continue
		}
		log.Info().Str("relay", c.relay.URL()).Msg("relay reconnected")
	}
}

func (c *Client) Close() error {
	return c.relay.Close()
}

func (c *Client) WalletPubkey() string {
	return c.conn.WalletPubkey
}

func (c *Client) RelayURL() string {
	return c.conn.RelayURL
}

func (c *Client) Connection() config.Connection {
	return c.conn
}

// PublicKey is the client's own key; it needs a secret.
func (c *Client) PublicKey() (string, error) {
	if !c.keys.CanSign() {
		return "", protocol.NewError(protocol.KindMissingIdentity, "missing secret key")
	}
	return c.keys.PublicKey(), nil
}

// ConnectionURI renders the client's connection URI, optionally with its secret.
func (c *Client) ConnectionURI(includeSecret bool) (string, error) {
	pub, err := c.PublicKey()
	if err != nil {
		return "", err
	}
	secret := ""
	if includeSecret {
		secret = c.keys.Secret()
	}
	return config.FormatConnectionURI(c.conn.WalletPubkey, c.conn.RelayURL, pub, secret), nil
}

// InFlight snapshots exchanges still waiting on the relay.
func (c *Client) InFlight() []session.PendingExchange {
	return c.engine.Pending()
}

func (c *Client) fail(method protocol.Method, err error) error {
	log.Error().Err(err).Str("method", string(method)).Str("wallet", c.conn.WalletPubkey).Msgf("failed to request %s", method)
	return err
}

func call[T any](ctx context.Context, c *Client, method protocol.Method, params any, validator protocol.Validator) (*T, error) {
	raw, err := c.engine.Execute(ctx, method, params, validator)
	if err != nil {
		return nil, c.fail(method, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, c.fail(method, protocol.WrapError(protocol.KindResponseValidation, err, "decode %s result", method))
	}
	return &out, nil
}

func (c *Client) GetWalletServiceInfo(ctx context.Context) (protocol.ServiceInfo, error) {
	info, err := c.engine.WalletServiceInfo(ctx)
	if err != nil {
		return protocol.ServiceInfo{}, c.fail("get_wallet_service_info", err)
	}
	return info, nil
}

func (c *Client) GetInfo(ctx context.Context) (*protocol.GetInfoResponse, error) {
	return call[protocol.GetInfoResponse](ctx, c, protocol.MethodGetInfo, nil, protocol.ValidateGetInfo)
}

func (c *Client) GetBalance(ctx context.Context) (*protocol.GetBalanceResponse, error) {
	return call[protocol.GetBalanceResponse](ctx, c, protocol.MethodGetBalance, nil, protocol.ValidateGetBalance)
}

func (c *Client) PayInvoice(ctx context.Context, req protocol.PayInvoiceRequest) (*protocol.PayResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, c.fail(protocol.MethodPayInvoice, err)
	}
	return call[protocol.PayResponse](ctx, c, protocol.MethodPayInvoice, req, protocol.ValidatePay)
}

func (c *Client) PayKeysend(ctx context.Context, req protocol.PayKeysendRequest) (*protocol.PayResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, c.fail(protocol.MethodPayKeysend, err)
	}
	return call[protocol.PayResponse](ctx, c, protocol.MethodPayKeysend, req, protocol.ValidatePay)
}

func (c *Client) SignMessage(ctx context.Context, req protocol.SignMessageRequest) (*protocol.SignMessageResponse, error) {
	return call[protocol.SignMessageResponse](ctx, c, protocol.MethodSignMessage, req, protocol.ValidateSignMessage(req.Message))
}

func (c *Client) MakeInvoice(ctx context.Context, req protocol.MakeInvoiceRequest) (*protocol.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, c.fail(protocol.MethodMakeInvoice, err)
	}
	return call[protocol.Transaction](ctx, c, protocol.MethodMakeInvoice, req, protocol.ValidateTransaction)
}

func (c *Client) LookupInvoice(ctx context.Context, req protocol.LookupInvoiceRequest) (*protocol.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, c.fail(protocol.MethodLookupInvoice, err)
	}
	return call[protocol.Transaction](ctx, c, protocol.MethodLookupInvoice, req, protocol.ValidateTransaction)
}

func (c *Client) ListTransactions(ctx context.Context, req protocol.ListTransactionsRequest) (*protocol.ListTransactionsResponse, error) {
	return call[protocol.ListTransactionsResponse](ctx, c, protocol.MethodListTransactions, req, protocol.ValidateListTransactions)
}

// SubscribeNotifications delivers wallet notifications until stop is called.
func (c *Client) SubscribeNotifications(ctx context.Context, handler func(protocol.Notification), types ...protocol.NotificationType) (stop func(), err error) {
	stop, err = c.engine.SubscribeNotifications(ctx, handler, types...)
	if err != nil {
		return nil, c.fail("subscribe_notifications", err)
	}
	return stop, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("nwc.Client{wallet=%s relay=%s}", c.conn.WalletPubkey, c.conn.RelayURL)
}
