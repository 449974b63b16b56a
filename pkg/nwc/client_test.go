package nwc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/nwcctl/internal/config"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/danmuck/nwcctl/internal/testutil/relaytest"
	"github.com/danmuck/nwcctl/internal/testutil/testlog"
	"github.com/danmuck/nwcctl/internal/testutil/wallettest"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

// fakeWallet answers every method the client exposes.
func fakeWallet(req wallettest.Request) []wallettest.Reply {
	switch req.Method {
	case protocol.MethodGetInfo:
		return []wallettest.Reply{wallettest.Result(protocol.GetInfoResponse{Alias: "fake", Methods: []protocol.Method{protocol.MethodGetInfo}})}
	case protocol.MethodGetBalance:
		return []wallettest.Reply{wallettest.Result(protocol.GetBalanceResponse{Balance: 5000})}
	case protocol.MethodPayInvoice, protocol.MethodPayKeysend:
		return []wallettest.Reply{wallettest.Result(protocol.PayResponse{Preimage: "pre", FeesPaid: 3})}
	case protocol.MethodSignMessage:
		var p protocol.SignMessageRequest
		_ = json.Unmarshal(req.Params, &p)
		return []wallettest.Reply{wallettest.Result(protocol.SignMessageResponse{Message: p.Message, Signature: "sig"})}
	case protocol.MethodMakeInvoice, protocol.MethodLookupInvoice:
		return []wallettest.Reply{wallettest.Result(protocol.Transaction{Type: "incoming", Invoice: "lnbc1", Amount: 1000})}
	case protocol.MethodListTransactions:
		return []wallettest.Reply{wallettest.Result(protocol.ListTransactionsResponse{Transactions: []protocol.Transaction{{Invoice: "lnbc1"}}})}
	case protocol.MethodMultiPayInvoice, protocol.MethodMultiPayKeysend:
		out := make([]wallettest.Reply, 0, len(req.DTags))
		for _, tag := range req.DTags {
			r := wallettest.Result(protocol.PayResponse{Preimage: "pre-" + tag})
			if strings.HasPrefix(tag, "fail") {
				r = wallettest.Failure("no route", protocol.CodePaymentFailed)
			}
			r.DTag = tag
			out = append(out, r)
		}
		return out
	}
	return []wallettest.Reply{wallettest.Failure("unsupported", protocol.CodeNotImplemented)}
}

func newTestClient(t *testing.T, handler wallettest.Handler, mutate func(*Options)) (*Client, *wallettest.Wallet, *relaytest.Relay) {
	t.Helper()
	r := relaytest.New()
	w, err := wallettest.New(r, handler)
	require.NoError(t, err)
	stop, err := w.Serve(context.Background())
	require.NoError(t, err)
	t.Cleanup(stop)

	opts := Options{
		Connection: config.Options{
			RelayURL:     r.URL(),
			WalletPubkey: w.PublicKey(),
			Secret:       nostr.GeneratePrivateKey(),
		},
		Session: session.Config{PublishTimeout: 250 * time.Millisecond, ReplyTimeout: 2 * time.Second, InfoTimeout: 500 * time.Millisecond},
		Relay:   r,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	return c, w, r
}

func TestClientCallSurface(t *testing.T) {
	testlog.Start(t)
	c, _, _ := newTestClient(t, fakeWallet, nil)
	ctx := context.Background()
	require.True(t, c.Connected())

	info, err := c.GetInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "fake", info.Alias)

	balance, err := c.GetBalance(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5000, balance.Balance)

	pay, err := c.PayInvoice(ctx, protocol.PayInvoiceRequest{Invoice: "lnbc1"})
	require.NoError(t, err)
	require.Equal(t, "pre", pay.Preimage)

	pay, err = c.PayKeysend(ctx, protocol.PayKeysendRequest{Amount: 1000, Pubkey: "02abc"})
	require.NoError(t, err)
	require.EqualValues(t, 3, pay.FeesPaid)

	signed, err := c.SignMessage(ctx, protocol.SignMessageRequest{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, "sig", signed.Signature)

	tx, err := c.MakeInvoice(ctx, protocol.MakeInvoiceRequest{Amount: 1000})
	require.NoError(t, err)
	require.Equal(t, "lnbc1", tx.Invoice)

	tx, err = c.LookupInvoice(ctx, protocol.LookupInvoiceRequest{PaymentHash: "hash"})
	require.NoError(t, err)
	require.EqualValues(t, 1000, tx.Amount)

	list, err := c.ListTransactions(ctx, protocol.ListTransactionsRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Transactions, 1)

	require.Empty(t, c.InFlight())
}

func TestClientMakeInvoiceRequiresAmount(t *testing.T) {
	testlog.Start(t)
	c, w, _ := newTestClient(t, fakeWallet, nil)
	_, err := c.MakeInvoice(context.Background(), protocol.MakeInvoiceRequest{})
	require.ErrorIs(t, err, protocol.ErrInvalidRequest)
	require.Empty(t, w.Requests())
}

func TestClientMultiPayInvoice(t *testing.T) {
	testlog.Start(t)
	c, w, _ := newTestClient(t, fakeWallet, nil)
	resp, err := c.MultiPayInvoice(context.Background(), protocol.MultiPayInvoiceRequest{Invoices: []protocol.MultiPayInvoiceItem{
		{ID: "first", PayInvoiceRequest: protocol.PayInvoiceRequest{Invoice: "lnbc1"}},
		{PayInvoiceRequest: protocol.PayInvoiceRequest{Invoice: "lnbc2", Amount: 2000}},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 2)
	require.Empty(t, resp.Errors)
	require.Equal(t, "first", resp.Invoices[0].DTag)
	require.Equal(t, "lnbc1", resp.Invoices[0].Invoice.Invoice)
	require.Equal(t, "pre-first", resp.Invoices[0].Preimage)
	require.NotEmpty(t, resp.Invoices[1].DTag)
	require.Equal(t, "lnbc2", resp.Invoices[1].Invoice.Invoice)
	require.Equal(t, "pre-"+resp.Invoices[1].DTag, resp.Invoices[1].Preimage)

	req := w.Requests()[0]
	var params protocol.MultiPayInvoiceRequest
	require.NoError(t, json.Unmarshal(req.Params, &params))
	require.Equal(t, req.DTags, []string{params.Invoices[0].ID, params.Invoices[1].ID})
}

func TestClientMultiPayAbortAndPartial(t *testing.T) {
	testlog.Start(t)
	items := []protocol.MultiPayKeysendItem{
		{ID: "ok", PayKeysendRequest: protocol.PayKeysendRequest{Amount: 1000, Pubkey: "02abc"}},
		{ID: "fail-1", PayKeysendRequest: protocol.PayKeysendRequest{Amount: 1000, Pubkey: "02def"}},
	}

	c, _, _ := newTestClient(t, fakeWallet, nil)
	_, err := c.MultiPayKeysend(context.Background(), protocol.MultiPayKeysendRequest{Keysends: items})
	require.ErrorIs(t, err, protocol.ErrWallet)

	c, _, _ = newTestClient(t, fakeWallet, func(o *Options) {
		o.Session.AggregationPolicy = session.AggregatePartial
	})
	resp, err := c.MultiPayKeysend(context.Background(), protocol.MultiPayKeysendRequest{Keysends: items})
	require.NoError(t, err)
	require.Len(t, resp.Keysends, 1)
	require.Equal(t, "ok", resp.Keysends[0].DTag)
	require.Equal(t, "02abc", resp.Keysends[0].Keysend.Pubkey)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "fail-1", resp.Errors[0].DTag)
	require.Equal(t, protocol.KindWallet, resp.Errors[0].Kind)
	require.Equal(t, protocol.CodePaymentFailed, resp.Errors[0].Code)
}

func TestClientMultiPayRejectsDuplicateIDs(t *testing.T) {
	testlog.Start(t)
	c, w, _ := newTestClient(t, fakeWallet, nil)
	_, err := c.MultiPayInvoice(context.Background(), protocol.MultiPayInvoiceRequest{Invoices: []protocol.MultiPayInvoiceItem{
		{ID: "same", PayInvoiceRequest: protocol.PayInvoiceRequest{Invoice: "lnbc1"}},
		{ID: "same", PayInvoiceRequest: protocol.PayInvoiceRequest{Invoice: "lnbc2"}},
	}})
	require.ErrorIs(t, err, protocol.ErrInvalidRequest)

	_, err = c.MultiPayInvoice(context.Background(), protocol.MultiPayInvoiceRequest{})
	require.ErrorIs(t, err, protocol.ErrInvalidRequest)
	require.Empty(t, w.Requests())
}

func TestClientServiceInfoAndNotifications(t *testing.T) {
	testlog.Start(t)
	c, w, _ := newTestClient(t, fakeWallet, nil)
	ctx := context.Background()
	require.NoError(t, w.PublishInfo(ctx, "get_info get_balance notifications", "payment_received"))

	info, err := c.GetWalletServiceInfo(ctx)
	require.NoError(t, err)
	require.True(t, info.Supports(protocol.CapabilityNotifications))
	require.Equal(t, []protocol.NotificationType{protocol.NotificationPaymentReceived}, info.Notifications)

	got := make(chan protocol.Notification, 1)
	stop, err := c.SubscribeNotifications(ctx, func(n protocol.Notification) { got <- n })
	require.NoError(t, err)
	defer stop()

	pub, err := c.PublicKey()
	require.NoError(t, err)
	require.NoError(t, w.Notify(ctx, pub, protocol.Notification{NotificationType: protocol.NotificationPaymentReceived}))
	select {
	case n := <-got:
		require.Equal(t, protocol.NotificationPaymentReceived, n.NotificationType)
	case <-time.After(time.Second):
		t.Fatalf("notification not delivered")
	}
}

func TestClientWithoutSecret(t *testing.T) {
	testlog.Start(t)
	c, _, _ := newTestClient(t, fakeWallet, func(o *Options) { o.Connection.Secret = "" })
	_, err := c.PublicKey()
	require.ErrorIs(t, err, protocol.ErrMissingIdentity)
	_, err = c.ConnectionURI(false)
	require.ErrorIs(t, err, protocol.ErrMissingIdentity)
	_, err = c.GetBalance(context.Background())
	require.ErrorIs(t, err, protocol.ErrNotConnected)
}

func TestClientConnectionURI(t *testing.T) {
	testlog.Start(t)
	c, w, r := newTestClient(t, fakeWallet, nil)
	pub, err := c.PublicKey()
	require.NoError(t, err)

	withSecret, err := c.ConnectionURI(true)
	require.NoError(t, err)
	parsed, err := config.ParseConnectionURI(withSecret)
	require.NoError(t, err)
	require.Equal(t, w.PublicKey(), parsed.WalletPubkey)
	require.Equal(t, r.URL(), parsed.RelayURL)
	require.Equal(t, pub, parsed.ClientPubkey)
	require.Equal(t, c.Connection().Secret, parsed.Secret)

	public, err := c.ConnectionURI(false)
	require.NoError(t, err)
	require.NotContains(t, public, "secret=")
}

func TestNewClientRejectsPlaintextRelayInProduction(t *testing.T) {
	testlog.Start(t)
	_, err := NewClient(Options{
		Connection:   config.Options{RelayURL: "ws://localhost:7447"},
		SecurityMode: config.SecurityModeProduction,
	})
	require.True(t, errors.Is(err, config.ErrTLSRequired), "got %v", err)
}

func TestClientRecoversDroppedRelay(t *testing.T) {
	testlog.Start(t)
	c, _, r := newTestClient(t, fakeWallet, nil)
	r.SetConnected(false)
	require.False(t, c.Connected())

	for i := 0; i < 3; i++ {
		balance, err := c.GetBalance(context.Background())
		require.NoError(t, err, "call %d after drop", i)
		require.Equal(t, int64(5000), balance.Balance)
	}
	require.Equal(t, 1, r.Dials())
	require.True(t, c.Connected())
}

func TestClientKeepConnected(t *testing.T) {
	testlog.Start(t)
	c, _, r := newTestClient(t, fakeWallet, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.KeepConnected(ctx, 10*time.Millisecond)
	}()

	r.SetConnectError(errors.New("connection refused"))
	r.SetConnected(false)
	time.Sleep(50 * time.Millisecond)
	require.False(t, c.Connected())

	r.SetConnectError(nil)
	require.Eventually(t, c.Connected, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("KeepConnected did not return after cancel")
	}
}
