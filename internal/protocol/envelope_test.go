package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/danmuck/nwcctl/internal/identity"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/testutil/testlog"
	"github.com/nbd-wtf/go-nostr"
)

func newPair(t *testing.T) (*identity.Keys, *identity.Keys) {
	t.Helper()
	client, err := identity.Generate()
	if err != nil {
		t.Fatalf("client keys: %v", err)
	}
	wallet, err := identity.Generate()
	if err != nil {
		t.Fatalf("wallet keys: %v", err)
	}
	return client, wallet
}

func reply(t *testing.T, wallet *identity.Keys, client string, requestID string, plaintext string) *nostr.Event {
	t.Helper()
	content, err := wallet.Encrypt(client, plaintext)
	if err != nil {
		t.Fatalf("encrypt reply: %v", err)
	}
	evt := nostr.Event{
		Kind:      protocol.KindResponse,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{protocol.TagPubkey, client}, {protocol.TagEvent, requestID}},
		Content:   content,
	}
	if err := wallet.Sign(&evt); err != nil {
		t.Fatalf("sign reply: %v", err)
	}
	return &evt
}

func TestBuildRequestShape(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)

	evt, err := protocol.BuildRequest(
		protocol.MethodPayInvoice,
		protocol.PayInvoiceRequest{Invoice: "lnbc1"},
		client,
		wallet.PublicKey(),
		nostr.Timestamp(1700000000),
	)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if evt.Kind != protocol.KindRequest {
		t.Fatalf("unexpected kind: %d", evt.Kind)
	}
	if evt.PubKey != client.PublicKey() {
		t.Fatalf("unexpected author: %s", evt.PubKey)
	}
	if got, ok := protocol.TagValue(evt.Tags, protocol.TagPubkey); !ok || got != wallet.PublicKey() {
		t.Fatalf("missing wallet reference tag: %+v", evt.Tags)
	}
	if evt.ID != evt.GetID() {
		t.Fatalf("id is not content derived")
	}
	if ok, err := evt.CheckSignature(); err != nil || !ok {
		t.Fatalf("bad signature ok=%v err=%v", ok, err)
	}

	plaintext, err := wallet.Decrypt(client.PublicKey(), evt.Content)
	if err != nil {
		t.Fatalf("wallet decrypt: %v", err)
	}
	if plaintext != `{"method":"pay_invoice","params":{"invoice":"lnbc1"}}` {
		t.Fatalf("unexpected plaintext: %s", plaintext)
	}
}

func TestBuildRequestEmptyParamsIsObject(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)
	evt, err := protocol.BuildRequest(protocol.MethodGetInfo, nil, client, wallet.PublicKey(), nostr.Now())
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	plaintext, err := wallet.Decrypt(client.PublicKey(), evt.Content)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plaintext != `{"method":"get_info","params":{}}` {
		t.Fatalf("unexpected plaintext: %s", plaintext)
	}
}

func TestBuildRequestExtraTagsFollowWalletTag(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)
	evt, err := protocol.BuildRequest(protocol.MethodMultiPayInvoice, nil, client, wallet.PublicKey(), nostr.Now(),
		nostr.Tag{protocol.TagAggregation, "a"}, nostr.Tag{protocol.TagAggregation, "b"})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if len(evt.Tags) != 3 || evt.Tags[0][0] != protocol.TagPubkey || evt.Tags[2][1] != "b" {
		t.Fatalf("unexpected tags: %+v", evt.Tags)
	}
}

func TestBuildRequestRequiresSecret(t *testing.T) {
	testlog.Start(t)
	_, wallet := newPair(t)
	readOnly, err := identity.PublicOnly(wallet.PublicKey())
	if err != nil {
		t.Fatalf("public only: %v", err)
	}
	_, err = protocol.BuildRequest(protocol.MethodGetInfo, nil, readOnly, wallet.PublicKey(), nostr.Now())
	if !errors.Is(err, protocol.ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestRoundTripRecoversPayloadBytes(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)
	payload := `{"result":{"alias":"node","methods":["get_info","pay_invoice"],"block_height":12}}`

	evt := reply(t, wallet, client.PublicKey(), "req", payload)
	plaintext, err := client.Decrypt(wallet.PublicKey(), evt.Content)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plaintext != payload {
		t.Fatalf("payload mismatch\nwant %s\ngot  %s", payload, plaintext)
	}

	resp, err := protocol.DecodeResponse(evt, client, wallet.PublicKey())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(resp.Result) != `{"alias":"node","methods":["get_info","pay_invoice"],"block_height":12}` {
		t.Fatalf("unexpected result bytes: %s", resp.Result)
	}
}

func TestDecodeResponseMalformedJSON(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)
	evt := reply(t, wallet, client.PublicKey(), "req", `{"result": {`)
	_, err := protocol.DecodeResponse(evt, client, wallet.PublicKey())
	if !errors.Is(err, protocol.ErrResponseDecoding) {
		t.Fatalf("expected ErrResponseDecoding, got %v", err)
	}
}

func TestDecodeResponseBadCiphertext(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)
	evt := nostr.Event{Kind: protocol.KindResponse, CreatedAt: nostr.Now(), Tags: nostr.Tags{}, Content: "not-ciphertext"}
	if err := wallet.Sign(&evt); err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err := protocol.DecodeResponse(&evt, client, wallet.PublicKey())
	if !errors.Is(err, protocol.ErrResponseDecoding) {
		t.Fatalf("expected ErrResponseDecoding, got %v", err)
	}
}

func TestDecodeResponseTamperedSignature(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)
	evt := reply(t, wallet, client.PublicKey(), "req", `{"result":{}}`)
	evt.CreatedAt++
	_, err := protocol.DecodeResponse(evt, client, wallet.PublicKey())
	if !errors.Is(err, protocol.ErrResponseDecoding) {
		t.Fatalf("expected ErrResponseDecoding, got %v", err)
	}
}

func TestParseResponseShapes(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name    string
		raw     string
		wantErr error
		wallet  bool
	}{
		{name: "result", raw: `{"result_type":"get_balance","result":{"balance":1}}`},
		{name: "error", raw: `{"result_type":"get_balance","error":{"message":"m","code":"c"}}`, wallet: true},
		{name: "error with null result", raw: `{"result":null,"error":{"message":"m"}}`, wallet: true},
		{name: "neither", raw: `{"result_type":"get_balance"}`, wantErr: protocol.ErrResponseDecoding},
		{name: "both", raw: `{"result":{},"error":{"message":"m"}}`, wantErr: protocol.ErrResponseDecoding},
		{name: "not an object", raw: `[1,2]`, wantErr: protocol.ErrResponseDecoding},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := protocol.ParseResponse([]byte(tc.raw))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if tc.wallet != (resp.Error != nil) {
				t.Fatalf("unexpected error body: %+v", resp.Error)
			}
		})
	}
}

func TestWalletErrorCarriesMessageAndCode(t *testing.T) {
	testlog.Start(t)
	resp, err := protocol.ParseResponse([]byte(`{"error":{"message":"m","code":"c"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var perr *protocol.Error
	if !errors.As(resp.WalletError(), &perr) {
		t.Fatalf("expected *protocol.Error")
	}
	if perr.Kind != protocol.KindWallet || perr.Message != "m" || perr.Code != "c" {
		t.Fatalf("unexpected wallet error: %+v", perr)
	}

	resp, err = protocol.ParseResponse([]byte(`{"error":{"message":"m"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !errors.As(resp.WalletError(), &perr) || perr.Code != protocol.CodeInternal {
		t.Fatalf("expected default INTERNAL code, got %+v", perr)
	}
}

func TestOpenContent(t *testing.T) {
	testlog.Start(t)
	client, wallet := newPair(t)
	evt := reply(t, wallet, client.PublicKey(), "req", `{"notification_type":"payment_received","notification":{"amount":21}}`)
	var n protocol.Notification
	if err := protocol.OpenContent(evt, client, wallet.PublicKey(), &n); err != nil {
		t.Fatalf("open: %v", err)
	}
	if n.NotificationType != protocol.NotificationPaymentReceived || n.Notification.Amount != 21 {
		t.Fatalf("unexpected notification: %+v", n)
	}

	var out json.RawMessage
	evt.Content = "broken"
	if err := protocol.OpenContent(evt, client, wallet.PublicKey(), &out); !errors.Is(err, protocol.ErrResponseDecoding) {
		t.Fatalf("expected ErrResponseDecoding, got %v", err)
	}
}
