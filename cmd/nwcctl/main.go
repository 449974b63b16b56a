package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/nwcctl/internal/config"
	"github.com/danmuck/nwcctl/internal/observability"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/danmuck/nwcctl/pkg/nwc"
	"github.com/rs/zerolog/log"
)

// EnvConnectionURI supplies -uri when the flag is not set.
const EnvConnectionURI = "NWCCTL_CONNECTION_URI"

var errUsage = errors.New("usage: nwcctl [flags] <command> [json-params]")

type command struct {
	help    string
	offline bool
	run     func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error
}

var commands = map[string]command{
	"uri": {help: "print the connection uri (with secret)", offline: true, run: func(_ context.Context, c *nwc.Client, _ string, out io.Writer) error {
		uri, err := c.ConnectionURI(true)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, uri)
		return err
	}},
	"pubkey": {help: "print the client public key", offline: true, run: func(_ context.Context, c *nwc.Client, _ string, out io.Writer) error {
		pk, err := c.PublicKey()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, pk)
		return err
	}},
	"capabilities": {help: "read the wallet service info event", run: func(ctx context.Context, c *nwc.Client, _ string, out io.Writer) error {
		info, err := c.GetWalletServiceInfo(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"capabilities": info.Capabilities, "notifications": info.Notifications})
	}},
	"info": {help: "get_info", run: func(ctx context.Context, c *nwc.Client, _ string, out io.Writer) error {
		return respond(out)(c.GetInfo(ctx))
	}},
	"balance": {help: "get_balance", run: func(ctx context.Context, c *nwc.Client, _ string, out io.Writer) error {
		return respond(out)(c.GetBalance(ctx))
	}},
	"pay-invoice": {help: `pay_invoice '{"invoice":"lnbc..."}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.PayInvoiceRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.PayInvoice(ctx, req))
	}},
	"pay-keysend": {help: `pay_keysend '{"amount":1000,"pubkey":"02..."}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.PayKeysendRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.PayKeysend(ctx, req))
	}},
	"multi-pay-invoice": {help: `multi_pay_invoice '{"invoices":[{"id":"a","invoice":"lnbc..."}]}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.MultiPayInvoiceRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.MultiPayInvoice(ctx, req))
	}},
	"multi-pay-keysend": {help: `multi_pay_keysend '{"keysends":[{"amount":1000,"pubkey":"02..."}]}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.MultiPayKeysendRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.MultiPayKeysend(ctx, req))
	}},
	"make-invoice": {help: `make_invoice '{"amount":1000,"description":"..."}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.MakeInvoiceRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.MakeInvoice(ctx, req))
	}},
	"lookup-invoice": {help: `lookup_invoice '{"payment_hash":"..."}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.LookupInvoiceRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.LookupInvoice(ctx, req))
	}},
	"transactions": {help: `list_transactions '{"limit":10}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.ListTransactionsRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.ListTransactions(ctx, req))
	}},
	"sign": {help: `sign_message '{"message":"..."}'`, run: func(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
		req, err := decodeParams[protocol.SignMessageRequest](params)
		if err != nil {
			return err
		}
		return respond(out)(c.SignMessage(ctx, req))
	}},
	"notifications": {help: "stream notifications until interrupted; params: space separated types", run: streamNotifications},
}

func main() {
	observability.InitLogger("nwcctl")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "nwcctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("nwcctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "toml config path")
	uri := fs.String("uri", os.Getenv(EnvConnectionURI), "nostr+walletconnect connection uri")
	provider := fs.String("provider", "", "provider preset name")
	relayURL := fs.String("relay", "", "relay url override")
	wallet := fs.String("wallet", "", "wallet pubkey override (hex or npub)")
	secret := fs.String("secret", "", "client secret override (hex or nsec)")
	policy := fs.String("policy", "", "multi-pay aggregation policy: abort|partial")
	timeout := fs.Duration("timeout", 0, "reply timeout override")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := commands[name]
	if !ok {
		usage(fs)
		return errUsage
	}

	opts := defaultOptions()
	if *configPath != "" {
		loaded, err := loadOptions(*configPath)
		if err != nil {
			return err
		}
		opts = loaded
	}
	if err := applyFlags(&opts, *uri, *provider, *relayURL, *wallet, *secret, *policy, *timeout); err != nil {
		return err
	}

	client, err := nwc.NewClient(opts)
	if err != nil {
		return err
	}
	if !cmd.offline {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()
		log.Debug().Str("relay", client.RelayURL()).Str("command", name).Msg("connected")
	}
	return cmd.run(ctx, client, strings.TrimSpace(strings.Join(fs.Args()[1:], " ")), out)
}

func applyFlags(opts *nwc.Options, uri, provider, relayURL, wallet, secret, policy string, timeout time.Duration) error {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&opts.Connection.ConnectionURI, uri)
	set(&opts.Connection.ProviderName, provider)
	set(&opts.Connection.RelayURL, relayURL)
	set(&opts.Connection.WalletPubkey, wallet)
	set(&opts.Connection.Secret, secret)
	if policy != "" {
		p, err := session.ParseAggregationPolicy(policy)
		if err != nil {
			return err
		}
		opts.Session.AggregationPolicy = p
	}
	if timeout > 0 {
		opts.Session.ReplyTimeout = timeout
	}
	return nil
}

func streamNotifications(ctx context.Context, c *nwc.Client, params string, out io.Writer) error {
	var types []protocol.NotificationType
	for _, field := range strings.Fields(params) {
		types = append(types, protocol.NotificationType(field))
	}
	enc := json.NewEncoder(out)
	stop, err := c.SubscribeNotifications(ctx, func(n protocol.Notification) {
		if err := enc.Encode(n); err != nil {
			log.Warn().Err(err).Msg("failed to write notification")
		}
	}, types...)
	if err != nil {
		return err
	}
	defer stop()
	<-ctx.Done()
	return nil
}

func decodeParams[T any](raw string) (T, error) {
	var out T
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, protocol.WrapError(protocol.KindInvalidRequest, err, "invalid params")
	}
	return out, nil
}

func respond(out io.Writer) func(any, error) error {
	return func(v any, err error) error {
		if err != nil {
			return err
		}
		return printJSON(out, v)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, errUsage.Error())
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].help)
	}
	fmt.Fprintf(w, "\nproviders: %s\n\nflags:\n", strings.Join(config.DefaultProviders().Names(), ", "))
	fs.PrintDefaults()
}
