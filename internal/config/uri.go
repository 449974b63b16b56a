package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidConnectionURI = errors.New("config: invalid connection uri")

// URIScheme is the canonical connection URI scheme.
const URIScheme = "nostr+walletconnect"

var uriPrefixes = []string{
	"nostr+walletconnect://",
	"nostrwalletconnect://",
	"nostr+walletconnect:",
	"nostrwalletconnect:",
}

// ConnectionURI is the parsed form of a wallet connect URI.
type ConnectionURI struct {
	WalletPubkey string
	RelayURL     string
	Secret       string
	ClientPubkey string
}

// ParseConnectionURI accepts the current and legacy schemes, with or without "//".
// relay is required; secret is optional.
func ParseConnectionURI(raw string) (ConnectionURI, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := "", false
	for _, prefix := range uriPrefixes {
		if strings.HasPrefix(strings.ToLower(raw), prefix) {
			rest, ok = raw[len(prefix):], true
			break
		}
	}
	if !ok {
		return ConnectionURI{}, fmt.Errorf("%w: unknown scheme", ErrInvalidConnectionURI)
	}
	u, err := url.Parse("http://" + rest)
	if err != nil {
		return ConnectionURI{}, fmt.Errorf("%w: %v", ErrInvalidConnectionURI, err)
	}
	if u.Host == "" {
		return ConnectionURI{}, fmt.Errorf("%w: missing wallet pubkey", ErrInvalidConnectionURI)
	}
	q := u.Query()
	relay := strings.TrimSpace(q.Get("relay"))
	if relay == "" {
		return ConnectionURI{}, fmt.Errorf("%w: no relay url found in connection string", ErrInvalidConnectionURI)
	}
	return ConnectionURI{
		WalletPubkey: u.Host,
		RelayURL:     relay,
		Secret:       strings.TrimSpace(q.Get("secret")),
		ClientPubkey: strings.TrimSpace(q.Get("pubkey")),
	}, nil
}

// FormatConnectionURI renders a connection URI. Secret is omitted when empty.
// Query values are escaped so relay URLs carrying their own query survive a parse.
func FormatConnectionURI(wallet, relayURL, clientPubkey, secret string) string {
	var sb strings.Builder
	sb.WriteString(URIScheme)
	sb.WriteString("://")
	sb.WriteString(wallet)
	sb.WriteString("?relay=")
	sb.WriteString(url.QueryEscape(relayURL))
	if clientPubkey != "" {
		sb.WriteString("&pubkey=")
		sb.WriteString(url.QueryEscape(clientPubkey))
	}
	if secret != "" {
		sb.WriteString("&secret=")
		sb.WriteString(url.QueryEscape(secret))
	}
	return sb.String()
}
