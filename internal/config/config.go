package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/danmuck/nwcctl/internal/identity"
	"github.com/pelletier/go-toml/v2"
)

const DefaultProviderName = "alby"

var (
	ErrUnknownProvider = errors.New("config: unknown provider")
	ErrMissingRelay    = errors.New("config: missing relay url")
	ErrMissingWallet   = errors.New("config: missing wallet pubkey")
)

// Provider is a named relay/wallet preset.
type Provider struct {
	AuthorizationURL string `toml:"authorization_url"`
	RelayURL         string `toml:"relay_url"`
	WalletPubkey     string `toml:"wallet_pubkey"`
}

// Providers maps preset names to presets. It is passed explicitly; there is no
// package-level registry.
type Providers map[string]Provider

// DefaultProviders returns the built-in presets.
func DefaultProviders() Providers {
	return Providers{
		"alby": {
			AuthorizationURL: "https://nwc.getalby.com/apps/new",
			RelayURL:         "wss://relay.getalby.com/v1",
			WalletPubkey:     "69effe7b49a6dd5cf525bd0905917a5005ffe480b58eeb8e861418cf3ae760d9",
		},
	}
}

type providersFile struct {
	Providers map[string]Provider `toml:"providers"`
}

// LoadProviders reads [providers.<name>] tables from path and layers them over
// the built-in presets.
func LoadProviders(path string) (Providers, error) {
	var file providersFile
	if err := loadToml(path, &file); err != nil {
		return nil, err
	}
	out := DefaultProviders()
	for name, p := range file.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("config: provider with empty name in %s", path)
		}
		out[name] = p
	}
	return out, nil
}

// Names lists preset names in order.
func (p Providers) Names() []string {
	out := make([]string, 0, len(p))
	for name := range p {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Options are caller-supplied connection settings. Non-empty fields win over a
// connection URI, which wins over the provider preset.
type Options struct {
	ProviderName     string
	AuthorizationURL string
	RelayURL         string
	WalletPubkey     string
	Secret           string
	ConnectionURI    string
}

// Connection is a fully resolved client connection: hex keys, one relay.
type Connection struct {
	Provider         string
	AuthorizationURL string
	RelayURL         string
	WalletPubkey     string
	Secret           string
}

// Resolve merges opts over the named provider once, decoding npub/nsec input.
func Resolve(opts Options, providers Providers) (Connection, error) {
	if uri := strings.TrimSpace(opts.ConnectionURI); uri != "" {
		parsed, err := ParseConnectionURI(uri)
		if err != nil {
			return Connection{}, err
		}
		opts.RelayURL = firstNonEmpty(opts.RelayURL, parsed.RelayURL)
		opts.WalletPubkey = firstNonEmpty(opts.WalletPubkey, parsed.WalletPubkey)
		opts.Secret = firstNonEmpty(opts.Secret, parsed.Secret)
	}

	name := strings.ToLower(strings.TrimSpace(opts.ProviderName))
	if name == "" {
		name = DefaultProviderName
	}
	preset, ok := providers[name]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	conn := Connection{
		Provider:         name,
		AuthorizationURL: firstNonEmpty(opts.AuthorizationURL, preset.AuthorizationURL),
		RelayURL:         firstNonEmpty(opts.RelayURL, preset.RelayURL),
		WalletPubkey:     firstNonEmpty(opts.WalletPubkey, preset.WalletPubkey),
	}
	if conn.RelayURL == "" {
		return Connection{}, ErrMissingRelay
	}
	if conn.WalletPubkey == "" {
		return Connection{}, ErrMissingWallet
	}
	wallet, err := identity.ParsePublicKey(conn.WalletPubkey)
	if err != nil {
		return Connection{}, fmt.Errorf("config: wallet pubkey: %w", err)
	}
	conn.WalletPubkey = wallet
	if secret := strings.TrimSpace(opts.Secret); secret != "" {
		sk, err := identity.ParseSecret(secret)
		if err != nil {
			return Connection{}, fmt.Errorf("config: secret: %w", err)
		}
		conn.Secret = sk
	}
	return conn, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
