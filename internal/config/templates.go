package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "nwcctl", "client":
		return clientTemplate, nil
	case "nwcd", "bridge":
		return bridgeTemplate, nil
	case "providers":
		return providersTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `provider = "alby"
# connection_uri = "nostr+walletconnect://<wallet-pubkey>?relay=wss://relay.getalby.com/v1&secret=<hex>"
# secret = "nsec1..."
security_mode = "development"
publish_timeout = "5s"
reply_timeout = "60s"
info_timeout = "10s"
aggregation_policy = "abort"
connect_attempts = 3
`

const bridgeTemplate = `addr = ":8470"
provider = "alby"
# connection_uri = "nostr+walletconnect://<wallet-pubkey>?relay=wss://relay.getalby.com/v1&secret=<hex>"
security_mode = "production"
cors_origins = ["http://localhost:3000"]
auth_token = "change-me"
rate_limit_rps = 5.0
rate_limit_burst = 10
request_timeout = "90s"
reply_timeout = "60s"
aggregation_policy = "abort"
log_notifications = true
`

const providersTemplate = `[providers.alby]
authorization_url = "https://nwc.getalby.com/apps/new"
relay_url = "wss://relay.getalby.com/v1"
wallet_pubkey = "69effe7b49a6dd5cf525bd0905917a5005ffe480b58eeb8e861418cf3ae760d9"

[providers.local]
relay_url = "ws://localhost:7447"
wallet_pubkey = "npub1..."
`

// ValidateFile parses a client or bridge config and checks the connection fields it sets.
func ValidateFile(path string) error {
	var raw map[string]any
	if err := loadToml(path, &raw); err != nil {
		return err
	}
	str := func(key string) string {
		v, _ := raw[key].(string)
		return strings.TrimSpace(v)
	}

	mode := NormalizeSecurityMode(SecurityMode(str("security_mode")))
	relayURL := str("relay_url")
	if uri := str("connection_uri"); uri != "" {
		parsed, err := ParseConnectionURI(uri)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		relayURL = firstNonEmpty(relayURL, parsed.RelayURL)
	}
	if relayURL == "" {
		if mode != SecurityModeDevelopment && mode != SecurityModeProduction {
			return fmt.Errorf("%s: %w: %q", path, ErrInvalidSecurityMode, mode)
		}
		return nil
	}
	if err := ValidateRelaySecurity(mode, relayURL); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
