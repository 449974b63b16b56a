package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SecurityMode gates which relay transports are acceptable.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

var (
	ErrInvalidSecurityMode = errors.New("config: invalid security mode")
	ErrTLSRequired         = errors.New("config: tls required")
)

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

// ValidateRelaySecurity rejects plaintext ws:// relays in production mode.
func ValidateRelaySecurity(mode SecurityMode, relayURL string) error {
	mode = NormalizeSecurityMode(mode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, mode)
	}
	if mode != SecurityModeProduction {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(relayURL))
	if err != nil {
		return fmt.Errorf("config: relay url: %w", err)
	}
	if u.Scheme != "wss" {
		return fmt.Errorf("%w: relay %s uses %q", ErrTLSRequired, relayURL, u.Scheme)
	}
	return nil
}
