package relay

import (
	"fmt"
	"time"
)

// BackoffConfig defines connect retry spacing.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines relay connection defaults.
type Config struct {
	ConnectTimeout     time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     10 * time.Second,
		MaxConnectAttempts: 1,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = def.MaxConnectAttempts
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("relay: connect timeout must be >= 0")
	}
	if c.MaxConnectAttempts < 0 {
		return fmt.Errorf("relay: max connect attempts must be >= 0")
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("relay: backoff multiplier must be >= 1")
	}
	return nil
}
