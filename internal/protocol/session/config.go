package session

import (
	"fmt"
	"strings"
	"time"
)

// AggregationPolicy decides what a batch does when one item fails.
type AggregationPolicy string

const (
	// AggregateAbort rejects the whole batch on the first failed item.
	AggregateAbort AggregationPolicy = "abort"
	// AggregatePartial records per-item failures and resolves with what settled.
	AggregatePartial AggregationPolicy = "partial"
)

// ParseAggregationPolicy accepts "abort", "partial" or "" (abort).
func ParseAggregationPolicy(raw string) (AggregationPolicy, error) {
	switch AggregationPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AggregateAbort:
		return AggregateAbort, nil
	case AggregatePartial:
		return AggregatePartial, nil
	default:
		return "", fmt.Errorf("session: unknown aggregation policy %q", raw)
	}
}

// Config defines exchange deadlines.
type Config struct {
	PublishTimeout    time.Duration
	ReplyTimeout      time.Duration
	InfoTimeout       time.Duration
	AggregationPolicy AggregationPolicy
}

func DefaultConfig() Config {
	return Config{
		PublishTimeout:    5 * time.Second,
		ReplyTimeout:      60 * time.Second,
		InfoTimeout:       10 * time.Second,
		AggregationPolicy: AggregateAbort,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = def.PublishTimeout
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = def.ReplyTimeout
	}
	if c.InfoTimeout <= 0 {
		c.InfoTimeout = def.InfoTimeout
	}
	if c.AggregationPolicy == "" {
		c.AggregationPolicy = def.AggregationPolicy
	}
	return c
}

func (c Config) Validate() error {
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("session: publish timeout must be > 0")
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("session: reply timeout must be > 0")
	}
	if c.InfoTimeout <= 0 {
		return fmt.Errorf("session: info timeout must be > 0")
	}
	if _, err := ParseAggregationPolicy(string(c.AggregationPolicy)); err != nil {
		return err
	}
	return nil
}
