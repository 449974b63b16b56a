package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/nwcctl/internal/config"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/danmuck/nwcctl/pkg/nwc"
)

type fileConfig struct {
	Provider          string `toml:"provider"`
	ProvidersFile     string `toml:"providers_file"`
	ConnectionURI     string `toml:"connection_uri"`
	RelayURL          string `toml:"relay_url"`
	WalletPubkey      string `toml:"wallet_pubkey"`
	Secret            string `toml:"secret"`
	SecurityMode      string `toml:"security_mode"`
	PublishTimeout    string `toml:"publish_timeout"`
	ReplyTimeout      string `toml:"reply_timeout"`
	InfoTimeout       string `toml:"info_timeout"`
	AggregationPolicy string `toml:"aggregation_policy"`
	ConnectAttempts   int    `toml:"connect_attempts"`
}

func defaultOptions() nwc.Options {
	return nwc.Options{
		Providers:    config.DefaultProviders(),
		SecurityMode: config.SecurityModeDevelopment,
		Session:      session.DefaultConfig(),
	}
}

// loadOptions layers the file at path over defaultOptions. Only keys present in
// the file override.
func loadOptions(path string) (nwc.Options, error) {
	opts := defaultOptions()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nwc.Options{}, fmt.Errorf("load nwcctl config: %w", err)
	}

	if meta.IsDefined("providers_file") {
		providers, err := config.LoadProviders(strings.TrimSpace(raw.ProvidersFile))
		if err != nil {
			return nwc.Options{}, err
		}
		opts.Providers = providers
	}
	if meta.IsDefined("provider") {
		opts.Connection.ProviderName = strings.TrimSpace(raw.Provider)
	}
	if meta.IsDefined("connection_uri") {
		opts.Connection.ConnectionURI = strings.TrimSpace(raw.ConnectionURI)
	}
	if meta.IsDefined("relay_url") {
		opts.Connection.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("wallet_pubkey") {
		opts.Connection.WalletPubkey = strings.TrimSpace(raw.WalletPubkey)
	}
	if meta.IsDefined("secret") {
		opts.Connection.Secret = strings.TrimSpace(raw.Secret)
	}
	if meta.IsDefined("security_mode") {
		opts.SecurityMode = config.NormalizeSecurityMode(config.SecurityMode(raw.SecurityMode))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"publish_timeout", raw.PublishTimeout, &opts.Session.PublishTimeout},
		{"reply_timeout", raw.ReplyTimeout, &opts.Session.ReplyTimeout},
		{"info_timeout", raw.InfoTimeout, &opts.Session.InfoTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return nwc.Options{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("aggregation_policy") {
		policy, err := session.ParseAggregationPolicy(raw.AggregationPolicy)
		if err != nil {
			return nwc.Options{}, err
		}
		opts.Session.AggregationPolicy = policy
	}
	if meta.IsDefined("connect_attempts") {
		opts.RelayConfig.MaxConnectAttempts = raw.ConnectAttempts
	}

	if err := opts.Session.Validate(); err != nil {
		return nwc.Options{}, err
	}
	return opts, nil
}
