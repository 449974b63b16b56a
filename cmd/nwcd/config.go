package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/nwcctl/internal/auth"
	"github.com/danmuck/nwcctl/internal/bridge"
	"github.com/danmuck/nwcctl/internal/config"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/danmuck/nwcctl/pkg/nwc"
)

type fileConfig struct {
	Addr              string   `toml:"addr"`
	Provider          string   `toml:"provider"`
	ProvidersFile     string   `toml:"providers_file"`
	ConnectionURI     string   `toml:"connection_uri"`
	RelayURL          string   `toml:"relay_url"`
	WalletPubkey      string   `toml:"wallet_pubkey"`
	Secret            string   `toml:"secret"`
	SecurityMode      string   `toml:"security_mode"`
	CorsOrigins       []string `toml:"cors_origins"`
	AuthToken         string   `toml:"auth_token"`
	RateLimitRPS      float64  `toml:"rate_limit_rps"`
	RateLimitBurst    int      `toml:"rate_limit_burst"`
	RequestTimeout    string   `toml:"request_timeout"`
	PublishTimeout    string   `toml:"publish_timeout"`
	ReplyTimeout      string   `toml:"reply_timeout"`
	InfoTimeout       string   `toml:"info_timeout"`
	AggregationPolicy string   `toml:"aggregation_policy"`
	ConnectAttempts   int      `toml:"connect_attempts"`
	LogNotifications  bool     `toml:"log_notifications"`
}

// daemonConfig is the resolved nwcd runtime shape.
type daemonConfig struct {
	Bridge           bridge.Config
	Client           nwc.Options
	LogNotifications bool
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Bridge: bridge.DefaultConfig(),
		Client: nwc.Options{
			Providers:    config.DefaultProviders(),
			SecurityMode: config.SecurityModeProduction,
			Session:      session.DefaultConfig(),
		},
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load nwcd config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Bridge.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Bridge.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("auth_token") {
		if token := strings.TrimSpace(raw.AuthToken); token != "" {
			cfg.Bridge.Auth = auth.StaticToken{Token: token}
		}
	}
	if meta.IsDefined("rate_limit_rps") {
		cfg.Bridge.RateLimit = raw.RateLimitRPS
	}
	if meta.IsDefined("rate_limit_burst") {
		cfg.Bridge.RateBurst = raw.RateLimitBurst
	}

	if meta.IsDefined("providers_file") {
		providers, err := config.LoadProviders(strings.TrimSpace(raw.ProvidersFile))
		if err != nil {
			return daemonConfig{}, err
		}
		cfg.Client.Providers = providers
	}
	conn := &cfg.Client.Connection
	if meta.IsDefined("provider") {
		conn.ProviderName = strings.TrimSpace(raw.Provider)
	}
	if meta.IsDefined("connection_uri") {
		conn.ConnectionURI = strings.TrimSpace(raw.ConnectionURI)
	}
	if meta.IsDefined("relay_url") {
		conn.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("wallet_pubkey") {
		conn.WalletPubkey = strings.TrimSpace(raw.WalletPubkey)
	}
	if meta.IsDefined("secret") {
		conn.Secret = strings.TrimSpace(raw.Secret)
	}
	if meta.IsDefined("security_mode") {
		cfg.Client.SecurityMode = config.NormalizeSecurityMode(config.SecurityMode(raw.SecurityMode))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &cfg.Bridge.RequestTimeout},
		{"publish_timeout", raw.PublishTimeout, &cfg.Client.Session.PublishTimeout},
		{"reply_timeout", raw.ReplyTimeout, &cfg.Client.Session.ReplyTimeout},
		{"info_timeout", raw.InfoTimeout, &cfg.Client.Session.InfoTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("aggregation_policy") {
		policy, err := session.ParseAggregationPolicy(raw.AggregationPolicy)
		if err != nil {
			return daemonConfig{}, err
		}
		cfg.Client.Session.AggregationPolicy = policy
	}
	if meta.IsDefined("connect_attempts") {
		cfg.Client.RelayConfig.MaxConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("log_notifications") {
		cfg.LogNotifications = raw.LogNotifications
	}

	if err := cfg.Client.Session.Validate(); err != nil {
		return daemonConfig{}, err
	}
	if cfg.Bridge.RequestTimeout < cfg.Client.Session.PublishTimeout+cfg.Client.Session.ReplyTimeout {
		return daemonConfig{}, fmt.Errorf("request_timeout %s must cover publish_timeout + reply_timeout", cfg.Bridge.RequestTimeout)
	}
	return cfg, nil
}
