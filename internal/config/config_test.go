package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/nwcctl/internal/testutil/testlog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/require"
)

const walletHex = "69effe7b49a6dd5cf525bd0905917a5005ffe480b58eeb8e861418cf3ae760d9"

func TestParseConnectionURISchemes(t *testing.T) {
	testlog.Start(t)
	for _, prefix := range []string{"nostr+walletconnect://", "nostrwalletconnect://", "nostr+walletconnect:", "nostrwalletconnect:"} {
		got, err := ParseConnectionURI(prefix + walletHex + "?relay=wss://relay.example/v1&secret=abc")
		require.NoError(t, err, prefix)
		require.Equal(t, walletHex, got.WalletPubkey)
		require.Equal(t, "wss://relay.example/v1", got.RelayURL)
		require.Equal(t, "abc", got.Secret)
	}
}

func TestParseConnectionURIErrors(t *testing.T) {
	testlog.Start(t)
	for _, raw := range []string{
		"https://" + walletHex + "?relay=wss://r",
		"nostr+walletconnect://" + walletHex,
		"nostr+walletconnect://?relay=wss://r",
	} {
		_, err := ParseConnectionURI(raw)
		require.ErrorIs(t, err, ErrInvalidConnectionURI, raw)
	}
}

func TestFormatConnectionURIRoundTrip(t *testing.T) {
	testlog.Start(t)
	uri := FormatConnectionURI(walletHex, "wss://relay.example/v1", "cafe", "beef")
	require.Equal(t, "nostr+walletconnect://"+walletHex+"?relay=wss%3A%2F%2Frelay.example%2Fv1&pubkey=cafe&secret=beef", uri)
	parsed, err := ParseConnectionURI(uri)
	require.NoError(t, err)
	require.Equal(t, "beef", parsed.Secret)
	require.Equal(t, "cafe", parsed.ClientPubkey)

	public := FormatConnectionURI(walletHex, "wss://relay.example/v1", "cafe", "")
	require.NotContains(t, public, "secret=")

	relays := []string{
		"wss://r.example/?a=1&b=2",
		"wss://r.example/path?token=a+b%20c",
		"wss://r.example:4443/#frag",
	}
	for _, relay := range relays {
		parsed, err := ParseConnectionURI(FormatConnectionURI(walletHex, relay, "cafe", "beef"))
		require.NoError(t, err, relay)
		require.Equal(t, relay, parsed.RelayURL)
		require.Equal(t, walletHex, parsed.WalletPubkey)
		require.Equal(t, "beef", parsed.Secret)
	}
}

func TestResolvePrecedence(t *testing.T) {
	testlog.Start(t)
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	require.NoError(t, err)

	conn, err := Resolve(Options{}, DefaultProviders())
	require.NoError(t, err)
	require.Equal(t, "alby", conn.Provider)
	require.Equal(t, "wss://relay.getalby.com/v1", conn.RelayURL)
	require.Equal(t, walletHex, conn.WalletPubkey)
	require.Empty(t, conn.Secret)

	other := nostr.GeneratePrivateKey()
	otherPub, err := nostr.GetPublicKey(other)
	require.NoError(t, err)
	npub, err := nip19.EncodePublicKey(otherPub)
	require.NoError(t, err)

	conn, err = Resolve(Options{
		ConnectionURI: "nostr+walletconnect://" + walletHex + "?relay=wss://uri.example&secret=" + sk,
		RelayURL:      "wss://explicit.example",
		WalletPubkey:  npub,
	}, DefaultProviders())
	require.NoError(t, err)
	require.Equal(t, "wss://explicit.example", conn.RelayURL)
	require.Equal(t, otherPub, conn.WalletPubkey)
	require.Equal(t, sk, conn.Secret)

	conn, err = Resolve(Options{Secret: nsec}, DefaultProviders())
	require.NoError(t, err)
	require.Equal(t, sk, conn.Secret)
}

func TestResolveErrors(t *testing.T) {
	testlog.Start(t)
	_, err := Resolve(Options{ProviderName: "nope"}, DefaultProviders())
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = Resolve(Options{}, Providers{"alby": {WalletPubkey: walletHex}})
	require.ErrorIs(t, err, ErrMissingRelay)

	_, err = Resolve(Options{Secret: "zz"}, DefaultProviders())
	require.Error(t, err)
}

func TestLoadProvidersLayersOverDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "providers.toml")
	data := `[providers.Local]
relay_url = "ws://localhost:7447"
wallet_pubkey = "` + walletHex + `"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	providers, err := LoadProviders(path)
	require.NoError(t, err)
	require.Equal(t, []string{"alby", "local"}, providers.Names())

	conn, err := Resolve(Options{ProviderName: "local"}, providers)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:7447", conn.RelayURL)
}

func TestValidateRelaySecurity(t *testing.T) {
	testlog.Start(t)
	require.NoError(t, ValidateRelaySecurity("", "ws://localhost:7447"))
	require.NoError(t, ValidateRelaySecurity(SecurityModeProduction, "wss://relay.getalby.com/v1"))
	require.ErrorIs(t, ValidateRelaySecurity("PRODUCTION", "ws://localhost:7447"), ErrTLSRequired)
	require.ErrorIs(t, ValidateRelaySecurity("staging", "wss://r"), ErrInvalidSecurityMode)
}

func TestTemplates(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{"nwcctl", "nwcd", "providers"} {
		_, err := Template(kind)
		require.NoError(t, err, kind)
	}
	_, err := Template("wallet")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "providers.toml")
	require.NoError(t, WriteTemplate(path, "providers", false))
	err = WriteTemplate(path, "providers", false)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidConnectionURI))
	providers, err := LoadProviders(path)
	require.NoError(t, err)
	require.Contains(t, providers, "local")
}

func TestValidateFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	for _, kind := range []string{"nwcctl", "nwcd"} {
		path := filepath.Join(dir, kind+".toml")
		require.NoError(t, WriteTemplate(path, kind, false))
		require.NoError(t, ValidateFile(path), kind)
	}

	require.ErrorIs(t, ValidateFile(write("plain.toml", "security_mode = \"production\"\nrelay_url = \"ws://localhost:7447\"\n")), ErrTLSRequired)
	require.ErrorIs(t, ValidateFile(write("mode.toml", `security_mode = "staging"`)), ErrInvalidSecurityMode)
	require.ErrorIs(t, ValidateFile(write("uri.toml", `connection_uri = "https://nope"`)), ErrInvalidConnectionURI)
	require.NoError(t, ValidateFile(write("dev.toml", `connection_uri = "nostr+walletconnect://`+walletHex+`?relay=ws://localhost:7447"`)))
	require.Error(t, ValidateFile(write("broken.toml", `relay_url = `)))
}
