// Package identity owns client/wallet key material and the crypto primitives applied to events:
// signing, NIP-04 shared-secret encryption, and NIP-19 key decoding.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var (
	ErrInvalidSecret    = errors.New("identity: invalid secret key")
	ErrInvalidPublicKey = errors.New("identity: invalid public key")
)

// Keys is one secp256k1 identity. A Keys without a secret can report its public key
// but every sign/encrypt/decrypt call fails with protocol.ErrMissingIdentity.
type Keys struct {
	secret string
	public string

	mu     sync.Mutex
	shared map[string][]byte
}

// New builds Keys from a hex or nsec secret.
func New(secret string) (*Keys, error) {
	sk, err := ParseSecret(secret)
	if err != nil {
		return nil, err
	}
	pk, err := DerivePublicKey(sk)
	if err != nil {
		return nil, err
	}
	return &Keys{secret: sk, public: pk, shared: make(map[string][]byte)}, nil
}

// Generate returns fresh random Keys.
func Generate() (*Keys, error) {
	return New(nostr.GeneratePrivateKey())
}

// PublicOnly builds Keys that can only identify, not sign.
func PublicOnly(pubkey string) (*Keys, error) {
	pk, err := ParsePublicKey(pubkey)
	if err != nil {
		return nil, err
	}
	return &Keys{public: pk, shared: make(map[string][]byte)}, nil
}

// ParseSecret normalizes a hex or nsec secret to lowercase hex.
func ParseSecret(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "nsec") {
		prefix, value, err := nip19.Decode(raw)
		if err != nil || prefix != "nsec" {
			return "", fmt.Errorf("%w: bad nsec", ErrInvalidSecret)
		}
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%w: bad nsec payload", ErrInvalidSecret)
		}
		raw = s
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: want 32 hex bytes", ErrInvalidSecret)
	}
	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		return "", fmt.Errorf("%w: out of range", ErrInvalidSecret)
	}
	return strings.ToLower(raw), nil
}

// ParsePublicKey normalizes a hex or npub x-only public key to lowercase hex.
func ParsePublicKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "npub") {
		prefix, value, err := nip19.Decode(raw)
		if err != nil || prefix != "npub" {
			return "", fmt.Errorf("%w: bad npub", ErrInvalidPublicKey)
		}
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%w: bad npub payload", ErrInvalidPublicKey)
		}
		raw = s
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: want 32 hex bytes", ErrInvalidPublicKey)
	}
	if _, err := schnorr.ParsePubKey(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return strings.ToLower(raw), nil
}

// DerivePublicKey returns the x-only public key for a hex secret.
func DerivePublicKey(secret string) (string, error) {
	b, err := hex.DecodeString(secret)
	if err != nil || len(b) != 32 {
		return "", ErrInvalidSecret
	}
	_, pub := btcec.PrivKeyFromBytes(b)
	return hex.EncodeToString(schnorr.SerializePubKey(pub)), nil
}

func (k *Keys) PublicKey() string {
	return k.public
}

func (k *Keys) CanSign() bool {
	return k != nil && k.secret != ""
}

// Secret returns the hex secret, or "" for public-only keys.
func (k *Keys) Secret() string {
	return k.secret
}

// Sign sets PubKey, ID and Sig on evt.
func (k *Keys) Sign(evt *nostr.Event) error {
	if !k.CanSign() {
		return missingSecret()
	}
	evt.PubKey = k.public
	if err := evt.Sign(k.secret); err != nil {
		return fmt.Errorf("identity: sign event: %w", err)
	}
	return nil
}

// Encrypt seals plaintext for peer under the NIP-04 shared secret.
func (k *Keys) Encrypt(peer, plaintext string) (string, error) {
	key, err := k.sharedSecret(peer)
	if err != nil {
		return "", err
	}
	return nip04.Encrypt(plaintext, key)
}

// Decrypt opens ciphertext sent by peer.
func (k *Keys) Decrypt(peer, ciphertext string) (string, error) {
	key, err := k.sharedSecret(peer)
	if err != nil {
		return "", err
	}
	return nip04.Decrypt(ciphertext, key)
}

func (k *Keys) sharedSecret(peer string) ([]byte, error) {
	if !k.CanSign() {
		return nil, missingSecret()
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.shared[peer]; ok {
		return key, nil
	}
	key, err := nip04.ComputeSharedSecret(peer, k.secret)
	if err != nil {
		return nil, fmt.Errorf("identity: shared secret with %s: %w", peer, err)
	}
	k.shared[peer] = key
	return key, nil
}

func missingSecret() error {
	return protocol.NewError(protocol.KindMissingIdentity, "missing secret key")
}
