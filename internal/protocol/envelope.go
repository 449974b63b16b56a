package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Sealer signs and encrypts on behalf of the requesting client.
type Sealer interface {
	PublicKey() string
	CanSign() bool
	Encrypt(peer, plaintext string) (string, error)
	Sign(evt *nostr.Event) error
}

// Opener decrypts content sent by a counterparty.
type Opener interface {
	Decrypt(peer, ciphertext string) (string, error)
}

// Request is the plaintext of a request event.
type Request struct {
	Method Method `json:"method"`
	Params any    `json:"params"`
}

// ResponseError is the wallet-side failure body of a reply.
type ResponseError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Response is the plaintext of a reply event. Exactly one of Result and Error is set.
type Response struct {
	ResultType Method          `json:"result_type,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ResponseError  `json:"error,omitempty"`
}

// WalletError converts the error body into a KindWallet error.
func (r Response) WalletError() error {
	if r.Error == nil {
		return nil
	}
	message := r.Error.Message
	if strings.TrimSpace(message) == "" {
		message = "unknown error"
	}
	return NewWalletError(message, r.Error.Code)
}

// BuildRequest seals {method, params} for wallet and returns the signed request event.
// extraTags are appended after the wallet reference tag.
func BuildRequest(method Method, params any, sealer Sealer, wallet string, createdAt nostr.Timestamp, extraTags ...nostr.Tag) (nostr.Event, error) {
	if sealer == nil || !sealer.CanSign() {
		return nostr.Event{}, NewError(KindMissingIdentity, "missing secret key")
	}
	if params == nil {
		params = struct{}{}
	}
	plaintext, err := json.Marshal(Request{Method: method, Params: params})
	if err != nil {
		return nostr.Event{}, WrapError(KindInvalidRequest, err, "encode %s params", method)
	}
	content, err := sealer.Encrypt(wallet, string(plaintext))
	if err != nil {
		return nostr.Event{}, wrapSealError(err, "encrypt %s request", method)
	}

	tags := make(nostr.Tags, 0, 1+len(extraTags))
	tags = append(tags, nostr.Tag{TagPubkey, wallet})
	tags = append(tags, extraTags...)
	evt := nostr.Event{
		Kind:      KindRequest,
		CreatedAt: createdAt,
		Tags:      tags,
		Content:   content,
		PubKey:    sealer.PublicKey(),
	}
	if err := sealer.Sign(&evt); err != nil {
		return nostr.Event{}, wrapSealError(err, "sign %s request", method)
	}
	return evt, nil
}

// DecodeResponse opens a reply event from wallet. A well-formed {"error": ...} payload is
// returned as a Response, not as an error.
func DecodeResponse(evt *nostr.Event, opener Opener, wallet string) (Response, error) {
	if evt == nil {
		return Response{}, NewError(KindResponseDecoding, "missing reply event")
	}
	if ok, err := evt.CheckSignature(); err != nil || !ok {
		return Response{}, WrapError(KindResponseDecoding, err, "invalid reply signature: event %s", evt.ID)
	}
	plaintext, err := opener.Decrypt(wallet, evt.Content)
	if err != nil {
		if errors.Is(err, ErrMissingIdentity) {
			return Response{}, err
		}
		return Response{}, WrapError(KindResponseDecoding, err, "failed to decrypt response")
	}
	return ParseResponse([]byte(plaintext))
}

// ParseResponse parses decrypted reply plaintext.
func ParseResponse(plaintext []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return Response{}, WrapError(KindResponseDecoding, err, "failed to deserialize response")
	}
	hasResult := present(resp.Result)
	switch {
	case hasResult && resp.Error != nil:
		return Response{}, NewError(KindResponseDecoding, "response carries both result and error")
	case !hasResult && resp.Error == nil:
		return Response{}, NewError(KindResponseDecoding, "response carries neither result nor error")
	}
	if !hasResult {
		resp.Result = nil
	}
	return resp, nil
}

// OpenContent decrypts and unmarshals content sent by peer into out.
func OpenContent(evt *nostr.Event, opener Opener, peer string, out any) error {
	plaintext, err := opener.Decrypt(peer, evt.Content)
	if err != nil {
		return WrapError(KindResponseDecoding, err, "failed to decrypt event %s", evt.ID)
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return WrapError(KindResponseDecoding, err, "failed to deserialize event %s", evt.ID)
	}
	return nil
}

// TagValue returns the first value of the first tag named name.
func TagValue(tags nostr.Tags, name string) (string, bool) {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// ReferencesEvent reports whether evt carries an "e" tag pointing at id.
func ReferencesEvent(evt *nostr.Event, id string) bool {
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == TagEvent && tag[1] == id {
			return true
		}
	}
	return false
}

func wrapSealError(err error, format string, args ...any) error {
	if errors.Is(err, ErrMissingIdentity) {
		return err
	}
	return WrapError(KindInvalidRequest, err, format, args...)
}

// compactJSON is used in validation messages so results print on one line.
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ValidationError reports a result that failed validator for method.
func ValidationError(method Method, result json.RawMessage) *Error {
	return NewError(KindResponseValidation, "response from wallet failed validation for %s: %s", method, compactJSON(result))
}
