package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Wallet error codes defined by NIP-47.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeRestricted          = "RESTRICTED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
	CodeOther               = "OTHER"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeNotFound            = "NOT_FOUND"
)

// ErrorKind classifies one failure cause of a wallet call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindMissingIdentity
	KindNotConnected
	KindInvalidRequest
	KindPublish
	KindPublishTimeout
	KindReplyTimeout
	KindResponseDecoding
	KindResponseValidation
	KindWallet
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingIdentity:
		return "MISSING_IDENTITY"
	case KindNotConnected:
		return "NOT_CONNECTED"
	case KindInvalidRequest:
		return "INVALID_REQUEST"
	case KindPublish:
		return "PUBLISH"
	case KindPublishTimeout:
		return "PUBLISH_TIMEOUT"
	case KindReplyTimeout:
		return "REPLY_TIMEOUT"
	case KindResponseDecoding:
		return "RESPONSE_DECODING"
	case KindResponseValidation:
		return "RESPONSE_VALIDATION"
	case KindWallet:
		return "WALLET"
	default:
		return "UNKNOWN"
	}
}

// Error is the single error shape surfaced by wallet calls.
// Code is the wallet-supplied code for KindWallet, INTERNAL otherwise.
type Error struct {
	Kind    ErrorKind
	Message string
	Code    string
	Cause   error
}

var (
	ErrMissingIdentity    = &Error{Kind: KindMissingIdentity}
	ErrNotConnected       = &Error{Kind: KindNotConnected}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrPublish            = &Error{Kind: KindPublish}
	ErrPublishTimeout     = &Error{Kind: KindPublishTimeout}
	ErrReplyTimeout       = &Error{Kind: KindReplyTimeout}
	ErrResponseDecoding   = &Error{Kind: KindResponseDecoding}
	ErrResponseValidation = &Error{Kind: KindResponseValidation}
	ErrWallet             = &Error{Kind: KindWallet}
)

// NewError builds an Error of kind with the INTERNAL code.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Code:    CodeInternal,
	}
}

// WrapError builds an Error of kind carrying cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	e := NewError(kind, format, args...)
	e.Cause = cause
	return e
}

// NewWalletError keeps the wallet's message and code verbatim, defaulting an empty code to INTERNAL.
func NewWalletError(message, code string) *Error {
	if strings.TrimSpace(code) == "" {
		code = CodeInternal
	}
	return &Error{Kind: KindWallet, Message: message, Code: code}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("nip47: [")
	sb.WriteString(e.Kind.String())
	sb.WriteString("] ")
	sb.WriteString(e.Message)
	if e.Code != "" {
		sb.WriteString(" (code=")
		sb.WriteString(e.Code)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the exported sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is a publish or reply timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrPublishTimeout) || errors.Is(err, ErrReplyTimeout)
}
