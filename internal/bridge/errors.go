package bridge

import (
	"context"
	"errors"
	"net/http"

	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
)

// statusFor maps a client error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, session.ErrServiceInfoNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError
	}
	switch perr.Kind {
	case protocol.KindInvalidRequest:
		return http.StatusBadRequest
	case protocol.KindMissingIdentity, protocol.KindNotConnected:
		return http.StatusServiceUnavailable
	case protocol.KindPublishTimeout, protocol.KindReplyTimeout:
		return http.StatusGatewayTimeout
	case protocol.KindPublish, protocol.KindResponseDecoding, protocol.KindResponseValidation:
		return http.StatusBadGateway
	case protocol.KindWallet:
		switch perr.Code {
		case protocol.CodeNotFound:
			return http.StatusNotFound
		case protocol.CodeRateLimited:
			return http.StatusTooManyRequests
		case protocol.CodeUnauthorized, protocol.CodeRestricted:
			return http.StatusForbidden
		case protocol.CodeNotImplemented:
			return http.StatusNotImplemented
		default:
			return http.StatusUnprocessableEntity
		}
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		body["error"] = perr.Message
		body["kind"] = perr.Kind.String()
		body["code"] = perr.Code
	}
	c.JSON(statusFor(err), body)
}
