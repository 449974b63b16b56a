package bridge

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/nwcctl/internal/auth"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": s.cfg.Name,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.wallet.Connected() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  status == http.StatusOK,
			"wallet": s.wallet.WalletPubkey(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1", auth.Middleware(s.cfg.Auth), rateLimit(s.limiter))

	v1.GET("/capabilities", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		info, err := s.wallet.GetWalletServiceInfo(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"capabilities": info.Capabilities, "notifications": info.Notifications}, nil
	}))

	v1.GET("/info", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		return s.wallet.GetInfo(ctx)
	}))

	v1.GET("/balance", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		return s.wallet.GetBalance(ctx)
	}))

	v1.GET("/inflight", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"exchanges": s.wallet.InFlight()})
	})

	v1.GET("/transactions", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		req, err := listTransactionsQuery(c)
		if err != nil {
			return nil, err
		}
		return s.wallet.ListTransactions(ctx, req)
	}))

	v1.GET("/invoices/lookup", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		return s.wallet.LookupInvoice(ctx, protocol.LookupInvoiceRequest{
			PaymentHash: c.Query("payment_hash"),
			Invoice:     c.Query("invoice"),
		})
	}))

	v1.POST("/invoices", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		var req protocol.MakeInvoiceRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return s.wallet.MakeInvoice(ctx, req)
	}))

	v1.POST("/payments/invoice", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		var req protocol.PayInvoiceRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return s.wallet.PayInvoice(ctx, req)
	}))

	v1.POST("/payments/keysend", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		var req protocol.PayKeysendRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return s.wallet.PayKeysend(ctx, req)
	}))

	v1.POST("/payments/multi/invoice", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		var req protocol.MultiPayInvoiceRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return s.wallet.MultiPayInvoice(ctx, req)
	}))

	v1.POST("/payments/multi/keysend", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		var req protocol.MultiPayKeysendRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return s.wallet.MultiPayKeysend(ctx, req)
	}))

	v1.POST("/sign", s.handle(func(ctx context.Context, c *gin.Context) (any, error) {
		var req protocol.SignMessageRequest
		if err := bind(c, &req); err != nil {
			return nil, err
		}
		return s.wallet.SignMessage(ctx, req)
	}))
}

// handle runs fn under the request timeout and writes its result or error as JSON.
func (s *Server) handle(fn func(ctx context.Context, c *gin.Context) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
		defer cancel()
		out, err := fn(ctx, c)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func bind(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return protocol.WrapError(protocol.KindInvalidRequest, err, "invalid request body")
	}
	return nil
}

func listTransactionsQuery(c *gin.Context) (protocol.ListTransactionsRequest, error) {
	var req protocol.ListTransactionsRequest
	ints := map[string]*int64{"from": &req.From, "until": &req.Until, "limit": &req.Limit, "offset": &req.Offset}
	for name, dst := range ints {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return req, protocol.NewError(protocol.KindInvalidRequest, "invalid %s: %q", name, raw)
		}
		*dst = v
	}
	if raw := c.Query("unpaid"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, protocol.NewError(protocol.KindInvalidRequest, "invalid unpaid: %q", raw)
		}
		req.Unpaid = v
	}
	switch t := protocol.TransactionType(c.Query("type")); t {
	case "", protocol.TransactionIncoming, protocol.TransactionOutgoing:
		req.Type = t
	default:
		return req, protocol.NewError(protocol.KindInvalidRequest, "invalid type: %q", t)
	}
	return req, nil
}
