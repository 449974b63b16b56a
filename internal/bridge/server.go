package bridge

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/nwcctl/internal/auth"
	"github.com/danmuck/nwcctl/internal/observability"
	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Wallet is the client surface the bridge serves.
type Wallet interface {
	Connected() bool
	WalletPubkey() string
	InFlight() []session.PendingExchange
	GetWalletServiceInfo(ctx context.Context) (protocol.ServiceInfo, error)
	GetInfo(ctx context.Context) (*protocol.GetInfoResponse, error)
	GetBalance(ctx context.Context) (*protocol.GetBalanceResponse, error)
	PayInvoice(ctx context.Context, req protocol.PayInvoiceRequest) (*protocol.PayResponse, error)
	PayKeysend(ctx context.Context, req protocol.PayKeysendRequest) (*protocol.PayResponse, error)
	SignMessage(ctx context.Context, req protocol.SignMessageRequest) (*protocol.SignMessageResponse, error)
	MultiPayInvoice(ctx context.Context, req protocol.MultiPayInvoiceRequest) (*protocol.MultiPayInvoiceResponse, error)
	MultiPayKeysend(ctx context.Context, req protocol.MultiPayKeysendRequest) (*protocol.MultiPayKeysendResponse, error)
	MakeInvoice(ctx context.Context, req protocol.MakeInvoiceRequest) (*protocol.Transaction, error)
	LookupInvoice(ctx context.Context, req protocol.LookupInvoiceRequest) (*protocol.Transaction, error)
	ListTransactions(ctx context.Context, req protocol.ListTransactionsRequest) (*protocol.ListTransactionsResponse, error)
}

type Config struct {
	Name           string
	Addr           string
	CorsOrigins    []string
	Auth           auth.Validator
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Name:           "nwcd",
		Addr:           ":8470",
		RateLimit:      5,
		RateBurst:      10,
		RequestTimeout: 90 * time.Second,
	}
}

type Server struct {
	cfg      Config
	wallet   Wallet
	router   *gin.Engine
	limiter  *clientLimiter
	appeared time.Time
	http     *http.Server
}

func New(cfg Config, wallet Wallet) *Server {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = def.Name
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = def.Addr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(cfg.CorsOrigins),
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		ExposeHeaders: []string{observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		wallet:   wallet,
		router:   r,
		appeared: time.Now(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = newClientLimiter(rate.Limit(cfg.RateLimit), burst, 10*time.Minute)
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on cfg.Addr until Shutdown.
func (s *Server) Serve() error {
	log.Info().Str("addr", s.cfg.Addr).Str("wallet", s.wallet.WalletPubkey()).Msg("bridge listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
