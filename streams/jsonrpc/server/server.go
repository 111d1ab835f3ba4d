package server

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

const (
	// DexNamespace holds the exchange queries, mutations and subscriptions.
	DexNamespace = "dex"
	// TokenNamespace holds the token ledger calls.
	TokenNamespace = "token"

	StateStreamSubscriptionMethod = "subscribeStateStream"
	EventsSubscriptionMethod      = "subscribeEvents"

	defaultBufferSize = 256
)

// Config holds the configuration for the server.
type Config struct {
	Exchange Exchange
	Differ   StateDiffer
	// Ledger is optional; without it the token namespace is not registered.
	Ledger TokenLedger
	Logger Logger

	// CORSOrigins lists allowed browser origins. Empty or "*" allows all.
	CORSOrigins []string
	// RateLimit is the sustained requests per second allowed per client IP. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// BufferSize bounds each subscription's pending event queue.
	BufferSize int
}

func (c *Config) validate() error {
	if c.Exchange == nil {
		return errors.New("config: Exchange is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.RateLimit < 0 {
		return errors.New("config: RateLimit cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return errors.New("config: RateBurst must be positive when rate limiting")
	}
	return nil
}

// Server serves the exchange over JSON-RPC, on HTTP and WebSocket at the same address.
type Server struct {
	rpc     *rpc.Server
	handler http.Handler
	logger  Logger
}

// NewServer registers the exchange APIs and builds the HTTP handler.
func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	rpcServer := rpc.NewServer()
	dexAPI := &DexAPI{
		exchange: cfg.Exchange,
		streamer: &streamer{
			exchange:   cfg.Exchange,
			differ:     cfg.Differ,
			logger:     cfg.Logger,
			bufferSize: bufferSize,
		},
	}
	if err := rpcServer.RegisterName(DexNamespace, dexAPI); err != nil {
		return nil, err
	}
	if cfg.Ledger != nil {
		if err := rpcServer.RegisterName(TokenNamespace, &TokenAPI{ledger: cfg.Ledger, exchange: cfg.Exchange.Address()}); err != nil {
			return nil, err
		}
	}

	var handler http.Handler = &transportSwitch{
		http: rpcServer,
		ws:   rpcServer.WebsocketHandler(origins),
	}
	if cfg.RateLimit > 0 {
		handler = newRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst, cfg.Logger).middleware(handler)
	}
	handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(handler)

	return &Server{
		rpc:     rpcServer,
		handler: handler,
		logger:  cfg.Logger,
	}, nil
}

// Handler returns the HTTP handler serving both transports.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Stop closes all connections and subscriptions.
func (s *Server) Stop() {
	s.rpc.Stop()
}

// transportSwitch routes WebSocket upgrades to the WebSocket handler and everything
// else to plain HTTP JSON-RPC.
type transportSwitch struct {
	http http.Handler
	ws   http.Handler
}

func (t *transportSwitch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		t.ws.ServeHTTP(w, r)
		return
	}
	t.http.ServeHTTP(w, r)
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	logger   Logger
}

const maxTrackedClients = 10000

func newRateLimiter(limit rate.Limit, burst int, logger Logger) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		logger:   logger,
	}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxTrackedClients {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.get(host).Allow() {
			rl.logger.Debug("rate limited", "client", host)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
