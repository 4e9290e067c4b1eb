// Package server exposes the chat pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/yolodolo42/chatchain/internal/agent"
	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/store"
)

// Service is the pipeline the handlers drive. *agent.Agent implements it.
type Service interface {
	Interpret(ctx context.Context, req agent.InterpretRequest) (*agent.Interpretation, error)
	Submit(ctx context.Context, req agent.SubmitRequest) (*agent.Turn, error)
	Simulate(ctx context.Context, call simulate.Call) simulate.Result
	SendForIntent(ctx context.Context, req agent.SendRequest) (*agent.Submission, error)
	Execute(ctx context.Context, req agent.ExecuteRequest) (*agent.Submission, error)
	TxStatus(ctx context.Context, hash string) (*agent.TxStatusView, error)
	History(ctx context.Context, address string, page, limit int) (*agent.HistoryPage, error)
	Intents(ctx context.Context, filter store.IntentLogFilter) ([]store.IntentLog, int, error)
	Intent(ctx context.Context, id string) (store.IntentLog, error)
	Chat(ctx context.Context, sessionID string) ([]store.ChatMessage, error)
	Analytics(ctx context.Context) (*agent.Analytics, error)
	Network() *chain.ChainConfig
}

var _ Service = (*agent.Agent)(nil)

// RateLimit bounds parse requests per client IP. A zero RPS disables it.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Config for the HTTP handler.
type Config struct {
	Service        Service
	Logger         *slog.Logger
	Environment    string
	Version        string
	AllowedOrigins []string
	RateLimit      RateLimit
	// TrustProxy keys rate limiting on X-Forwarded-For / X-Real-IP instead
	// of the peer address.
	TrustProxy bool
	// Now is the health check clock; defaults to time.Now.
	Now func() time.Time
}

type handlers struct {
	svc     Service
	errs    errorMapper
	version string
	now     func() time.Time
}

// New returns the HTTP handler serving the API, /metrics and /openapi.json.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	installErrorEnvelope()
	huma.DefaultArrayNullable = false

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}).Handler)
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		router.Use(newIPLimiter(cfg.RateLimit.RPS, burst).limitPaths("/api/ai/parse-intent", "/parse-intent"))
	}

	router.Handle("/metrics", promhttp.Handler())

	hcfg := huma.DefaultConfig("chatchain API", version)
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	api := humachi.New(router, hcfg)

	h := &handlers{
		svc:     cfg.Service,
		errs:    errorMapper{logger: logger, verbose: !isProduction(cfg.Environment)},
		version: version,
		now:     now,
	}
	h.registerAI(api)
	h.registerTx(api)
	h.registerLogs(api)
	h.registerMeta(api)

	return router
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
