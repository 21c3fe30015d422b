package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/stablemem/internal/infra/ratelimit"
	"github.com/yndnr/stablemem/internal/server/httpserver/handler"
	"github.com/yndnr/stablemem/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Engine serves every business and admin route.
	Engine handler.Engine

	// Logger for request logging.
	Logger *slog.Logger

	// Metrics receives request counters. Nil disables /metrics.
	Metrics *metric.Registry

	// APIKey guards the business API (empty = no auth).
	APIKey string

	// AdminKey guards the admin API. Falls back to APIKey when empty.
	AdminKey string

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// MetricsAuthRequired indicates if /metrics endpoint requires authentication.
	MetricsAuthRequired bool

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = CORS disabled).
	CORSAllowedOrigins []string

	// RateLimit is the per-client rate in requests/second (0 = unlimited).
	RateLimit float64

	// RateBurst is the per-client burst size.
	RateBurst int

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

type route struct {
	pattern string
	name    string
}

var businessRoutes = []route{
	{"POST /v1/blobs", "push_blob"},
	{"POST /v1/snapshots/save", "save_snapshot"},
	{"POST /v1/snapshots/load", "load_snapshot"},
	{"GET /v1/memory/header", "memory_header"},
	{"POST /v1/memory/header/trusted", "trusted_memory_header"},
	{"GET /v1/stable/backup", "stream_backup"},
	{"PUT /v1/stable/restore", "stream_restore"},
}

var adminRoutes = []route{
	{"GET /admin/v1/status/summary", "admin_status"},
	{"GET /admin/v1/snapshots/archives", "admin_list_archives"},
	{"POST /admin/v1/snapshots/restore", "admin_restore_archive"},
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Engine, log)
	limiters := ratelimit.NewRegistry(cfg.RateLimit, cfg.RateBurst)
	maxBody := int64(cfg.Engine.MaxPayload())

	mux := http.NewServeMux()

	// Health endpoints - no authentication required
	health := Chain(h, RequestID(), Recover(log))
	mux.Handle("GET /health", health)
	mux.Handle("GET /ready", health)

	// Metrics endpoint - configurable authentication
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(
			cfg.Metrics.Handler(),
			RequestID(),
			Recover(log),
			MetricsAuth(cfg.APIKey, cfg.MetricsAuthRequired),
		))
	}

	// Business API endpoints - require authentication
	// Order: RequestID -> Recover -> CORS -> RateLimit -> Auth -> Audit -> MaxBody -> Handler
	business := []Middleware{
		RequestID(),
		Recover(log),
		CORS(cfg.CORSAllowedOrigins),
		RateLimit(limiters),
		Auth(cfg.APIKey),
	}
	if cfg.EnableAudit {
		business = append(business, Audit(log))
	}
	business = append(business, MaxBody(maxBody))

	for _, rt := range businessRoutes {
		mws := append(append([]Middleware{}, business...), Instrument(cfg.Metrics, rt.name))
		mux.Handle(rt.pattern, Chain(h, mws...))
	}

	// Admin API endpoints - require admin key + optional network ACL
	adminKey := cfg.AdminKey
	if adminKey == "" {
		adminKey = cfg.APIKey
	}
	admin := []Middleware{
		RequestID(),
		Recover(log),
		AdminAuth(adminKey),
	}
	if len(cfg.AdminAllowList) > 0 {
		admin = append(admin, NetworkACL(&NetworkACLConfig{
			AllowList: cfg.AdminAllowList,
			Logger:    log,
		}))
	}
	if cfg.EnableAudit {
		admin = append(admin, Audit(log))
	}

	for _, rt := range adminRoutes {
		mws := append(append([]Middleware{}, admin...), Instrument(cfg.Metrics, rt.name))
		mux.Handle(rt.pattern, Chain(h, mws...))
	}

	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		MetricsAuthRequired: true,
		RateLimit:           1000, // 1000 requests/second per IP
		RateBurst:           2000,
		EnableAudit:         true,
	}
}
