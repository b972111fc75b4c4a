package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/api/controllers"
	"github.com/angelmondragon/supportdesk-backend/api/middleware"
	"github.com/angelmondragon/supportdesk-backend/internal/chat"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/ledger"
	"github.com/angelmondragon/supportdesk-backend/internal/presence"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/supportdesk-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs: readiness, idempotent
// replays and request counters.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

// PresenceService is the presence tracker as the REST surface sees it.
type PresenceService interface {
	SetStatus(ctx context.Context, principal auth.Principal, online bool, connectionID string) error
	List(ctx context.Context) ([]presence.AgentView, error)
}

type QueueReader interface {
	Snapshot(ctx context.Context) ([]uuid.UUID, error)
}

// Params carries every collaborator the router mounts.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         controllers.Pinger
	Store      Store
	Metrics    http.Handler
	Complaints complaints.Service
	Chat       chat.Service
	Ledger     ledger.Service
	Presence   PresenceService
	Queue      QueueReader
	DeadLetter controllers.DeadLetterLister
	Socket     http.Handler
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Realtime.AllowedOrigins),
	)

	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["db"] = p.DB
	}
	if p.Store != nil {
		deps["redis"] = p.Store
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	apiPolicy := middleware.NewRateLimitPolicy("api", time.Minute, cfg.RateLimit.RequestsPerMinute)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(apiPolicy, p.Store, logg))
		r.Use(middleware.Idempotency(p.Store, logg))

		r.Route("/complaints", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleCustomer)).Post("/", controllers.SubmitComplaint(p.Complaints, logg))
			r.With(middleware.RequireRole(logg, enums.RoleCustomer)).Get("/mine", controllers.MyComplaints(p.Complaints, logg))
			r.Get("/{complaintId}", controllers.GetComplaint(p.Complaints, logg))
			r.With(middleware.RequireRole(logg, enums.RoleService)).Put("/{complaintId}/resolve", controllers.ResolveComplaint(p.Complaints, logg))
			r.Put("/{complaintId}/close", controllers.CloseComplaint(p.Complaints, logg))
		})

		r.Route("/agent", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleService, enums.RoleAdmin)).Get("/complaints", controllers.AgentComplaints(p.Complaints, logg))
			r.With(middleware.RequireRole(logg, enums.RoleService)).Put("/status", controllers.AgentStatus(p.Presence, logg))
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/{complaintId}", controllers.ChatHistory(p.Chat, logg))
			r.Post("/{complaintId}/messages", controllers.ChatSend(p.Chat, logg))
		})

		r.With(middleware.RequireRole(logg, enums.RoleService, enums.RoleAdmin)).Get("/stats/performance", controllers.Performance(p.Ledger, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Get("/complaints", controllers.AdminComplaints(p.Complaints, logg))
			r.Get("/agents", controllers.AdminAgents(p.Presence, logg))
			r.Get("/queue", controllers.AdminQueue(p.Queue, logg))
			r.Get("/complaints/{complaintId}/failed-events", controllers.AdminFailedEvents(p.DeadLetter, logg))
		})
	})

	if p.Socket != nil {
		r.With(middleware.Auth(cfg.JWT, logg)).Get("/ws", p.Socket.ServeHTTP)
	}

	return r
}

// SocketPrincipal resolves the caller of a websocket upgrade that went
// through the Auth middleware.
func SocketPrincipal(r *http.Request) (auth.Principal, bool) {
	return middleware.PrincipalFromContext(r.Context())
}
