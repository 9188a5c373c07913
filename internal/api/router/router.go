package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	httpmiddleware "github.com/wolfman30/voice-agent-scheduling/internal/http/middleware"
	"github.com/wolfman30/voice-agent-scheduling/internal/organizations"
	"github.com/wolfman30/voice-agent-scheduling/internal/reminders"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	MetricsHandler http.Handler

	Appointments  *appointments.Handler
	Reminders     *reminders.Handler
	Organizations *organizations.Handler

	// OrgJWTSecret guards /api/v1. When empty and AllowOrgHeader is set
	// (development only) the X-Org-Id header is trusted instead.
	OrgJWTSecret   string
	AllowOrgHeader bool
	CronSecret     string

	CORSAllowedOrigins []string
	PublicRateLimit    float64
	PublicRateBurst    int

	// Ready reports dependency health for /ready. Optional.
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(cfg.Ready))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Attendee action links: no account, token in the path.
	if cfg.Appointments != nil {
		r.Route("/public", func(public chi.Router) {
			public.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
			if cfg.PublicRateLimit > 0 {
				public.Use(httpmiddleware.RateLimit(cfg.PublicRateLimit, cfg.PublicRateBurst))
			}
			cfg.Appointments.RegisterPublicRoutes(public)
		})
	}

	r.Route("/api/v1", func(api chi.Router) {
		switch {
		case cfg.OrgJWTSecret != "":
			api.Use(httpmiddleware.OrgJWT(cfg.OrgJWTSecret))
		case cfg.AllowOrgHeader:
			api.Use(requireOrgID)
		default:
			api.Use(httpmiddleware.OrgJWT(""))
		}
		if cfg.Appointments != nil {
			cfg.Appointments.RegisterRoutes(api)
		}
		if cfg.Reminders != nil {
			cfg.Reminders.RegisterRoutes(api)
		}
		if cfg.Organizations != nil {
			cfg.Organizations.RegisterRoutes(api)
		}
	})

	if cfg.Reminders != nil {
		r.Route("/internal/cron", func(cron chi.Router) {
			cron.Use(httpmiddleware.BearerSecret(cfg.CronSecret))
			cfg.Reminders.RegisterCronRoutes(cron)
		})
	}

	return r
}

func readyHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
