package organizations

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/voice-agent-scheduling/internal/businesshours"
	"github.com/wolfman30/voice-agent-scheduling/internal/notify"
	"github.com/wolfman30/voice-agent-scheduling/internal/tenancy"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

// Handler provides HTTP endpoints for the caller's organization profile.
type Handler struct {
	store  *Store
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates a new organization profile HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source used for open/closed checks.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	if now != nil {
		h.now = now
	}
	return h
}

// RegisterRoutes mounts the org-scoped profile routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/business-hours", h.GetBusinessHours)
	r.Put("/business-hours", h.UpdateBusinessHours)
	r.Get("/profile", h.GetProfile)
	r.Put("/profile", h.UpdateProfile)
}

// BusinessHoursStatus is the current open/closed view for voice agents.
type BusinessHoursStatus struct {
	Open     bool                 `json:"open"`
	Timezone string               `json:"timezone"`
	Prompt   string               `json:"prompt"`
	NextOpen *time.Time           `json:"next_open,omitempty"`
	Config   businesshours.Config `json:"config"`
}

// GetBusinessHours reports whether the organization is open now.
// GET /api/v1/business-hours?tz=
func (h *Handler) GetBusinessHours(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	cfg, err := h.store.BusinessHours(r.Context(), orgID)
	if err != nil {
		h.logger.Error("organizations: load business hours failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	override := r.URL.Query().Get("tz")
	now := h.now()
	status := BusinessHoursStatus{
		Open:     businesshours.IsWithinBusinessHours(cfg, override, now),
		Timezone: businesshours.ResolveTimezone(cfg, override),
		Prompt:   businesshours.FormatForPrompt(cfg),
		Config:   cfg,
	}
	if next, ok := businesshours.NextOpen(cfg, override, now); ok {
		status.NextOpen = &next
	}
	writeJSON(w, http.StatusOK, status)
}

// UpdateBusinessHours replaces the organization's business hours.
// PUT /api/v1/business-hours
func (h *Handler) UpdateBusinessHours(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	var cfg businesshours.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := validateHours(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	p, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("organizations: get profile failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	p.BusinessHours = cfg
	if err := h.store.Set(r.Context(), p); err != nil {
		h.logger.Error("organizations: save profile failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save profile"})
		return
	}
	h.logger.Info("organizations: business hours updated", "org_id", orgID, "timezone", cfg.Timezone)
	writeJSON(w, http.StatusOK, p.BusinessHours)
}

// GetProfile returns the stored (or default) profile.
// GET /api/v1/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	p, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("organizations: get profile failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfileRequest is a partial profile update.
type UpdateProfileRequest struct {
	Name     string           `json:"name,omitempty"`
	TimeZone string           `json:"time_zone,omitempty"`
	Branding *notify.Branding `json:"branding,omitempty"`
}

// UpdateProfile applies a partial update to name, time zone and branding.
// PUT /api/v1/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.TimeZone != "" {
		if _, err := time.LoadLocation(req.TimeZone); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown time_zone"})
			return
		}
	}

	p, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("organizations: get profile failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.TimeZone != "" {
		p.TimeZone = req.TimeZone
	}
	if req.Branding != nil {
		p.Branding = *req.Branding
	}
	if err := h.store.Set(r.Context(), p); err != nil {
		h.logger.Error("organizations: save profile failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save profile"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// validateHours rejects configs the evaluator would silently treat as closed.
func validateHours(cfg businesshours.Config) error {
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("unknown timezone %q", tz)
		}
	}
	if cfg.Schedule == nil {
		return nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		rng := cfg.Schedule.Day(d)
		if rng == nil {
			continue
		}
		start, err := time.Parse("15:04", rng.Start)
		if err != nil {
			return fmt.Errorf("%s: invalid start %q", strings.ToLower(d.String()), rng.Start)
		}
		end, err := time.Parse("15:04", rng.End)
		if err != nil {
			return fmt.Errorf("%s: invalid end %q", strings.ToLower(d.String()), rng.End)
		}
		if !end.After(start) {
			return fmt.Errorf("%s: end must be after start", strings.ToLower(d.String()))
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
