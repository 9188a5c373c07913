package reminders

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/voice-agent-scheduling/internal/tenancy"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

// SettingsRepository is the settings persistence used by the admin routes.
type SettingsRepository interface {
	Get(ctx context.Context, orgID string) (Settings, error)
	Upsert(ctx context.Context, st Settings) (Settings, error)
}

// Handler exposes the cron trigger and the reminder settings admin routes.
type Handler struct {
	orch     runnable
	settings SettingsRepository
	logger   *logging.Logger
}

// NewHandler creates a reminders HTTP handler.
func NewHandler(orch runnable, settings SettingsRepository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orch: orch, settings: settings, logger: logger}
}

// RegisterCronRoutes mounts the trigger. Callers must guard it with the cron secret.
func (h *Handler) RegisterCronRoutes(r chi.Router) {
	r.Post("/reminders", h.RunNow)
}

// RegisterRoutes mounts the org-scoped settings routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reminder-settings", h.GetSettings)
	r.Put("/reminder-settings", h.UpdateSettings)
}

// RunNow executes one orchestrator pass and returns its counters.
// POST /internal/cron/reminders
func (h *Handler) RunNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.Run(r.Context())
	if err != nil {
		h.logger.Error("reminders: cron run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reminder run failed"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSettings returns the organization's reminder settings.
// GET /api/v1/reminder-settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	st, err := h.settings.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("reminders: get settings failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type updateSettingsRequest struct {
	SendReminder *bool `json:"send_reminder"`
	HoursBefore  *int  `json:"hours_before"`
	SMSEnabled   *bool `json:"sms_enabled"`
	CallEnabled  *bool `json:"call_enabled"`

	CallsBusinessHoursOnly *bool `json:"calls_business_hours_only"`
}

// UpdateSettings applies a partial update on top of the current settings.
// PUT /api/v1/reminder-settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	st, err := h.settings.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("reminders: get settings failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if req.SendReminder != nil {
		st.SendReminder = *req.SendReminder
	}
	if req.HoursBefore != nil {
		st.HoursBefore = *req.HoursBefore
	}
	if req.SMSEnabled != nil {
		st.SMSEnabled = *req.SMSEnabled
	}
	if req.CallEnabled != nil {
		st.CallEnabled = *req.CallEnabled
	}
	if req.CallsBusinessHoursOnly != nil {
		st.CallsBusinessHoursOnly = *req.CallsBusinessHoursOnly
	}
	st.OrgID = orgID
	if err := st.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	saved, err := h.settings.Upsert(r.Context(), st)
	if err != nil {
		h.logger.Error("reminders: save settings failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
		return
	}
	h.logger.Info("reminders: settings updated", "org_id", orgID, "hours_before", saved.HoursBefore)
	writeJSON(w, http.StatusOK, saved)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
