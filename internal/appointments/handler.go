package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/voice-agent-scheduling/internal/actiontoken"
	"github.com/wolfman30/voice-agent-scheduling/internal/tenancy"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

const invalidLinkMessage = "This link is invalid or has expired"

// Handler exposes appointment endpoints for organizations and for attendees
// holding an action link.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new appointments HTTP handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the organization-scoped routes. The caller is
// expected to have placed the org id in the request context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/confirm", h.ConfirmByID)
		r.Post("/{id}/cancel", h.CancelByID)
		r.Post("/{id}/complete", h.CompleteByID)
	})
}

// RegisterPublicRoutes mounts the token-authorized attendee routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/appointments/{token}", h.GetForAction)
	r.Post("/appointments/{token}", h.Act)
}

// Create books an appointment.
// POST /api/v1/appointments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	req.OrgID = orgID

	appt, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// List returns appointments in an optional window.
// GET /api/v1/appointments?from=&to=&status=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	q := r.URL.Query()
	filter := ListFilter{OrgID: orgID}
	var err error
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse(time.RFC3339, raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be RFC 3339"})
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if filter.To, err = time.Parse(time.RFC3339, raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be RFC 3339"})
			return
		}
	}
	if raw := q.Get("status"); raw != "" {
		status := Status(raw)
		filter.Status = &status
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a number"})
			return
		}
	}

	items, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err, false)
		return
	}
	if items == nil {
		items = []Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// Get returns a single appointment.
// GET /api/v1/appointments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, func(orgID string, id uuid.UUID) (*Appointment, error) {
		return h.svc.Get(r.Context(), orgID, id)
	})
}

// ConfirmByID confirms on behalf of the organization.
// POST /api/v1/appointments/{id}/confirm
func (h *Handler) ConfirmByID(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, func(orgID string, id uuid.UUID) (*Appointment, error) {
		return h.svc.ConfirmByID(r.Context(), orgID, id)
	})
}

type cancelBody struct {
	Reason string `json:"reason"`
}

// CancelByID cancels on behalf of the organization.
// POST /api/v1/appointments/{id}/cancel
func (h *Handler) CancelByID(w http.ResponseWriter, r *http.Request) {
	var body cancelBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}
	h.byID(w, r, func(orgID string, id uuid.UUID) (*Appointment, error) {
		return h.svc.CancelByID(r.Context(), orgID, id, body.Reason)
	})
}

// CompleteByID marks a confirmed appointment as completed.
// POST /api/v1/appointments/{id}/complete
func (h *Handler) CompleteByID(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, func(orgID string, id uuid.UUID) (*Appointment, error) {
		return h.svc.CompleteByID(r.Context(), orgID, id)
	})
}

func (h *Handler) byID(w http.ResponseWriter, r *http.Request, fn func(orgID string, id uuid.UUID) (*Appointment, error)) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization required"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid appointment id"})
		return
	}
	appt, err := fn(orgID, id)
	if err != nil {
		h.writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// PublicAppointment is the attendee-facing projection of an appointment.
type PublicAppointment struct {
	ID           uuid.UUID   `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	EndAt        time.Time   `json:"end_at"`
	Duration     int         `json:"duration"`
	TimeZone     string      `json:"time_zone"`
	MeetingType  MeetingType `json:"meeting_type"`
	MeetingLabel string      `json:"meeting_type_label"`
	MeetingLink  string      `json:"meeting_link,omitempty"`
	Location     string      `json:"location,omitempty"`
	PhoneNumber  string      `json:"phone_number,omitempty"`
	AttendeeName string      `json:"attendee_name,omitempty"`
	Status       Status      `json:"status"`
}

func toPublic(a *Appointment) PublicAppointment {
	return PublicAppointment{
		ID:           a.ID,
		Title:        a.Title,
		Description:  a.Description,
		ScheduledAt:  a.ScheduledAt,
		EndAt:        a.EndAt,
		Duration:     a.Duration,
		TimeZone:     a.TimeZone,
		MeetingType:  a.MeetingType,
		MeetingLabel: a.MeetingType.Label(),
		MeetingLink:  a.MeetingLink,
		Location:     a.Location,
		PhoneNumber:  a.PhoneNumber,
		AttendeeName: a.Attendee.Name,
		Status:       a.Status,
	}
}

// GetForAction shows the appointment behind an action link.
// GET /public/appointments/{token}
func (h *Handler) GetForAction(w http.ResponseWriter, r *http.Request) {
	appt, claims, err := h.svc.GetForAction(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, err, true)
		return
	}
	allowed := []actiontoken.Action{}
	if !appt.Status.IsTerminal() {
		for _, a := range []actiontoken.Action{actiontoken.ActionConfirm, actiontoken.ActionCancel, actiontoken.ActionReschedule} {
			if claims.Allows(a) {
				allowed = append(allowed, a)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment":     toPublic(appt),
		"allowed_actions": allowed,
	})
}

// Act applies an attendee action.
// POST /public/appointments/{token}
func (h *Handler) Act(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	res, err := h.svc.Act(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		h.writeError(w, err, true)
		return
	}
	payload := map[string]any{
		"success":     true,
		"action":      req.Action,
		"appointment": toPublic(res.Appointment),
	}
	if res.PreviousScheduledAt != nil {
		payload["previous_scheduled_at"] = res.PreviousScheduledAt
	}
	writeJSON(w, http.StatusOK, payload)
}

// writeError maps service errors to responses. Public callers get the same
// 404 and message for every token or ownership failure.
func (h *Handler) writeError(w http.ResponseWriter, err error, public bool) {
	var (
		verr *ValidationError
		cerr *ConflictError
		terr *TerminalError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "validation_failed",
			"field":   verr.Field,
			"message": verr.Reason,
		})
	case errors.As(err, &cerr):
		payload := map[string]any{
			"error":   "conflict",
			"message": "The requested time overlaps an existing appointment",
		}
		if !cerr.ConflictingStart.IsZero() {
			payload["conflicting_start"] = cerr.ConflictingStart
			payload["conflicting_end"] = cerr.ConflictingEnd
		}
		writeJSON(w, http.StatusConflict, payload)
	case errors.As(err, &terr):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   terr.Code(),
			"message": "This appointment is already " + string(terr.Status),
		})
	case errors.Is(err, ErrConcurrentUpdate):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "concurrent_update"})
	case public && (errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized)):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": invalidLinkMessage})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "appointment not found"})
	case errors.Is(err, ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	default:
		h.logger.Error("appointments: request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
