package reminders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/voice-agent-scheduling/internal/tenancy"
)

type memSettings struct {
	rows map[string]Settings
}

func (m *memSettings) Get(_ context.Context, orgID string) (Settings, error) {
	if st, ok := m.rows[orgID]; ok {
		return st, nil
	}
	d := DefaultSettings()
	d.OrgID = orgID
	return d, nil
}

func (m *memSettings) Upsert(_ context.Context, st Settings) (Settings, error) {
	st.Configured = true
	m.rows[st.OrgID] = st
	return st, nil
}

func newTestRouter(h *Handler, orgID string) http.Handler {
	r := chi.NewRouter()
	r.Route("/internal/cron", h.RegisterCronRoutes)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if orgID != "" {
					req = req.WithContext(tenancy.WithOrgID(req.Context(), orgID))
				}
				next.ServeHTTP(w, req)
			})
		})
		h.RegisterRoutes(r)
	})
	return r
}

func TestHandler_RunNow(t *testing.T) {
	fake := runFunc(func(context.Context) (RunResult, error) {
		return RunResult{Processed: 3, EmailsSent: 2, Errors: []string{"x: sms: busy"}}, nil
	})
	router := newTestRouter(NewHandler(fake, &memSettings{rows: map[string]Settings{}}, nil), "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/cron/reminders", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["processed"])
	assert.EqualValues(t, 2, body["emails_sent"])
	assert.Len(t, body["errors"], 1)

	failing := runFunc(func(context.Context) (RunResult, error) { return RunResult{}, errors.New("db down") })
	rec = httptest.NewRecorder()
	newTestRouter(NewHandler(failing, nil, nil), "").
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/cron/reminders", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_Settings(t *testing.T) {
	store := &memSettings{rows: map[string]Settings{}}
	router := newTestRouter(NewHandler(nil, store, nil), "org-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reminder-settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 24, st.HoursBefore)
	assert.False(t, st.Configured)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/reminder-settings",
		bytes.NewBufferString(`{"hours_before":2,"sms_enabled":true,"calls_business_hours_only":true}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	saved := store.rows["org-1"]
	assert.Equal(t, 2, saved.HoursBefore)
	assert.True(t, saved.SMSEnabled)
	assert.True(t, saved.CallsBusinessHoursOnly)
	assert.True(t, saved.SendReminder, "untouched fields keep their value")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/reminder-settings",
		bytes.NewBufferString(`{"hours_before":500}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(NewHandler(nil, store, nil), "").
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reminder-settings", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
