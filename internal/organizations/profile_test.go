package organizations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/voice-agent-scheduling/internal/businesshours"
	"github.com/wolfman30/voice-agent-scheduling/internal/notify"
	"github.com/wolfman30/voice-agent-scheduling/internal/tenancy"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), mr
}

func TestStore_GetDefaultWhenMissing(t *testing.T) {
	store, _ := newTestStore(t)

	p, err := store.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", p.OrgID)
	assert.Equal(t, businesshours.DefaultTimezone, p.TimeZone)
	assert.Equal(t, "Appointments", p.Branding.CompanyName)
	require.NotNil(t, p.BusinessHours.Schedule)
	assert.Nil(t, p.BusinessHours.Schedule.Sunday)
}

func TestStore_SetAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	p := DefaultProfile("org-1")
	p.Name = "Acme Dental"
	p.Branding = notify.Branding{}
	p.BusinessHours = businesshours.Config{}
	p.TimeZone = "America/Chicago"
	require.NoError(t, store.Set(ctx, p))
	assert.True(t, mr.Exists("org:profile:org-1"))

	got, err := store.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Dental", got.Name)

	brand, err := store.Branding(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Dental", brand.CompanyName)

	hours, err := store.BusinessHours(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", hours.Timezone)
	assert.Nil(t, hours.Schedule)
}

func TestStore_Errors(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.Set(ctx, &Profile{}))

	mr.Set("org:profile:bad", "{not json")
	_, err := store.Get(ctx, "bad")
	assert.Error(t, err)

	mr.Close()
	_, err = store.Get(ctx, "org-1")
	assert.Error(t, err)
}

func newRouter(h *Handler, orgID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if orgID != "" {
				req = req.WithContext(tenancy.WithOrgID(req.Context(), orgID))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.RegisterRoutes(r)
	return r
}

func TestHandler_GetBusinessHours(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		name     string
		now      time.Time
		wantOpen bool
		wantNext string
	}{
		{"monday morning", time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), true, "2026-03-02T15:00:00Z"},
		{"saturday", time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC), false, "2026-03-09T09:00:00-04:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(store, nil).WithClock(func() time.Time { return tt.now })
			rec := httptest.NewRecorder()
			newRouter(h, "org-1").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/business-hours", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var body BusinessHoursStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantOpen, body.Open)
			assert.Equal(t, "America/New_York", body.Timezone)
			assert.Contains(t, body.Prompt, "Monday: 9:00 AM - 5:00 PM")
			require.NotNil(t, body.NextOpen)
			want, err := time.Parse(time.RFC3339, tt.wantNext)
			require.NoError(t, err)
			assert.True(t, want.Equal(*body.NextOpen), "next_open %s", body.NextOpen)
		})
	}
}

func TestHandler_UpdateBusinessHours(t *testing.T) {
	store, _ := newTestStore(t)
	router := newRouter(NewHandler(store, nil), "org-1")

	body := `{"timezone":"America/Los_Angeles","schedule":{"saturday":{"start":"10:00","end":"14:00"}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/business-hours", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	hours, err := store.BusinessHours(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", hours.Timezone)
	assert.Equal(t, &businesshours.TimeRange{Start: "10:00", End: "14:00"}, hours.Schedule.Saturday)
	assert.Nil(t, hours.Schedule.Monday)

	for _, bad := range []string{
		`{"timezone":"Mars/Olympus"}`,
		`{"schedule":{"monday":{"start":"9am","end":"17:00"}}}`,
		`{"schedule":{"monday":{"start":"17:00","end":"09:00"}}}`,
		`{`,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/business-hours", bytes.NewBufferString(bad)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestHandler_Profile(t *testing.T) {
	store, _ := newTestStore(t)
	router := newRouter(NewHandler(store, nil), "org-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/profile",
		bytes.NewBufferString(`{"name":"Acme","branding":{"company_name":"Acme Dental","primary_color":"#000"}}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var p Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Acme", p.Name)
	assert.Equal(t, "Acme Dental", p.Branding.CompanyName)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/profile", bytes.NewBufferString(`{"time_zone":"Nowhere/City"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_RequiresOrg(t *testing.T) {
	store, _ := newTestStore(t)
	router := newRouter(NewHandler(store, nil), "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/business-hours", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
