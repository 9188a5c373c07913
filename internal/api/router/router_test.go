package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	httpmiddleware "github.com/wolfman30/voice-agent-scheduling/internal/http/middleware"
	"github.com/wolfman30/voice-agent-scheduling/internal/organizations"
	"github.com/wolfman30/voice-agent-scheduling/internal/reminders"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

type fakeRunner struct{ runs int }

func (f *fakeRunner) Run(context.Context) (reminders.RunResult, error) {
	f.runs++
	return reminders.RunResult{Processed: 1, Errors: []string{}}, nil
}

func newTestRouter(t *testing.T, mutate func(*Config)) (http.Handler, *fakeRunner) {
	t.Helper()

	logger := logging.Default()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	runner := &fakeRunner{}
	cfg := &Config{
		Logger:          logger,
		Appointments:    appointments.NewHandler(appointments.NewService(nil, logger), logger),
		Reminders:       reminders.NewHandler(runner, nil, logger),
		Organizations:   organizations.NewHandler(organizations.NewStore(redisClient), logger),
		OrgJWTSecret:    "org-secret",
		CronSecret:      "cron-secret",
		PublicRateLimit: 100,
		PublicRateBurst: 100,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg), runner
}

func orgToken(t *testing.T, orgID string) string {
	t.Helper()
	claims := httpmiddleware.OrgClaims{
		OrgID:            orgID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("org-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterReadyReportsDependencies(t *testing.T) {
	router, _ := newTestRouter(t, func(c *Config) {
		c.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRouterMetrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterAPIRequiresOrgToken(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/business-hours", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/business-hours", nil)
	req.Header.Set("Authorization", "Bearer "+orgToken(t, "org-1"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterDevOrgHeader(t *testing.T) {
	router, _ := newTestRouter(t, func(c *Config) {
		c.OrgJWTSecret = ""
		c.AllowOrgHeader = true
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/business-hours", nil)
	req.Header.Set(orgHeader, "org-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with dev header, got %d", rr.Code)
	}
}

func TestRouterCronRequiresSecret(t *testing.T) {
	router, runner := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/cron/reminders", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/cron/reminders", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || runner.runs != 1 {
		t.Fatalf("expected one run and 200, got %d runs=%d", rr.Code, runner.runs)
	}
}

func TestRouterPublicTokenRoutes(t *testing.T) {
	router, _ := newTestRouter(t, func(c *Config) {
		c.CORSAllowedOrigins = []string{"https://pages.example.com"}
	})

	req := httptest.NewRequest(http.MethodGet, "/public/appointments/not-a-token", nil)
	req.Header.Set("Origin", "https://pages.example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for bad token, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://pages.example.com" {
		t.Fatalf("expected CORS header on public route")
	}

	pre := httptest.NewRequest(http.MethodOptions, "/public/appointments/not-a-token", nil)
	pre.Header.Set("Origin", "https://pages.example.com")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, pre)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
}
