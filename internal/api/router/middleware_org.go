package router

import (
	"net/http"
	"strings"

	"github.com/wolfman30/voice-agent-scheduling/internal/tenancy"
)

const orgHeader = "X-Org-Id"

// requireOrgID trusts the X-Org-Id header. Only wired in development when no
// org JWT secret is configured.
func requireOrgID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(orgHeader))
		if orgID == "" {
			http.Error(w, "missing X-Org-Id", http.StatusBadRequest)
			return
		}
		ctx := tenancy.WithOrgID(r.Context(), orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
