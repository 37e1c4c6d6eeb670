package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// AllowGroups only lets through requests whose {param} URL parameter is in
// ids. An empty list allows every group.
func AllowGroups(param string, ids []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[chi.URLParam(r, param)]; ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"group not allowed"}`))
		})
	}
}
