package api

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 3 * time.Second

func (s *HTTPServer) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	ok := true
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			results[c.Name] = err.Error()
			ok = false
			continue
		}
		results[c.Name] = "ok"
	}
	return results, ok
}

func (s *HTTPServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	results, ok := s.runChecks(r.Context())
	status, code := "ready", http.StatusOK
	if !ok {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": results})
}

// handleHealth reports configuration readiness alongside the dependency
// checks. It always answers 200 so load balancers keep routing while a
// dependency recovers.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	results, ok := s.runChecks(r.Context())
	status := "healthy"
	if !ok {
		status = "degraded"
	}
	storage := "missing"
	if s.storageOK {
		storage = "configured"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"service":        "selefli-backend",
		"auth_enabled":   s.cfg.Auth.Enabled,
		"jwt_secret_set": s.cfg.Auth.JWTSecret != "",
		"storage":        storage,
		"checks":         results,
	})
}
