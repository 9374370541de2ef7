package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"selefli/internal/auth"
	"selefli/internal/metrics"
	"selefli/internal/models"
	"selefli/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

type userKey struct{}

func withUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// currentUser is the authenticated caller. Only valid behind authenticate.
func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey{}).(*models.User)
	return u
}

func actorID(r *http.Request) string {
	if u := currentUser(r); u != nil {
		return u.ID
	}
	return ""
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// accessLog tags the request with an id, puts a request-scoped logger into
// the context and logs the outcome.
func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		l := s.logger.With().Str("request_id", reqID).Logger()
		r = r.WithContext(l.WithContext(r.Context()))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		event := l.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = l.Error()
		}
		event.
			Str("method", r.Method).
			Str("route", routeTemplate(r)).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.ObserveHTTP(routeTemplate(r), r.Method, recorder.status, time.Since(start))
	})
}

// limitByClient applies the per-address token bucket.
func (s *HTTPServer) limitByClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit.RPS > 0 && !s.ipLimiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitByUser applies the shared per-user quota. Limiter failures let the
// request through.
func (s *HTTPServer) limitByUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, window := s.cfg.RateLimit.UserRequests, s.cfg.RateLimit.UserWindow
		if s.userLimiter == nil || limit <= 0 || window <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := s.userLimiter.Allow(r.Context(), "user:"+actorID(r), limit, window)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("user rate limiter unavailable")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer token to a provisioned user. With auth
// disabled the caller id is taken from X-User-ID, for local development.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var identity service.Identity
		if s.cfg.Auth.Enabled {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			claims, err := s.verifier.Verify(token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("token rejected")
				msg := auth.ErrInvalidToken.Error()
				if errors.Is(err, auth.ErrMissingToken) {
					msg = err.Error()
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			identity = claims.Identity()
		} else {
			identity.UserID = r.Header.Get("X-User-ID")
			if identity.UserID == "" {
				writeError(w, http.StatusUnauthorized, auth.ErrMissingToken.Error())
				return
			}
		}

		user, err := s.svc.Users.Provision(r.Context(), identity)
		if err != nil {
			var verr *service.ValidationError
			if errors.As(err, &verr) {
				writeError(w, http.StatusUnauthorized, verr.Message)
				return
			}
			zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", identity.UserID).Msg("user provisioning failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		l := zerolog.Ctx(r.Context()).With().Str("user_id", user.ID).Logger()
		ctx := l.WithContext(withUser(r.Context(), user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.written {
		return
	}
	r.status = status
	r.written = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}
