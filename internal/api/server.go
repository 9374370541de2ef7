package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"selefli/internal/auth"
	"selefli/internal/config"
	"selefli/internal/domain"
	"selefli/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Services groups the business services the API dispatches to.
type Services struct {
	Users         *service.UserService
	Items         *service.ItemService
	Bookings      *service.BookingService
	Ratings       *service.RatingService
	Notifications *service.NotificationService
	Devices       *service.DeviceService
	// Accounts serves signup and login; nil leaves both routes unregistered.
	Accounts      *service.AccountService
}

// ReadinessCheck is one dependency checked by /readyz and /api/health/.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPServer exposes the REST API.
type HTTPServer struct {
	cfg         config.APIConfig
	svc         Services
	verifier    *auth.Verifier
	ipLimiter   *rateLimiter
	userLimiter domain.RateLimiter
	checks      []ReadinessCheck
	storageOK   bool
	router      *mux.Router
	server      *http.Server
	logger      *zerolog.Logger
}

type Option func(*HTTPServer)

// WithUserRateLimiter enables the per-user request quota.
func WithUserRateLimiter(l domain.RateLimiter) Option {
	return func(s *HTTPServer) { s.userLimiter = l }
}

func WithReadinessCheck(name string, fn func(ctx context.Context) error) Option {
	return func(s *HTTPServer) { s.checks = append(s.checks, ReadinessCheck{Name: name, Check: fn}) }
}

// WithStorageConfigured reports the object store state on /api/health/.
func WithStorageConfigured(ok bool) Option {
	return func(s *HTTPServer) { s.storageOK = ok }
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger, opts ...Option) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "api").Logger()

	srv := &HTTPServer{
		cfg:       cfg,
		svc:       svc,
		verifier:  auth.NewVerifier(cfg.Auth),
		ipLimiter: newRateLimiter(&cfg),
		logger:    &l,
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.router = srv.routes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the root handler. Trailing slashes are optional on every
// route, so they are dropped before routing.
func (s *HTTPServer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
			r.URL.Path = strings.TrimRight(p, "/")
			if r.URL.RawPath != "" {
				r.URL.RawPath = strings.TrimRight(r.URL.RawPath, "/")
			}
		}
		s.router.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
