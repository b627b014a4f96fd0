package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tve-auth/internal/auth"
	"tve-auth/internal/bus"
	"tve-auth/internal/entitlement"
	"tve-auth/internal/platform/config"
	"tve-auth/internal/platform/logger"
	"tve-auth/internal/platform/metrics"
	"tve-auth/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	rateLimitWindow   = time.Minute
)

func main() {
	_ = config.Load()

	settings := config.FromEnv()
	log := logger.New(settings.LogLevel, settings.LogFormat)

	if err := settings.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, s config.Settings, log *slog.Logger) error {
	met := metrics.New()
	events := bus.NewMemoryBus(bus.WithMetrics(met))

	catalog, err := entitlement.OpenCatalogStore(s.CatalogPath, log)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	sessions := entitlement.NewSessionRepository()
	issuer, err := token.NewIssuer([]byte(s.TokenSigningKey), s.TokenTTL)
	if err != nil {
		return err
	}

	engineBase := s.PublicBaseURL + "/engine"
	if len(s.EngineEndpoints) > 0 {
		engineBase = s.EngineEndpoints[0]
	}
	factory := entitlement.NewFactory(entitlement.Config{
		Catalog:    catalog,
		Sessions:   sessions,
		Tokens:     issuer,
		BaseURL:    engineBase,
		AuthzRate:  s.AuthzRate,
		AuthzBurst: s.AuthzBurst,
		Log:        log,
	})

	o, err := auth.Shared(auth.Config{
		RequestorID:       s.RequestorID,
		SignedRequestorID: s.SignedRequestorID,
		Endpoints:         s.EngineEndpoints,
	}, events, factory,
		auth.WithLogger(log),
		auth.WithMetrics(met),
		auth.WithRedirectTimeout(s.LogoutRedirectTimeout),
	)
	if err != nil {
		return err
	}
	defer o.Close()

	login, err := auth.NewLoginWatcher(s.LoginCompletionURL, o, log)
	if err != nil {
		return err
	}
	h := auth.NewHandler(o, login, events, log)
	pages := entitlement.NewPages(sessions, issuer, s.LoginCompletionURL, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler(func() {
		met.SetAuthenticatedSessions(sessions.AuthenticatedCount())
	}))
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.APIRateLimit))
		h.Mount(r)
	})
	r.Mount("/engine", pages.Routes())

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}
	srv.RegisterOnShutdown(h.CloseStreams)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return catalog.Watch(gctx, entitlement.DefaultDebounce)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("server starting",
		"port", s.Port,
		"requestor_id", s.RequestorID,
		"engine_base", engineBase,
		"catalog", s.CatalogPath,
		"log_level", s.LogLevel,
	)

	return g.Wait()
}

// rateLimit limits each client IP to limit requests per minute.
func rateLimit(limit int) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		rateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateLimitWindow.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}
