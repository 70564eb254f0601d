// Storefront checkout server - cart, payment and order placement on top of a
// Medusa-style store API. Stateless apart from in-process read caches.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-checkout/internal/cache"
	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/handler"
	"storefront-checkout/internal/medusa"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/region"
	"storefront-checkout/internal/session"
	"storefront-checkout/internal/transport"
)

const backendTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("environment", cfg.Environment),
		slog.String("backend_url", cfg.Store.BackendURL),
		slog.String("backend_version", cfg.Store.BackendVersion),
		slog.String("default_locale", cfg.Store.DefaultLocale),
		slog.Int("payment_adapters", len(cfg.Store.PaymentAdapters)),
	)

	rt, err := transport.New(cfg.Store.BackendTransport, backendTimeout)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	store, err := medusa.New(medusa.Config{
		BaseURL:        cfg.Store.BackendURL,
		PublishableKey: cfg.PublishableKey(),
		APIVersion:     cfg.Store.BackendVersion,
		Transport:      rt,
		Timeout:        backendTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating store client: %w", err)
	}

	regions := region.NewResolver(
		store,
		cache.NewRegionCache(cfg.Store.Cache.RegionSize, cfg.Store.Cache.RegionEntryTTL()),
		region.Config{
			DefaultLocale: cfg.Store.DefaultLocale,
			Overrides:     cfg.Store.RegionOverrides,
		},
		logger,
	)

	svc := checkout.NewService(
		store,
		regions,
		cache.NewCoordinator(cfg.Store.Cache.Size, cfg.Store.Cache.EntryTTL()),
		checkout.Config{
			Adapters:         cfg.Store.PaymentAdapters,
			FallbackProvider: cfg.Store.FallbackProvider,
		},
		logger,
	)

	cookies := session.CookieOptions{
		Domain: cfg.Store.Cookie.Domain,
		Secure: cfg.Store.Cookie.Secure,
		MaxAge: cfg.Store.Cookie.MaxAgeDuration(),
	}

	h := handler.New(svc, regions, handler.Config{
		AdminToken: cfg.Store.AdminToken,
		Cookies:    cookies,
	}, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Session(cookies),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
