// cartd hosts server-side cart sessions for storefront islands and agents.
// Designed for Cloud Run deployment; sessions live in memory and reattach to
// their store cart after a restart via the Cart-Session header.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-cart/internal/backend"
	"storefront-cart/internal/backend/memory"
	"storefront-cart/internal/backend/postgres"
	"storefront-cart/internal/cart"
	"storefront-cart/internal/config"
	"storefront-cart/internal/handler"
	"storefront-cart/internal/middleware"
	"storefront-cart/internal/session"
	"storefront-cart/internal/transport"
	"storefront-cart/internal/woocommerce"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// store is the authoritative cart store plus the catalog it reads inventory from.
type store struct {
	backend backend.Backend
	catalog backend.Catalog
	closer  io.Closer
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("backend", cfg.Backend),
		slog.String("environment", cfg.Environment),
		slog.Duration("mutation_timeout", cfg.MutationTimeout),
		slog.Duration("session_idle_ttl", cfg.SessionIdleTTL),
		slog.Int("max_sessions", cfg.MaxSessions),
		slog.String("min_storefront_version", cfg.MinStorefrontVersion),
	)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	if st.closer != nil {
		defer st.closer.Close()
	}

	// One cart session per shopper; notifications are logged and kept for
	// the next response of that session.
	reg := session.NewRegistry(session.RegistryConfig{
		New: func(cartID string, notifier cart.Notifier) *cart.Session {
			sessionLogger := logger.With(slog.String("cart_id", cartID))
			logged := cart.LogNotifier{Logger: sessionLogger}
			return cart.NewSession(cart.Config{
				CartID:  cartID,
				Backend: st.backend,
				Catalog: st.catalog,
				Notifier: cart.NotifierFunc(func(ctx context.Context, n cart.Notification) {
					logged.Notify(ctx, n)
					notifier.Notify(ctx, n)
				}),
				Timeout: cfg.MutationTimeout,
				Logger:  sessionLogger,
			})
		},
		IdleTTL:     cfg.SessionIdleTTL,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	})
	defer reg.Close()
	go reg.Run(ctx)

	h := handler.New(reg, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request ID → logging → session → handler
	// Recovery must be outermost to catch panics from logging middleware
	// Session resolves the Cart-Session header on all requests (except exempt paths)
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		session.Middleware(reg, cfg.MinStorefrontVersion, logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped", slog.Int("open_sessions", reg.Len()))
	return nil
}

// openStore creates the authoritative store named by the configuration.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		s := memory.New(memory.WithProducts(cfg.Products...))
		logger.Warn("using in-memory cart store; carts are lost on restart",
			slog.Int("products", len(cfg.Products)))
		return &store{backend: s, catalog: s}, nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStore(db)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		for _, p := range cfg.Products {
			if err := s.PutProduct(ctx, p); err != nil {
				db.Close()
				return nil, fmt.Errorf("seeding product %s: %w", p.ID, err)
			}
		}
		return &store{backend: s, catalog: s, closer: db}, nil

	case config.BackendWooCommerce:
		fingerprint, err := transport.ParseFingerprint(cfg.Store.Fingerprint)
		if err != nil {
			return nil, err
		}
		c, err := woocommerce.New(woocommerce.Config{
			StoreURL:       cfg.StoreURL(),
			APIKey:         cfg.Store.APIKey,
			APISecret:      cfg.Store.APISecret,
			Currency:       cfg.Store.Currency,
			BatchStrategy:  woocommerce.BatchStrategy(cfg.Store.BatchStrategy),
			TLSFingerprint: fingerprint,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return &store{backend: c, catalog: c}, nil

	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
