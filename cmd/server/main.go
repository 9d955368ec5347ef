package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"huddle/internal/changefeed"
	"huddle/internal/config"
	"huddle/internal/httpserver"
	"huddle/internal/objectstore"
	"huddle/internal/security"
	"huddle/internal/store/postgres"
	"huddle/internal/store/sqlite"
	"huddle/internal/store/sqlstore"
	"huddle/internal/ws"
)

// @title           Huddle API
// @version         1.0
// @description     Backend API for Huddle, a group planning app: groups, proposals and votes, events and chat.
// @termsOfService  http://swagger.io/terms/

// @contact.name    API Support
// @contact.url     http://www.swagger.io/support
// @contact.email   support@swagger.io

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database
	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		log.Fatalf("failed to initialize encryptor: %v", err)
	}

	objects, err := objectstore.New(cfg.StorageDir, cfg.PublicBaseURL, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatalf("failed to initialize object store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Change feed. With Redis configured, changes fan out across instances.
	broker := changefeed.NewBroker(0, nil)
	defer broker.Close()
	var publisher changefeed.Publisher = broker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		relay := changefeed.NewRedisRelay(client, changefeed.DefaultChannel, broker, nil)
		publisher = relay
		g.Go(func() error { return relay.Run(ctx) })
		log.Printf("Change feed relayed through redis %s", opts.Addr)
	}

	hub := ws.NewHub()

	// Build HTTP router
	router := httpserver.NewRouter(cfg, db, hub, broker, publisher, objects, tokenSvc, passwordHasher, encryptor)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.Printf("Starting Huddle server on %s (%s)\n", cfg.HTTPAddr(), cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

func openDatabase(cfg *config.Config) (*sqlstore.DB, error) {
	var (
		raw *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		if raw, err = postgres.Open(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		if err := postgres.Migrate(raw); err != nil {
			raw.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return postgres.New(raw), nil
	default:
		if raw, err = sqlite.Open(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(raw); err != nil {
			raw.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return sqlite.New(raw), nil
	}
}
