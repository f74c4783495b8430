// Command server bootstraps the NerveMind execution engine behind the
// minimal admin HTTP surface calls for, go (flag parsing, config.Load, graceful shutdown with a
// bounded grace window) generalized to this module's own component set:
// storage, registry + built-in executors, the execution engine, the
// trigger dispatcher, step-debug websocket push, and the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tolgayilmaz86/nervemind/internal/adminapi"
	"github.com/tolgayilmaz86/nervemind/internal/config"
	"github.com/tolgayilmaz86/nervemind/internal/crypto"
	"github.com/tolgayilmaz86/nervemind/internal/domain"
	"github.com/tolgayilmaz86/nervemind/internal/exec"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
	"github.com/tolgayilmaz86/nervemind/internal/registry/builtin"
	"github.com/tolgayilmaz86/nervemind/internal/stepdebug"
	"github.com/tolgayilmaz86/nervemind/internal/storage/memstore"
	"github.com/tolgayilmaz86/nervemind/internal/storage/sqlstore"
	"github.com/tolgayilmaz86/nervemind/internal/trigger"
)

// appStore is the union of every store capability cmd/server wires up:
// adminapi's CRUD/listing surface plus the engine's narrower per-concern
// domain store interfaces. Both memstore.Store and sqlstore.Store satisfy
// it; adminapi.Store alone is missing SaveExecution/GetCredential, which
// the engine needs, so main wires the concrete store through this wider
// view instead of narrowing to adminapi.Store up front.
type appStore interface {
	adminapi.Store
	domain.WorkflowStore
	domain.ExecutionStore
	domain.CredentialStore
	domain.VariableStore
}

func main() {
	var (
		port = flag.String("port", "", "Server port (overrides config)")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	setupLogger(cfg.LogLevel)
	log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageDriver).Msg("starting nervemind execution engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adminStore, closeStore := openStore(ctx, cfg)
	if closeStore != nil {
		defer closeStore()
	}

	reg := registry.New()
	for _, e := range builtin.All() {
		if err := reg.RegisterBuiltin(e); err != nil {
			log.Fatal().Err(err).Msg("register built-in executor")
		}
	}
	log.Info().Int("nodeTypes", len(reg.Snapshot().All())).Msg("registry populated")

	bus := logging.NewBus()
	bus.Subscribe(logging.NewConsoleObserver(log.Logger))
	bus.Subscribe(logging.NewMetricsObserver())
	bus.Subscribe(logging.NewTraceObserver())

	engineCfg := exec.DefaultConfig()
	engineCfg.MaxConcurrentNodes = cfg.WorkerPoolSize
	engineCfg.DefaultNodeTimeout = cfg.DefaultNodeTimeout
	engineCfg.RetryBudget = cfg.RetryBudget
	engine := exec.New(reg, bus, engineCfg, adminStore, adminStore, adminStore, adminStore)

	dispatcher, err := trigger.New(engine, adminStore, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("create trigger dispatcher")
	}
	dispatcher.Start(ctx)

	hub := stepdebug.NewHub(nil)
	go hub.Run()
	controller := stepdebug.NewController(engine, bus, hub)
	var stepAuth stepdebug.Authenticator
	var adminAuth adminapi.Authenticator
	if cfg.JWTSecret != "" {
		jwtAuth := adminapi.NewJWTAuth(cfg.JWTSecret)
		adminAuth = jwtAuth
		stepAuth  = jwtAuthAdapter{jwtAuth}
		log.Info().Msg("admin surface requires a bearer token")
	} else {
		log.Warn().Msg("JWT_SECRET unset: admin surface and step-debug socket are unauthenticated (development only)")
	}
	stepHandler := stepdebug.NewHandler(hub, controller, stepAuth, nil)

	adminSrv := adminapi.NewServer(adminStore, engine, reg, dispatcher, adminAuth)

	mux := http.NewServeMux()
	mux.Handle("/", adminSrv)
	mux.Handle("/ws/stepdebug", stepHandler)
	mux.Handle("/webhooks/", dispatcher)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// shutdown sequence: (1) the cancel flag above has already
	// fired via ctx.Done, so dispatcher.run and in-flight retry/rate-limit
	// waits observe it on their next check; (2) broadcast LifecycleShutdown
	// and stop the trigger dispatcher; (3) give the HTTP server up to the
	// grace window to drain, exiting with status 1 if it does not. There is
	// no separate force-cancel or logger-flush step.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	reg.Broadcast(registry.LifecycleShutdown)
	dispatcher.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server exited gracefully")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

// openStore constructs the configured domain store implementation. For
// "postgres" it also runs InitSchema and returns a closer; for "memory"
// (the default) it returns a no-op closer since memstore holds no external
// resources.
func openStore(ctx context.Context, cfg *config.Config) (appStore, func()) {
	switch cfg.StorageDriver {
	case "postgres":
		if cfg.DatabaseDSN == "" {
			log.Fatal().Msg("STORAGE_DRIVER=postgres requires DATABASE_DSN")
		}
		enc := crypto.NewEncryptor(cfg.EncryptionPassphrase, cfg.EncryptionSalt)
		store := sqlstore.New(cfg.DatabaseDSN, enc)
		if err := store.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("connect to database")
		}
		if err := store.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("initialize database schema")
		}
		log.Info().Msg("using sqlstore (postgres)")
		return store, func() { _ = store.Close() }
	default:
		log.Info().Msg("using memstore (in-memory, non-durable)")
		return memstore.New(), nil
	}
}

// jwtAuthAdapter satisfies stepdebug.Authenticator with an
// *adminapi.JWTAuth, sharing one token verifier across both HTTP surfaces
// without internal/stepdebug importing golang-jwt itself (see the
// Authenticator doc comment in internal/stepdebug/handler.go).
type jwtAuthAdapter struct {
	auth *adminapi.JWTAuth
}

func (a jwtAuthAdapter) Authenticate(r *http.Request) (string, error) {
	return a.auth.Authenticate(r)
}
