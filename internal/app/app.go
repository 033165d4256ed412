package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/paramita1949/C-Canvas-sub005/internal/config"
	"github.com/paramita1949/C-Canvas-sub005/internal/infrastructure"
	"github.com/paramita1949/C-Canvas-sub005/internal/license"
	custommw "github.com/paramita1949/C-Canvas-sub005/internal/middleware"
	"github.com/paramita1949/C-Canvas-sub005/internal/security"
	handlers "github.com/paramita1949/C-Canvas-sub005/internal/transport/http"
)

const (
	// Version is the application version reported to the license server.
	Version = "1.4.2"

	serviceName = "c-canvas-auth"
)

// Application is the composition root for the licensing engine and its local
// status server.
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Manager       *license.Manager
	Guard         *security.InstanceGuard
	OTelProviders *infrastructure.OTelProviders
	Logger        *slog.Logger
}

// NewApplication wires the full engine: configuration, logging, telemetry,
// hardware fingerprint, credential store, license client and manager, then the
// HTTP surface. configPath may be empty; environment variables still apply.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", config.AppName),
		slog.String("version", Version))

	paths, err := config.ResolvePaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	logger.Info("state paths resolved",
		slog.String("profile_dir", paths.ProfileDir),
		slog.String("machine_dir", paths.MachineDir))

	otelProviders, err := infrastructure.InitializeOTel(serviceName, Version, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		OTelProviders: otelProviders,
		Logger:        logger,
	}

	if err := app.initializeEngine(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeEngine builds the license manager and its collaborators.
func (a *Application) initializeEngine() error {
	fingerprint := security.NewFingerprintManager()

	key, err := security.DeriveStoreKey(fingerprint.Fingerprint(), a.Paths.CredentialFile)
	if err != nil {
		return fmt.Errorf("derive store key: %w", err)
	}

	clock := license.NewSystemClock()
	store := license.NewCredentialStore(a.Paths.CredentialFile, a.Paths.VersionCounterFile, key, clock)

	client := license.NewClient(
		config.LicenseServerBaseURL,
		Version,
		config.HeartbeatTimeout,
		config.InteractiveTimeout,
	)

	meter := a.OTelProviders.MeterProvider.Meter("license")
	metrics, err := license.NewAuthMetrics(meter)
	if err != nil {
		a.Logger.Warn("auth metrics unavailable", slog.String("error", err.Error()))
	}

	a.Manager = license.NewManager(license.ManagerConfig{
		Store:       store,
		Client:      client,
		Fingerprint: fingerprint,
		Clock:       clock,
		Trial: license.TrialConfig{
			MinDuration: config.TrialMinDuration,
			MaxDuration: config.TrialMaxDuration,
			HardClamp:   config.TrialHardClamp,
		},
		Metrics:               metrics,
		MaxOffline:            config.MaxOfflineDuration,
		HeartbeatInitialDelay: config.HeartbeatInitialDelay,
		HeartbeatInterval:     config.HeartbeatInterval,
	})

	a.Guard = security.NewInstanceGuard(a.Paths.InstanceLockFile)
	return nil
}

// setupRouter configures the loopback HTTP surface for the projection shell.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	authHandler := handlers.NewAuthHandler(a.Manager, a.Logger,
		a.Config.Server.LoginRPS, a.Config.Server.LoginBurst)
	r.Mount("/api/auth", authHandler.Routes())

	r.Get("/healthz", a.Manager.HealthHandler())
	r.Handle("/metrics", infrastructure.MetricsHandler())

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run acquires the single-instance lock, restores any persisted session and
// serves until interrupted. It blocks until shutdown completes.
func (a *Application) Run() error {
	if !a.Guard.TryAcquire() {
		return fmt.Errorf("another instance is already running (lock: %s)", a.Paths.InstanceLockFile)
	}
	defer a.Guard.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restoreCtx := infrastructure.EnsureTraceID(ctx)
	if a.Manager.RestoreFromDisk(restoreCtx) {
		a.Logger.InfoContext(restoreCtx, "session restored from disk",
			slog.String("status", a.Manager.StatusSummary()))
	} else {
		a.Logger.InfoContext(restoreCtx, "no restorable session",
			slog.String("message", a.Manager.LastMessage()))
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("status server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("server shutdown", slog.String("error", err.Error()))
		}
		a.Manager.Close()

		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
		return nil
	})

	go func() {
		if a.waitForReady(5 * time.Second) {
			a.Logger.Info("status server ready",
				slog.String("url", fmt.Sprintf("http://%s", a.Server.Addr)))
		}
	}()

	err := g.Wait()

	if closeErr := infrastructure.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", closeErr)
	}
	return err
}

// waitForReady polls the health endpoint until the server answers or the
// deadline passes. Used by the projection shell during startup handoff.
func (a *Application) waitForReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://%s/healthz", a.Server.Addr)
	client := &http.Client{Timeout: time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
