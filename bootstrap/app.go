package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"louyass/api"
	"louyass/config"
	"louyass/core"
	"louyass/notify"
	"louyass/service"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// App represents the Louyass server with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
	Clock  clockwork.Clock

	Storage  *StorageComponents
	Redis    *core.RedisCache
	Services api.Services

	Tokens      *api.TokenIssuer
	memoryStore *api.MemoryTokenStore
	Dispatcher  *notify.Dispatcher
	Hub         *api.Hub
	APIServer   *api.API

	// Lifecycle
	serviceWg  *sync.WaitGroup
	shutdownCh chan struct{}
	cancel     context.CancelFunc
	started    bool
	stopOnce   sync.Once
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	sugar.Info("Louyass API starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	return NewAppWithConfig(ctx, cfg, logger)
}

// NewAppWithConfig wires the application around an already loaded config.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sugar := logger.Sugar()
	ctx, cancel := context.WithCancel(ctx)
	app := &App{
		Config:     cfg,
		Logger:     logger,
		Sugar:      sugar,
		Clock:      clockwork.NewRealClock(),
		serviceWg:  &sync.WaitGroup{},
		shutdownCh: make(chan struct{}),
		cancel:     cancel,
	}

	dirs := DataDirectoriesFromConfig(cfg)
	if err := EnsureDataDirectories(dirs, sugar); err != nil {
		cancel()
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	sqlite, err := InitSQLite(dirs, sugar)
	if err != nil {
		cancel()
		return nil, err
	}

	components, err := InitStorages(cfg, sqlite, sugar)
	if err != nil {
		_ = sqlite.Close()
		cancel()
		return nil, err
	}
	app.Storage = components

	redis, err := InitRedis(ctx, cfg, sugar)
	if err != nil {
		_ = sqlite.Close()
		cancel()
		return nil, err
	}
	app.Redis = redis

	app.initTokens()
	app.initNotifications(ctx)
	app.initServices()

	if err := app.initAPI(); err != nil {
		app.Shutdown()
		return nil, err
	}

	sqlite.StartMetricsCollection(ctx, 30*time.Second)
	return app, nil
}

// initTokens selects where revoked token ids live
func (a *App) initTokens() {
	var store api.TokenStore
	if a.Redis != nil {
		store = api.NewRedisTokenStore(a.Redis, a.Clock)
		a.Sugar.Info("Token revocations shared through Redis")
	} else {
		a.memoryStore = api.NewMemoryTokenStore(a.Clock)
		store = a.memoryStore
	}
	a.Tokens = api.NewTokenIssuer(a.Config.Auth.JWTSecret, a.Config.Auth.JWTExpiry, store, a.Clock)
}

// initNotifications starts the mail dispatcher and the websocket hub. Both
// receive every domain event.
func (a *App) initNotifications(ctx context.Context) {
	var mailer notify.Mailer = notify.NoopMailer{Logger: a.Sugar}
	if smtp := a.Config.SMTPSettings(); smtp.Configured() {
		mailer = notify.NewSMTPMailer(smtp, a.Sugar)
		a.Sugar.Infow("SMTP notifications enabled", "host", smtp.Host, "port", smtp.Port)
	} else {
		a.Sugar.Warn("SMTP not configured, e-mail notifications are dropped")
	}

	a.Dispatcher = notify.NewDispatcher(mailer, a.Config.Notifications.Workers, a.Config.Notifications.QueueSize, a.Sugar)
	a.Hub = api.NewHub(ctx, a.Config.API.AllowedOrigins, a.Sugar)
}

func (a *App) initServices() {
	s := a.Storage
	publisher := notify.Fanout{notify.NewMailNotifier(a.Dispatcher, a.Sugar), a.Hub}
	lockout := service.LockoutPolicy{Threshold: a.Config.Auth.LockoutThreshold, Duration: a.Config.Auth.LockoutDuration}

	a.Services = api.Services{
		Users:        service.NewUserService(s.Users, lockout, a.Config.Auth.MFAIssuer, a.Clock, a.Sugar),
		Houses:       service.NewHouseService(s.Houses, a.Clock, a.Sugar),
		Rooms:        service.NewRoomService(s.Rooms, s.Houses, s.Contracts, a.Clock, a.Sugar),
		Media:        service.NewMediaService(s.Media, s.Rooms, s.Blobs, a.Config.Media.MaxSize, a.Clock, a.Sugar),
		Search:       service.NewSearchService(s.Search),
		Appointments: service.NewAppointmentService(s.Appointments, s.Rooms, s.Users, publisher, a.Clock, a.Sugar),
		Contracts:    service.NewContractService(s.Contracts, s.Appointments, s.Rooms, s.Users, s.Payments, publisher, a.Clock, a.Sugar),
		Payments:     service.NewPaymentService(s.Payments, s.Contracts, s.Users, publisher, a.Clock, a.Sugar),
		Issues:       service.NewIssueService(s.Issues, s.Contracts, a.Clock, a.Sugar),
		Messages:     service.NewMessageService(s.Messages, s.Users, publisher, a.Clock, a.Sugar),
	}
}

func (a *App) initAPI() error {
	checks := map[string]api.HealthCheck{
		"database": a.Storage.SQLite.HealthCheck,
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Ping
	}

	server, err := api.NewAPI(a.Config, api.Dependencies{
		Services:     a.Services,
		Tokens:       a.Tokens,
		Hub:          a.Hub,
		Redis:        a.Redis,
		HealthChecks: checks,
		Clock:        a.Clock,
	}, a.Sugar)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	a.APIServer = server
	return nil
}

// Start starts the background workers and the HTTP listener.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return errors.New("app already started")
	}
	a.started = true
	a.Dispatcher.Start()

	a.goService("websocket hub", a.Hub.Start)

	if a.memoryStore != nil {
		a.goService("token cleanup", func() {
			a.memoryStore.RunCleanup(core.JWTCleanupInterval, a.shutdownCh, a.Sugar)
		})
	}

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		addr := fmt.Sprintf(":%d", a.Config.API.Port)
		a.Sugar.Infow("API server listening", "addr", addr, "tls", a.Config.API.TLS)

		var err error
		if a.Config.API.TLS {
			err = a.APIServer.StartTLS(addr, a.Config.API.CertFile, a.Config.API.KeyFile)
		} else {
			err = a.APIServer.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("API server error", "error", err)
		}
	}()

	return nil
}

// goService runs fn in a tracked goroutine with panic recovery
func (a *App) goService(name string, fn func()) {
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.Sugar.Errorw(fmt.Sprintf("%s panicked", name), "panic", r)
			}
		}()
		fn()
	}()
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components. It is safe to call more
// than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")
	timeout := a.Config.API.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	// Phase 1 - stop accepting requests
	a.Sugar.Info("Phase 1: Stopping API server...")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
		cancel()
	}

	// Phase 2 - close websocket clients and background loops
	a.Sugar.Info("Phase 2: Stopping websocket hub and background workers...")
	if a.Hub != nil && a.started {
		a.Hub.Stop()
	}
	close(a.shutdownCh)
	a.cancel()

	// Phase 3 - flush queued e-mails
	a.Sugar.Info("Phase 3: Draining mail queue...")
	if a.Dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.Dispatcher.Stop(ctx); err != nil {
			a.Sugar.Warnw("Mail queue not fully drained", "pending", a.Dispatcher.Pending(), "error", err)
		}
		cancel()
	}

	// Phase 4 - wait for service goroutines
	a.Sugar.Info("Phase 4: Waiting for service goroutines to complete...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Sugar.Info("All service goroutines stopped successfully")
	case <-time.After(timeout):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	// Phase 5 - close connections
	a.Sugar.Info("Phase 5: Closing connections...")
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Sugar.Errorw("Failed to close Redis connection", "error", err)
		}
	}
	if a.Storage != nil && a.Storage.SQLite != nil {
		if err := a.Storage.SQLite.Close(); err != nil {
			a.Sugar.Errorw("Failed to close SQLite", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
