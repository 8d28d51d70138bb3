// Package api Louyass rental back-office API
//
//	@title			Louyass API
//	@version		1.0
//	@description	Back-office API for rental owners and tenants: houses, rooms, viewing appointments, lease contracts, payments, issues and messages.
//
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
//
// @host		localhost:8000
// @BasePath	/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @description				"Bearer " followed by the access token returned by /auth/login
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"louyass/config"
	"louyass/core"
	"louyass/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Services groups the business services behind the handlers
type Services struct {
	Users        *service.UserService
	Houses       *service.HouseService
	Rooms        *service.RoomService
	Media        *service.MediaService
	Search       *service.SearchService
	Appointments *service.AppointmentService
	Contracts    *service.ContractService
	Payments     *service.PaymentService
	Issues       *service.IssueService
	Messages     *service.MessageService
}

// Dependencies are the collaborators of the API server. Hub, Redis and Clock
// are optional.
type Dependencies struct {
	Services     Services
	Tokens       *TokenIssuer
	Hub          *Hub
	Redis        *core.RedisCache
	HealthChecks map[string]HealthCheck
	Clock        clockwork.Clock
}

// API holds the API server
type API struct {
	router         *mux.Router
	handler        http.Handler
	server         *http.Server
	serverMu       sync.Mutex
	stopped        bool
	config         *config.Config
	services       Services
	users          *userCache
	tokens         *TokenIssuer
	hub            *Hub
	health         map[string]HealthCheck
	validate       *validator.Validate
	apiLimiter     *RateLimiter
	loginLimiter   *RateLimiter
	trustedProxies []*net.IPNet
	clock          clockwork.Clock
	logger         *zap.SugaredLogger
}

// NewAPI creates the API server and its routes
func NewAPI(cfg *config.Config, deps Dependencies, logger *zap.SugaredLogger) (*API, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Tokens == nil || deps.Services.Users == nil {
		return nil, errors.New("token issuer and user service are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	users, err := newUserCache(deps.Services.Users, cfg.Auth.UserCacheSize, cfg.Auth.UserCacheTTL, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}

	a := &API{
		router:         mux.NewRouter(),
		config:         cfg,
		services:       deps.Services,
		users:          users,
		tokens:         deps.Tokens,
		hub:            deps.Hub,
		health:         deps.HealthChecks,
		validate:       newValidator(),
		apiLimiter:     NewRateLimiter(RateLimitTierAPI, apiTierConfig(cfg.API.RateLimit.RequestsPerSecond, cfg.API.RateLimit.Burst), deps.Redis, clock, logger),
		loginLimiter:   NewRateLimiter(RateLimitTierLogin, loginTierConfig(cfg.API.RateLimit.LoginPerMinute), deps.Redis, clock, logger),
		trustedProxies: parseTrustedProxies(cfg.API.TrustedProxies),
		clock:          clock,
		logger:         logger,
	}
	a.setupRoutes()
	a.handler = a.requestIDMiddleware(a.securityHeadersMiddleware(a.corsMiddleware(a.router)))
	return a, nil
}

// protect requires a valid token and, when roles are given, one of them
func (a *API) protect(h http.HandlerFunc, roles ...core.Role) http.Handler {
	var next http.Handler = h
	if len(roles) > 0 {
		next = RequireRole(roles...)(next)
	}
	return a.jwtAuthMiddleware(next)
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	r := a.router
	// mux only runs Use middleware on matched routes; request ids, CORS
	// preflights and security headers wrap the router in Handler instead
	r.Use(a.metricsMiddleware)
	r.Use(a.rateLimitMiddleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found", nil, nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil, nil)
	})

	owner := core.RoleOwner
	tenant := core.RoleTenant

	// auth
	r.HandleFunc("/auth/register", a.loginRateLimit(a.register)).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", a.loginRateLimit(a.login)).Methods(http.MethodPost)
	r.Handle("/auth/logout", a.protect(a.logout)).Methods(http.MethodPost)
	r.Handle("/auth/me", a.protect(a.me)).Methods(http.MethodGet)
	r.Handle("/auth/mfa/enroll", a.protect(a.enrollMFA)).Methods(http.MethodPost)
	r.Handle("/auth/mfa/verify", a.protect(a.verifyMFA)).Methods(http.MethodPost)
	r.Handle("/auth/mfa/disable", a.protect(a.disableMFA)).Methods(http.MethodPost)

	// users
	r.Handle("/users", a.protect(a.listUsers)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}", a.protect(a.getUser)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}", a.protect(a.updateUser)).Methods(http.MethodPut)
	r.Handle("/users/{id:[0-9]+}", a.protect(a.deleteUser)).Methods(http.MethodDelete)

	// houses
	r.HandleFunc("/maisons", a.listHouses).Methods(http.MethodGet)
	r.Handle("/maisons", a.protect(a.createHouse, owner)).Methods(http.MethodPost)
	r.HandleFunc("/maisons/{id:[0-9]+}", a.getHouse).Methods(http.MethodGet)
	r.Handle("/maisons/{id:[0-9]+}", a.protect(a.updateHouse, owner)).Methods(http.MethodPut)
	r.Handle("/maisons/{id:[0-9]+}", a.protect(a.deleteHouse, owner)).Methods(http.MethodDelete)

	// rooms
	r.HandleFunc("/chambres", a.listRooms).Methods(http.MethodGet)
	r.Handle("/chambres", a.protect(a.createRoom, owner)).Methods(http.MethodPost)
	r.HandleFunc("/chambres/{id:[0-9]+}", a.getRoom).Methods(http.MethodGet)
	r.Handle("/chambres/{id:[0-9]+}", a.protect(a.updateRoom, owner)).Methods(http.MethodPut)
	r.Handle("/chambres/{id:[0-9]+}", a.protect(a.deleteRoom, owner)).Methods(http.MethodDelete)
	r.HandleFunc("/chambres/{id:[0-9]+}/medias", a.listRoomMedia).Methods(http.MethodGet)
	r.Handle("/chambres/{id:[0-9]+}/medias/upload", a.protect(a.uploadMedia, owner)).Methods(http.MethodPost)

	// media
	r.Handle("/medias", a.protect(a.createMedia, owner)).Methods(http.MethodPost)
	r.HandleFunc("/medias/{id:[0-9]+}", a.getMedia).Methods(http.MethodGet)
	r.Handle("/medias/{id:[0-9]+}", a.protect(a.updateMedia, owner)).Methods(http.MethodPut)
	r.Handle("/medias/{id:[0-9]+}", a.protect(a.deleteMedia, owner)).Methods(http.MethodDelete)

	// appointments
	r.Handle("/rendez-vous", a.protect(a.createAppointment)).Methods(http.MethodPost)
	r.Handle("/rendez-vous", a.protect(a.listAppointments)).Methods(http.MethodGet)
	r.Handle("/rendez-vous/{id:[0-9]+}", a.protect(a.getAppointment)).Methods(http.MethodGet)
	r.Handle("/rendez-vous/{id:[0-9]+}", a.protect(a.updateAppointment)).Methods(http.MethodPut)
	r.Handle("/rendez-vous/{id:[0-9]+}", a.protect(a.deleteAppointment)).Methods(http.MethodDelete)

	// contracts
	r.Handle("/contrats", a.protect(a.createContract)).Methods(http.MethodPost)
	r.Handle("/contrats", a.protect(a.listContracts)).Methods(http.MethodGet)
	r.Handle("/contrats/{id:[0-9]+}", a.protect(a.getContract)).Methods(http.MethodGet)
	r.Handle("/contrats/{id:[0-9]+}", a.protect(a.updateContract)).Methods(http.MethodPut)
	r.Handle("/contrats/{id:[0-9]+}", a.protect(a.deleteContract)).Methods(http.MethodDelete)
	r.Handle("/locataire/contrats", a.protect(a.tenantContracts, tenant)).Methods(http.MethodGet)
	r.Handle("/locataire/contrats/{id:[0-9]+}/paiements", a.protect(a.tenantContractPayments, tenant)).Methods(http.MethodGet)

	// payments
	r.Handle("/paiements", a.protect(a.createPayment)).Methods(http.MethodPost)
	r.Handle("/paiements/me", a.protect(a.myPayments)).Methods(http.MethodGet)
	r.Handle("/paiements/{id:[0-9]+}", a.protect(a.getPayment)).Methods(http.MethodGet)
	r.Handle("/paiements/{id:[0-9]+}/payer", a.protect(a.payPayment)).Methods(http.MethodPut)
	r.Handle("/proprietaire/paiements", a.protect(a.ownerPayments, owner)).Methods(http.MethodGet)
	r.Handle("/proprietaire/paiements/pending-this-month", a.protect(a.ownerPendingPayments, owner)).Methods(http.MethodGet)

	// issues
	r.Handle("/problemes", a.protect(a.createIssue)).Methods(http.MethodPost)
	r.Handle("/problemes", a.protect(a.listIssues)).Methods(http.MethodGet)
	r.Handle("/problemes/{id:[0-9]+}", a.protect(a.getIssue)).Methods(http.MethodGet)
	r.Handle("/problemes/{id:[0-9]+}", a.protect(a.updateIssue)).Methods(http.MethodPut)
	r.Handle("/problemes/{id:[0-9]+}", a.protect(a.deleteIssue)).Methods(http.MethodDelete)

	// messages
	r.Handle("/messages", a.protect(a.sendMessage)).Methods(http.MethodPost)
	r.Handle("/messages/me", a.protect(a.myMessages)).Methods(http.MethodGet)
	r.Handle("/messages/conversation/{other_id:[0-9]+}", a.protect(a.conversation)).Methods(http.MethodGet)
	r.Handle("/messages/{id:[0-9]+}/read", a.protect(a.readMessage)).Methods(http.MethodPut)
	r.Handle("/messages/{id:[0-9]+}", a.protect(a.deleteMessage)).Methods(http.MethodDelete)

	// search
	r.HandleFunc("/recherche/maisons-et-chambres", a.search).Methods(http.MethodGet)

	// realtime
	r.Handle("/ws", a.protect(a.handleWebSocket)).Methods(http.MethodGet)

	r.HandleFunc("/health", a.healthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	if a.config.Media.Backend == "local" && a.config.Media.Dir != "" {
		prefix := strings.TrimSuffix(a.config.Media.BaseURL, "/") + "/"
		if strings.HasPrefix(prefix, "/") {
			r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, noDirListing(http.FileServer(http.Dir(a.config.Media.Dir)))))
		}
	}
}

// noDirListing hides directory indexes of the media file server
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "Not Found", nil, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler, used by tests and the server
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) newServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Start starts the API server
func (a *API) Start(addr string) error {
	srv, err := a.listen(addr)
	if err != nil {
		return err
	}
	return srv.ListenAndServe()
}

// StartTLS starts the API server with TLS
func (a *API) StartTLS(addr, certFile, keyFile string) error {
	srv, err := a.listen(addr)
	if err != nil {
		return err
	}
	return srv.ListenAndServeTLS(certFile, keyFile)
}

func (a *API) listen(addr string) (*http.Server, error) {
	a.serverMu.Lock()
	defer a.serverMu.Unlock()
	if a.stopped {
		return nil, http.ErrServerClosed
	}
	a.server = a.newServer(addr)
	return a.server, nil
}

// Stop stops the API server and its background goroutines. A server started
// after Stop returns http.ErrServerClosed immediately.
func (a *API) Stop(ctx context.Context) error {
	a.apiLimiter.Close()
	a.loginLimiter.Close()
	a.serverMu.Lock()
	a.stopped = true
	srv := a.server
	a.serverMu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
