// Package api provides the HTTP surface for gauntlet.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/config"
	"github.com/gauntlethq/gauntlet/pkg/harness"
	"github.com/gauntlethq/gauntlet/pkg/middleware"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/registry"
	"github.com/gauntlethq/gauntlet/pkg/services"
	"github.com/gauntlethq/gauntlet/pkg/workflow"
)

// Dependencies carries the services the API server exposes
type Dependencies struct {
	AccountService auth.AccountService
	JWTService     *services.JWTService
	SecretVault    auth.SecretVault
	Types          plugins.Registry
	Instances      registry.InstanceRegistry
	Controller     workflow.Controller
	Harness        harness.Harness
}

// Server represents the HTTP API server
type Server struct {
	config         *config.Config
	router         *mux.Router
	server         *http.Server
	accountService auth.AccountService
	jwtService     *services.JWTService
	secretVault    auth.SecretVault
	types          plugins.Registry
	instances      registry.InstanceRegistry
	controller     workflow.Controller
	testStream     *TestStreamManager
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		config:         cfg,
		router:         mux.NewRouter(),
		accountService: deps.AccountService,
		jwtService:     deps.JWTService,
		secretVault:    deps.SecretVault,
		types:          deps.Types,
		instances:      deps.Instances,
		controller:     deps.Controller,
		testStream:     NewTestStreamManager(deps.Instances, deps.Harness),
	}

	s.setupRoutes()
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.accountService, s.jwtService)

	// API router with version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes (no authentication required)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)

	// Account creation is public
	accounts := api.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("", s.handleCreateAccount).Methods(http.MethodPost, http.MethodOptions)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	// Account management routes
	accountsMgmt := authenticated.PathPrefix("/accounts").Subrouter()
	accountsMgmt.HandleFunc("/me", s.handleGetCurrentAccount).Methods(http.MethodGet, http.MethodOptions)
	accountsMgmt.HandleFunc("/refresh-token", s.handleRefreshToken).Methods(http.MethodPost, http.MethodOptions)
	accountsMgmt.HandleFunc("/{accountId}/secrets", s.handleListSecrets).Methods(http.MethodGet, http.MethodOptions)
	accountsMgmt.HandleFunc("/{accountId}/secrets/{key}", s.handleSetSecret).Methods(http.MethodPost, http.MethodPut, http.MethodOptions)
	accountsMgmt.HandleFunc("/{accountId}/secrets/{key}", s.handleDeleteSecret).Methods(http.MethodDelete, http.MethodOptions)

	// Plugin type catalog routes
	types := authenticated.PathPrefix("/types").Subrouter()
	types.HandleFunc("/{family}", s.handleListTypes).Methods(http.MethodGet, http.MethodOptions)
	types.HandleFunc("/{family}/{type}", s.handleGetType).Methods(http.MethodGet, http.MethodOptions)

	// Configuration session routes
	sessions := authenticated.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("", s.handleStartSession).Methods(http.MethodPost, http.MethodOptions)
	sessions.HandleFunc("/{id}", s.handleGetSession).Methods(http.MethodGet, http.MethodOptions)
	sessions.HandleFunc("/{id}", s.handleCancelSession).Methods(http.MethodDelete, http.MethodOptions)
	sessions.HandleFunc("/{id}/types", s.handleSessionTypes).Methods(http.MethodGet, http.MethodOptions)
	sessions.HandleFunc("/{id}/select", s.handleSelectType).Methods(http.MethodPost, http.MethodOptions)
	sessions.HandleFunc("/{id}/instances", s.handleSessionAddInstance).Methods(http.MethodPost, http.MethodOptions)
	sessions.HandleFunc("/{id}/instances", s.handleSessionListInstances).Methods(http.MethodGet, http.MethodOptions)
	sessions.HandleFunc("/{id}/instances/{instanceID}", s.handleSessionRemoveInstance).Methods(http.MethodDelete, http.MethodOptions)
	sessions.HandleFunc("/{id}/instances/{instanceID}/test", s.handleSessionTestInstance).Methods(http.MethodPost, http.MethodOptions)
	sessions.HandleFunc("/{id}/advance", s.handleAdvanceSession).Methods(http.MethodPost, http.MethodOptions)

	// Direct instance routes outside of a session
	instances := authenticated.PathPrefix("/instances").Subrouter()
	instances.HandleFunc("/{family}", s.handleListInstances).Methods(http.MethodGet, http.MethodOptions)
	instances.HandleFunc("/{family}/{id}", s.handleGetInstance).Methods(http.MethodGet, http.MethodOptions)
	instances.HandleFunc("/{family}/{id}", s.handleUpdateInstance).Methods(http.MethodPut, http.MethodOptions)
	instances.HandleFunc("/{family}/{id}", s.handleDeleteInstance).Methods(http.MethodDelete, http.MethodOptions)

	// WebSocket endpoint for live test runs
	authenticated.HandleFunc("/ws/tests", s.handleTestStream).Methods(http.MethodGet)

	// CORS middleware for all routes
	s.router.Use(middleware.CORS)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleTestStream upgrades the connection and hands it to the test
// stream manager
func (s *Server) handleTestStream(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	s.testStream.HandleWebSocket(w, r, accountID)
}
