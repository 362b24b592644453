// Package api wires the HTTP surface: routing, auth and rate-limit
// middleware, and the request handlers.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/api/recovery"
	"github.com/vitalsd/vitalsd/internal/auth"
	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/ingest"
	"github.com/vitalsd/vitalsd/internal/logger"
	"github.com/vitalsd/vitalsd/internal/query"
)

// Deps carries everything the router needs. Fields are required unless noted.
type Deps struct {
	Auth            *auth.Authenticator
	Coordinator     *ingest.Coordinator
	Query           *query.Service
	Cache           *cache.Cache
	Levels          *logger.LevelHandle
	IsReady         func() bool
	MaxPayloadBytes int64
	Log             zerolog.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	router.Use(recovery.Middleware)
	am := &authMiddleware{auth: d.Auth, log: d.Log}
	router.Use(am.wrap)

	healthHandler := NewHealthHandler(d.IsReady)
	ingestHandler := NewIngestHandler(d.Coordinator, d.MaxPayloadBytes, d.Log)
	queryHandler := NewQueryHandler(d.Query, d.Log)
	statusHandler := NewStatusHandler(d.Cache, d.Coordinator.Queue())
	adminHandler := NewAdminHandler(d.Levels, d.Log)

	// Open endpoints: no auth, no rate accounting.
	router.HandleFunc("/health", healthHandler.CheckHealth).Methods(http.MethodGet)
	router.HandleFunc("/health/live", healthHandler.CheckLive).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthHandler.CheckReady).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/status", statusHandler.Status).Methods(http.MethodGet)

	// Ingest endpoint
	router.HandleFunc("/v1/ingest",
		requireScope(auth.ScopeWriteHealth, ingestHandler.Ingest)).Methods(http.MethodPost)

	// Read endpoints
	router.HandleFunc("/api/v1/query/heart-rate",
		requireScope(auth.ScopeReadHealth, queryHandler.HeartRateSeries)).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/query/summary",
		requireScope(auth.ScopeReadHealth, queryHandler.Summary)).Methods(http.MethodGet)

	// Admin endpoints
	router.HandleFunc("/api/v1/admin/logging/level",
		requireScope(auth.ScopeAdmin, adminHandler.SetLogLevel)).Methods(http.MethodPut)

	return router
}
