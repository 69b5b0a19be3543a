// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mentio/internal/config"
	"github.com/tomtom215/mentio/internal/middleware"
)

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a new router for the given handler.
func NewRouter(handler *Handler, cfg *config.Config) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddlewareFromConfig(cfg),
	}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
// This allows our existing middleware to work with Chi's r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	// Applied to ALL routes in order
	r.Use(chiMiddleware(middleware.RequestID)) // X-Request-ID header plus logging context
	r.Use(chimiddleware.RealIP)                // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)             // Recover from panics
	r.Use(router.chiMiddleware.CORS())         // CORS must be global to handle OPTIONS preflight

	// Router-level errors use the same JSON envelope as the handlers.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).MethodNotAllowed("Method not allowed")
	})

	// ========================
	// Health Endpoints
	// ========================
	// Permissive rate limiting so monitoring tools can poll freely
	r.Route("/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())

		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// ========================
	// OAuth Endpoints
	// ========================
	// Strict rate limiting; a handshake happens once per deployment
	r.Route("/auth", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAuth())
		r.Use(APISecurityHeaders())

		r.Get("/login", router.handler.Login)
		r.Get("/callback", router.handler.AuthCallback)
	})

	// ========================
	// Core API Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		// Read endpoints compress well; the WebSocket and control routes
		// are kept out of the compression group.
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(5))

			r.Get("/status", router.handler.Status)
			r.Get("/rules", router.handler.Rules)
		})

		r.Route("/stream", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitControl())

			r.Post("/start", router.handler.StreamStart)
			r.Post("/stop", router.handler.StreamStop)
		})

		r.With(router.chiMiddleware.RateLimitWebSocket()).
			Get("/events/live", router.handler.LiveFeed)
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	return r
}
