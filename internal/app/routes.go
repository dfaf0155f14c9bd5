package app

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"places-cache/internal/common/ratelimit"
	"places-cache/internal/handlers"
	"places-cache/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application. A nil
// rateLimiter leaves the API unthrottled.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, rateLimiter ratelimit.Limiter, metrics *middleware.HTTPMetrics, gatherer prometheus.Gatherer) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware)
	router.Use(metrics.Middleware)

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.RateLimit(rateLimiter))

	api.HandleFunc("/places/search", h.SearchPlaces).Methods("GET")
	api.HandleFunc("/places/details/{placeID}", h.GetPlaceDetails).Methods("GET")
	api.HandleFunc("/geocode", h.Geocode).Methods("GET")
}
