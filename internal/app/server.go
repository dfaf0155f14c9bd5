package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"places-cache/internal/common/logging"
	"places-cache/internal/common/ratelimit"
	"places-cache/internal/handlers"
	"places-cache/internal/server"
	"places-cache/internal/storage"
)

// RunServer builds the router and the HTTP server. The server is not started.
func (app *App) RunServer() (*server.Server, http.Handler) {
	var durable handlers.HealthChecker
	if app.Durable != nil {
		durable = app.Durable
	}
	h := handlers.New(app.Places, durable, app.Client, Version)

	router := mux.NewRouter()
	SetupRoutes(router, h, app.inboundLimiter(), app.httpMetrics, app.Registry)

	srv := server.New(router, app.Config.Port, "", "")
	return srv, router
}

func (app *App) inboundLimiter() ratelimit.Limiter {
	rps := app.Config.InboundRateLimitRPS()
	if rps <= 0 {
		return nil
	}

	limiter, err := ratelimit.NewLocalLimiter(ratelimit.Config{
		RequestsPerSecond: rps,
		BurstSize:         int(rps * 2),
		Enabled:           true,
	})
	if err != nil {
		app.Logger.Warn("Invalid inbound rate limit, API is unthrottled", logging.Err(err))
		return nil
	}
	return limiter
}

// durableName is used in startup logs
func durableName(d storage.DurableTier) string {
	if d == nil {
		return "none"
	}
	return d.Name()
}
