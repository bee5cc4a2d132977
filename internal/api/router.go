package api

import (
	"net/http"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strategyd/internal/handlers"
	"strategyd/internal/middleware"
)

// NewRouter wires the strategy control routes behind the middleware chain and
// the dashboard's CORS policy.
func NewRouter(strat *handlers.StrategyHandler, health *handlers.HealthHandler, corsOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", strat.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s := r.PathPrefix("/strategy").Subrouter()
	s.HandleFunc("/start", strat.Start).Methods(http.MethodGet, http.MethodPost)
	s.HandleFunc("/stop", strat.Stop).Methods(http.MethodGet)
	s.HandleFunc("/status", strat.Status).Methods(http.MethodGet)
	s.HandleFunc("/reset", strat.Reset).Methods(http.MethodGet)
	s.HandleFunc("/logs", strat.Logs).Methods(http.MethodGet)

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)

	cors := ghandlers.CORS(
		ghandlers.AllowedOrigins(corsOrigins),
		ghandlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions,
		}),
		ghandlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
		ghandlers.AllowCredentials(),
	)
	return cors(r)
}
