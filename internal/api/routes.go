package api

import (
	"github.com/gorilla/mux"

	"github.com/trogers1052/crypto-portfolio/internal/metrics"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/assets", handler.ListAssets).Methods("GET")

	owner := api.PathPrefix("/owners/{owner}").Subrouter()
	owner.HandleFunc("/transactions", handler.ListTransactions).Methods("GET")
	owner.HandleFunc("/transactions", handler.RecordTransaction).Methods("POST")
	owner.HandleFunc("/transactions/{id:[0-9]+}", handler.RemoveTransaction).Methods("DELETE")

	owner.HandleFunc("/positions", handler.ListPositions).Methods("GET")
	owner.HandleFunc("/positions/{symbol}", handler.GetPosition).Methods("GET")
	owner.HandleFunc("/positions/{symbol}/recalculate", handler.RecalculatePosition).Methods("POST")
	owner.HandleFunc("/positions/{symbol}/series", handler.PositionSeries).Methods("GET")

	owner.HandleFunc("/portfolio/series", handler.PortfolioSeries).Methods("GET")
	owner.HandleFunc("/overview", handler.Overview).Methods("GET")

	owner.HandleFunc("/alerts", handler.ListAlerts).Methods("GET")
	owner.HandleFunc("/alerts/{id:[0-9]+}", handler.GetAlert).Methods("GET")

	return r
}
