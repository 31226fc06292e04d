package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Version is reported by the status endpoint.
var Version = "0.1.0"

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) registerEndpoints() {
	s.Router.HandleFunc("/", handleVersion()).Methods("GET")
	s.Router.HandleFunc("/healthz", handleHealth(s.Health)).Methods("GET")
	if s.Metrics != nil {
		s.Router.Handle("/metrics", s.Metrics).Methods("GET")
	}
}

func handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": Version})
	}
}

func handleHealth(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health.CheckConnectivity(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(statusResponse{
					Status: "error",
					Error:  "database connectivity check failed",
				})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "ok"})
	}
}
