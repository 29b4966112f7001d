package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"courtside/ingestion/internal/orchestrator"
	"courtside/ingestion/internal/warehouse"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// startHTTPServer serves Prometheus metrics, the health check, and the
// orchestrator debug surface.
func startHTTPServer(ctx context.Context, port string, orch *orchestrator.Orchestrator, wh *warehouse.Warehouse) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := wh.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Read-only status: current schedule, window state, cycle running,
	// error counts and last-error detail.
	mux.HandleFunc("/debug/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.Status())
	})

	// Administrative operations for operational testing.
	mux.HandleFunc("/debug/force-start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		orch.ForceStart(ctx)
		writeJSON(w, http.StatusAccepted, map[string]string{"result": "started"})
	})

	mux.HandleFunc("/debug/force-stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		orch.ForceStop()
		writeJSON(w, http.StatusAccepted, map[string]string{"result": "stopped"})
	})

	mux.HandleFunc("/debug/force-fetch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		result, err := orch.ForceFetch(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"result": result,
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("/debug/force-refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := orch.ForceRefresh(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": "refreshed"})
	})

	addr := fmt.Sprintf(":%s", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", port).Msg("Starting metrics and debug server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
