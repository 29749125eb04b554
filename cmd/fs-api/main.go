package main

import (
	"FlowSentry/internal/config"
	"FlowSentry/internal/query"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
)

// fs-api serves historical evidence and alerts from the ClickHouse export,
// for dashboards that outlive a single engine run.
func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Find the first enabled ClickHouse writer config
	var chCfg *config.ClickHouseConfig
	for _, writerDef := range cfg.Writers {
		if writerDef.Enabled && writerDef.Type == "clickhouse" {
			chCfg = &writerDef.ClickHouse
			break
		}
	}
	if chCfg == nil {
		log.Fatalf("No enabled ClickHouse writer found in config. History server cannot start.")
	}

	querier, err := query.NewClickHouseQuerier(*chCfg)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}

	r := mux.NewRouter()
	apiHandler := &APIHandler{querier: querier}
	r.HandleFunc("/api/v1/history/profiles/{profileid}/timewindows/{twid}/evidence", apiHandler.evidenceHandler).Methods("GET")
	r.HandleFunc("/api/v1/history/profiles/{profileid}/alerts", apiHandler.alertsHandler).Methods("GET")

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("History API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("History API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("History API server exited.")
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
}

func (h *APIHandler) evidenceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	evidence, err := h.querier.ListEvidence(r.Context(), vars["profileid"], vars["twid"])
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query evidence: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, evidence)
}

func (h *APIHandler) alertsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	alerts, err := h.querier.ListAlerts(r.Context(), vars["profileid"])
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query alerts: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, alerts)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
