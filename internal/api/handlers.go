// Package api exposes the read model dashboards consume: profiles,
// timewindows, tuples, timelines, evidence, alerts and block state. All
// endpoints are read-only views over the engine's state.
package api

import (
	"FlowSentry/internal/blocking"
	"FlowSentry/internal/ledger"
	"FlowSentry/internal/model"
	"FlowSentry/internal/store"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler holds the dependencies for the read-model endpoints.
type Handler struct {
	store   *store.Store
	ledger  *ledger.Ledger
	tracker *blocking.Tracker
}

// NewHandler creates a read-model handler over the given components.
func NewHandler(st *store.Store, led *ledger.Ledger, tracker *blocking.Tracker) *Handler {
	return &Handler{store: st, ledger: led, tracker: tracker}
}

// Register mounts the read-model routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/profiles", h.profilesHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{profileid}/timewindows", h.timewindowsHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{profileid}/timewindows/{twid}/tuples", h.tuplesHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{profileid}/timewindows/{twid}/timeline", h.timelineHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{profileid}/timewindows/{twid}/evidence", h.evidenceHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{profileid}/timewindows/{twid}/alerts", h.alertsHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{profileid}/blocked", h.blockedHandler).Methods("GET")
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

func (h *Handler) profilesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.store.GetProfiles())
}

func (h *Handler) timewindowsHandler(w http.ResponseWriter, r *http.Request) {
	profileid := mux.Vars(r)["profileid"]
	writeJSON(w, h.store.GetTimewindowsWithTimestamps(profileid))
}

func (h *Handler) tuplesHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dir := model.DirectionOut
	if r.URL.Query().Get("direction") == "in" {
		dir = model.DirectionIn
	}
	writeJSON(w, h.store.GetTuples(vars["profileid"], vars["twid"], dir))
}

func (h *Handler) timelineHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	writeJSON(w, h.store.GetTimeline(vars["profileid"], vars["twid"]))
}

func (h *Handler) evidenceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	writeJSON(w, h.ledger.GetEvidence(vars["profileid"], vars["twid"]))
}

// alertsHandler returns the window's alert map: alert id to the evidence
// ids it correlates.
func (h *Handler) alertsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	alerts := h.ledger.GetAlerts(vars["profileid"], vars["twid"])
	alertMap := make(map[string][]string, len(alerts))
	for _, alert := range alerts {
		alertMap[alert.ID] = alert.EvidenceIDs
	}
	writeJSON(w, alertMap)
}

func (h *Handler) blockedHandler(w http.ResponseWriter, r *http.Request) {
	profileid := mux.Vars(r)["profileid"]
	writeJSON(w, h.tracker.BlockedTimewindows(profileid))
}
