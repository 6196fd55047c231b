package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stntools/relance/internal/reminder"
	"github.com/stntools/relance/pkg/repository"
)

type RemindersHandler struct {
	svc       *reminder.Service
	statsRepo repository.StatsRepo
	msgRepo   repository.MessageLogRepo
}

func NewRemindersHandler(svc *reminder.Service, sr repository.StatsRepo, mr repository.MessageLogRepo) *RemindersHandler {
	return &RemindersHandler{svc: svc, statsRepo: sr, msgRepo: mr}
}

type sendRequest struct {
	Template  string `json:"template"`
	SyncFirst *bool  `json:"sync_first"`
}

// decodeSendRequest tolerates an empty body: default template, sync first.
func decodeSendRequest(r *http.Request) (string, bool) {
	var req sendRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	syncFirst := true
	if req.SyncFirst != nil {
		syncFirst = *req.SyncFirst
	}
	return req.Template, syncFirst
}

// SyncAll reconciles every active form against the form endpoint.
func (h *RemindersHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.SyncAllForms(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// SyncForm reconciles one form.
func (h *RemindersHandler) SyncForm(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.SyncForm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// Preview reports who would be reminded, without sending anything. Optional
// form_id and cooldown_hours query parameters narrow or override the check.
func (h *RemindersHandler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var cooldown time.Duration
	if v := q.Get("cooldown_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid cooldown_hours", http.StatusBadRequest)
			return
		}
		cooldown = time.Duration(n) * time.Hour
	}
	preview, err := h.svc.Preview(r.Context(), q.Get("form_id"), cooldown)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, preview, http.StatusOK)
}

// SendAll runs the guarded reminder cycle over every active form.
func (h *RemindersHandler) SendAll(w http.ResponseWriter, r *http.Request) {
	template, syncFirst := decodeSendRequest(r)
	report := h.svc.SendReminders(r.Context(), template, syncFirst)
	writeJSON(w, report, http.StatusOK)
}

// SendForForm runs the guarded reminder cycle for one form.
func (h *RemindersHandler) SendForForm(w http.ResponseWriter, r *http.Request) {
	template, syncFirst := decodeSendRequest(r)
	report := h.svc.SendRemindersForForm(r.Context(), mux.Vars(r)["id"], template, syncFirst)
	writeJSON(w, report, http.StatusOK)
}

// Dashboard returns the aggregated dashboard statistics.
func (h *RemindersHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.DashboardStats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// GlobalStats returns the store-wide counters.
func (h *RemindersHandler) GlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsRepo.GlobalStats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// MessengerStats summarizes recent send activity. Defaults to 24 hours.
func (h *RemindersHandler) MessengerStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 24*30 {
			hours = n
		}
	}
	stats, err := h.msgRepo.MessengerStats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// TestConnections probes both external collaborators.
func (h *RemindersHandler) TestConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.TestConnections(r.Context()), http.StatusOK)
}
