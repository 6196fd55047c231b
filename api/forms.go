package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/stntools/relance/pkg/models"
	"github.com/stntools/relance/pkg/repository"
)

type FormsHandler struct {
	formRepo     repository.FormRepo
	responseRepo repository.ResponseRepo
}

func NewFormsHandler(fr repository.FormRepo, rr repository.ResponseRepo) *FormsHandler {
	return &FormsHandler{formRepo: fr, responseRepo: rr}
}

type formRequest struct {
	Name           string   `json:"name"`
	GoogleFormID   string   `json:"google_form_id"`
	PoleID         string   `json:"pole_id"`
	Description    string   `json:"description"`
	DateEnvoi      string   `json:"date_envoi"`
	IsActive       *bool    `json:"is_active"`
	ExpectedPeople []string `json:"expected_people_ids"`
}

type formResponse struct {
	models.Form
	ExpectedPeopleIDs []string          `json:"expected_people_ids"`
	URL               string            `json:"url"`
	Stats             *models.FormStats `json:"stats,omitempty"`
}

func parseDateEnvoi(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}

func (h *FormsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.GoogleFormID = strings.TrimSpace(req.GoogleFormID)
	if req.Name == "" || req.GoogleFormID == "" {
		http.Error(w, "name and google_form_id are required", http.StatusBadRequest)
		return
	}
	dateEnvoi, ok := parseDateEnvoi(req.DateEnvoi)
	if !ok {
		http.Error(w, "invalid date_envoi", http.StatusBadRequest)
		return
	}

	f := &models.Form{
		Name:         req.Name,
		GoogleFormID: req.GoogleFormID,
		PoleID:       req.PoleID,
		Description:  req.Description,
		DateEnvoi:    dateEnvoi,
		IsActive:     true,
	}
	if req.IsActive != nil {
		f.IsActive = *req.IsActive
	}
	if err := h.formRepo.CreateForm(r.Context(), f, req.ExpectedPeople); err != nil {
		writeStoreError(w, err)
		return
	}

	expected, err := h.formRepo.ExpectedPeopleIDs(r.Context(), f.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, formResponse{Form: *f, ExpectedPeopleIDs: expected, URL: f.URL()}, http.StatusCreated)
}

func (h *FormsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var forms []models.Form
	var err error
	if poleID := q.Get("pole_id"); poleID != "" {
		forms, err = h.formRepo.ListFormsByPole(r.Context(), poleID)
	} else {
		forms, err = h.formRepo.ListForms(r.Context(), q.Get("active") == "true")
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if forms == nil {
		forms = []models.Form{}
	}
	writeJSON(w, forms, http.StatusOK)
}

func (h *FormsHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, expected, err := h.formRepo.GetFormByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if f == nil {
		http.Error(w, "form not found", http.StatusNotFound)
		return
	}
	stats, err := h.responseRepo.FormStats(r.Context(), f.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, formResponse{Form: *f, ExpectedPeopleIDs: expected, URL: f.URL(), Stats: &stats}, http.StatusOK)
}

func (h *FormsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, _, err := h.formRepo.GetFormByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if existing == nil {
		http.Error(w, "form not found", http.StatusNotFound)
		return
	}

	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name != "" {
		existing.Name = strings.TrimSpace(req.Name)
	}
	if req.PoleID != "" {
		existing.PoleID = req.PoleID
	}
	if req.Description != "" {
		existing.Description = req.Description
	}
	if req.DateEnvoi != "" {
		dateEnvoi, ok := parseDateEnvoi(req.DateEnvoi)
		if !ok {
			http.Error(w, "invalid date_envoi", http.StatusBadRequest)
			return
		}
		existing.DateEnvoi = dateEnvoi
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if _, err := h.formRepo.UpdateForm(r.Context(), existing); err != nil {
		writeStoreError(w, err)
		return
	}
	if req.ExpectedPeople != nil {
		if err := h.formRepo.UpdateExpectedPeople(r.Context(), id, req.ExpectedPeople); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	expected, err := h.formRepo.ExpectedPeopleIDs(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, formResponse{Form: *existing, ExpectedPeopleIDs: expected, URL: existing.URL()}, http.StatusOK)
}

func (h *FormsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ok, err := h.formRepo.DeleteForm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		http.Error(w, "form not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NonResponders lists the people still pending on one form.
func (h *FormsHandler) NonResponders(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f, _, err := h.formRepo.GetFormByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if f == nil {
		http.Error(w, "form not found", http.StatusNotFound)
		return
	}

	pending, err := h.responseRepo.NonResponders(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if pending == nil {
		pending = []models.NonResponder{}
	}
	writeJSON(w, pending, http.StatusOK)
}
