package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stntools/relance/pkg/models"
	"github.com/stntools/relance/pkg/repository"
)

type PolesHandler struct {
	poleRepo repository.PoleRepo
}

func NewPolesHandler(pr repository.PoleRepo) *PolesHandler {
	return &PolesHandler{poleRepo: pr}
}

type poleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	IsActive    *bool  `json:"is_active"`
}

func (h *PolesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req poleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	p := &models.Pole{Name: req.Name, Description: req.Description, Color: req.Color, IsActive: true}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if err := h.poleRepo.CreatePole(r.Context(), p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, p, http.StatusCreated)
}

func (h *PolesHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	poles, err := h.poleRepo.ListPoles(r.Context(), activeOnly)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if poles == nil {
		poles = []models.Pole{}
	}
	writeJSON(w, poles, http.StatusOK)
}

func (h *PolesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.poleRepo.GetPoleByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if existing == nil {
		http.Error(w, "pole not found", http.StatusNotFound)
		return
	}

	var req poleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name != "" {
		existing.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		existing.Description = req.Description
	}
	if req.Color != "" {
		existing.Color = req.Color
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	ok, err := h.poleRepo.UpdatePole(r.Context(), existing)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		http.Error(w, "pole not found", http.StatusNotFound)
		return
	}
	writeJSON(w, existing, http.StatusOK)
}

func (h *PolesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	moveTo := r.URL.Query().Get("move_forms_to")
	ok, err := h.poleRepo.DeletePole(r.Context(), mux.Vars(r)["id"], moveTo)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		http.Error(w, "pole not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
