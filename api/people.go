package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stntools/relance/pkg/models"
	"github.com/stntools/relance/pkg/repository"
)

type PeopleHandler struct {
	personRepo repository.PersonRepo
}

func NewPeopleHandler(pr repository.PersonRepo) *PeopleHandler {
	return &PeopleHandler{personRepo: pr}
}

type personRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	PSID  string `json:"psid"`
}

func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	p := &models.Person{Name: req.Name, Email: strings.TrimSpace(req.Email), PSID: strings.TrimSpace(req.PSID)}
	if err := h.personRepo.CreatePerson(r.Context(), p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, p, http.StatusCreated)
}

func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	people, err := h.personRepo.ListPeople(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if people == nil {
		people = []models.Person{}
	}
	writeJSON(w, people, http.StatusOK)
}

func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.personRepo.GetPersonByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if p == nil {
		http.Error(w, "person not found", http.StatusNotFound)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

func (h *PeopleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.personRepo.GetPersonByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if existing == nil {
		http.Error(w, "person not found", http.StatusNotFound)
		return
	}

	var req personRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name != "" {
		existing.Name = strings.TrimSpace(req.Name)
	}
	existing.Email = strings.TrimSpace(req.Email)
	existing.PSID = strings.TrimSpace(req.PSID)

	if err := h.personRepo.UpdatePerson(r.Context(), existing); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, existing, http.StatusOK)
}

func (h *PeopleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ok, err := h.personRepo.DeletePerson(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		http.Error(w, "person not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
