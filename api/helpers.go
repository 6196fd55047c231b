package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stntools/relance/pkg/models"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "err", err)
	}
}

// writeStoreError maps the storage sentinels onto HTTP statuses; anything
// else is a plain 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidPerson):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrDuplicateEmail),
		errors.Is(err, models.ErrDuplicatePSID),
		errors.Is(err, models.ErrDuplicateGoogleID),
		errors.Is(err, models.ErrDuplicatePoleName),
		errors.Is(err, models.ErrDuplicateUser):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Error("storage error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
