package api

import (
	"fmt"
	"net/http"

	"github.com/stntools/relance/pkg/repository"
)

type SystemHandler struct {
	statsRepo repository.StatsRepo
}

func NewSystemHandler(sr repository.StatsRepo) *SystemHandler {
	return &SystemHandler{statsRepo: sr}
}

// HealthHandler reports liveness plus the store integrity counters.
func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.statsRepo.HealthCheck(r.Context())
	if err != nil {
		http.Error(w, "health check failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report, http.StatusOK)
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","buildTime":"%s"}`, version, buildTime)
	}
}
