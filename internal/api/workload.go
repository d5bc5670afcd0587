package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/store"
)

// listWorkloadsResponse wraps the workload state list.
type listWorkloadsResponse struct {
	Workloads []model.WorkloadState `json:"workloads"`
	Total     int                   `json:"total"`
}

func (s *Server) handleGetWorkload(w http.ResponseWriter, r *http.Request) {
	name := model.WorkloadName(chi.URLParam(r, "name"))

	st, err := s.lookupWorkload(r, name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workload not found")
		return
	}
	if err != nil {
		s.logger.Error("get workload", "workload", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get workload")
		return
	}

	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListWorkloads(w http.ResponseWriter, r *http.Request) {
	persisted, err := s.engine.Store().ListWorkloadStates(r.Context())
	if err != nil {
		s.logger.Error("list workloads", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workloads")
		return
	}

	// In-memory states are authoritative. Persisted ones fill in workloads
	// this process has not seen yet.
	states := s.engine.States().List()
	for _, st := range persisted {
		if _, ok := s.engine.States().Get(st.Name); !ok {
			states = append(states, st)
		}
	}
	slices.SortFunc(states, func(a, b model.WorkloadState) int {
		return strings.Compare(string(a.Name), string(b.Name))
	})

	if filter := r.URL.Query().Get("state"); filter != "" {
		filtered := states[:0]
		for _, st := range states {
			if string(st.State) == filter {
				filtered = append(filtered, st)
			}
		}
		states = filtered
	}

	s.writeJSON(w, http.StatusOK, listWorkloadsResponse{
		Workloads: states,
		Total:     len(states),
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
