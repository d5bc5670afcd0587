package api

import (
	"net/http"

	"github.com/seantiz/anvil/internal/model"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total           int                          `json:"total"`
	ByState         map[model.ExecutionState]int `json:"by_state"`
	WaitingToStart  int                          `json:"waiting_to_start"`
	WaitingToDelete int                          `json:"waiting_to_delete"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	states := s.engine.States().List()
	queues := s.engine.Waiting()

	resp := statsResponse{
		Total:           len(states),
		ByState:         make(map[model.ExecutionState]int),
		WaitingToStart:  len(queues.Start),
		WaitingToDelete: len(queues.Delete),
	}
	for _, st := range states {
		resp.ByState[st.State]++
	}

	s.writeJSON(w, http.StatusOK, resp)
}
