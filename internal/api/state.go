package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seantiz/anvil/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

// handleApplyState accepts a desired state. Dispatch happens before the
// response is written, but workloads reach their states asynchronously, so
// the reply is 202 with the queues as they stand after the call. A client
// that disconnects mid-batch does not cut the batch short.
func (s *Server) handleApplyState(w http.ResponseWriter, r *http.Request) {
	var ds model.DesiredState
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.engine.ApplyState(context.WithoutCancel(r.Context()), ds); err != nil {
		if errors.Is(err, model.ErrInvalidDesiredState) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("apply state", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to apply state")
		return
	}

	s.writeJSON(w, http.StatusAccepted, s.engine.Waiting())
}

func (s *Server) handleGetQueues(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Waiting())
}
