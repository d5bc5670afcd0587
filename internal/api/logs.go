package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/store"
)

// lookupWorkload returns the current state of a workload, preferring the
// in-memory view and falling back to the store for workloads that predate
// this process.
func (s *Server) lookupWorkload(r *http.Request, name model.WorkloadName) (model.WorkloadState, error) {
	if st, ok := s.engine.States().Get(name); ok {
		return st, nil
	}
	st, err := s.engine.Store().GetWorkloadState(r.Context(), name)
	if err != nil {
		return model.WorkloadState{}, err
	}
	return *st, nil
}

// isLive reports whether an instance in state st may still produce output.
func isLive(st model.ExecutionState) bool {
	return st == model.StatePending || st == model.StateRunning || st == model.StateStopping
}

func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	name := model.WorkloadName(chi.URLParam(r, "name"))

	st, err := s.lookupWorkload(r, name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workload not found")
		return
	}
	if err != nil {
		s.logger.Error("get workload for logs", "workload", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get workload")
		return
	}

	instanceID := r.URL.Query().Get("instance")
	if instanceID == "" {
		instanceID = st.InstanceID
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Earlier instances and finished ones have nothing left to stream.
	if instanceID != st.InstanceID || !isLive(st.State) {
		w.WriteHeader(http.StatusOK)
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe on an instance that finished after the check above returns a
	// closed channel, so the loop exits at once.
	ch, unsub := s.engine.Broker().Subscribe(instanceID)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEData(w, line); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// logHistoryLine is a single log line in the history response.
type logHistoryLine struct {
	Seq       int    `json:"seq"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// logHistoryResponse is the JSON response for GET /v1/workloads/{name}/logs/history.
type logHistoryResponse struct {
	Name       model.WorkloadName `json:"name"`
	InstanceID string             `json:"instance_id"`
	Lines      []logHistoryLine   `json:"lines"`
}

func (s *Server) handleGetLogHistory(w http.ResponseWriter, r *http.Request) {
	name := model.WorkloadName(chi.URLParam(r, "name"))

	st, err := s.lookupWorkload(r, name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workload not found")
		return
	}
	if err != nil {
		s.logger.Error("get workload for log history", "workload", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get workload")
		return
	}

	instanceID := r.URL.Query().Get("instance")
	if instanceID == "" {
		instanceID = st.InstanceID
	}

	logLines, err := s.engine.Store().GetLogLines(r.Context(), instanceID)
	if err != nil {
		s.logger.Error("get log lines", "instance_id", instanceID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get log lines")
		return
	}

	lines := make([]logHistoryLine, 0, len(logLines))
	for _, l := range logLines {
		if l.Name != name {
			continue
		}
		lines = append(lines, logHistoryLine{
			Seq:       l.Seq,
			Line:      l.Line,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, logHistoryResponse{
		Name:       name,
		InstanceID: instanceID,
		Lines:      lines,
	})
}

// writeSSEData writes a log line as an SSE data event. Multi-line strings are
// split so that each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
