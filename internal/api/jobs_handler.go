package api

import (
	"net/http"
	"strings"
	"time"

	"crenors/guildbot/internal/jobs"
	"crenors/guildbot/internal/logging"

	"github.com/go-chi/chi/v5"
)

// JobRunResult is returned after a manual sweep
type JobRunResult struct {
	Job        string `json:"job"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// GetJobStatus handles GET /api/v1/admin/jobs
func (h *Handlers) GetJobStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.deps.Services.Jobs.Status()
		respondWithSuccess(w, r, http.StatusOK, &status)
	}
}

// TriggerJob handles POST /api/v1/admin/jobs/{job}/run. A sweep that ran but
// had per-entity failures still answers 200 with status "partial".
func (h *Handlers) TriggerJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "job")
		if !h.knownJob(name) {
			respondWithError(w, r, http.StatusNotFound, "unknown job "+name)
			return
		}

		logging.Info("Sweep manually triggered", "job", name, "remote_addr", r.RemoteAddr)
		start := time.Now()
		err := h.deps.Services.Jobs.RunNow(r.Context(), name)

		res := JobRunResult{Job: name, Status: "ok", DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			res.Status = "partial"
			res.Error = err.Error()
		}
		respondWithSuccess(w, r, http.StatusOK, &res)
	}
}

func (h *Handlers) knownJob(name string) bool {
	for _, st := range h.deps.Services.Jobs.Status() {
		if strings.EqualFold(st.Name, name) {
			return true
		}
	}
	return false
}

var _ JobRunner = (*jobs.Scheduler)(nil)
