package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/esmigrate/internal/models"
)

// ListJobs returns jobs, most recent first. The optional "type"
// (migration-preview, migration-run) and "status" query parameters narrow
// the list.
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobType := r.URL.Query().Get("type")
	status := r.URL.Query().Get("status")
	switch jobType {
	case "", models.JobMigrationPreview, models.JobMigrationRun:
	default:
		writeError(w, http.StatusBadRequest, "unknown job type: "+jobType)
		return
	}

	jobs := make([]*models.Job, 0)
	for _, job := range s.Jobs.List() {
		if jobType != "" && job.Type != jobType {
			continue
		}
		if status != "" && job.CurrentStatus() != status {
			continue
		}
		jobs = append(jobs, job)
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	job := s.Jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob stops a running preview or run. Copies already submitted keep
// running on the destination cluster.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	job := s.Jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Cancel() {
		writeError(w, http.StatusConflict, "job is "+job.CurrentStatus())
		return
	}
	logger.Infof("job %s (%s %s -> %s) cancelled", job.ID, job.Type, job.SourceID, job.DestinationID)
	job.AppendLog("CANCELLED: stopped by user; submitted copies keep running on the destination")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
