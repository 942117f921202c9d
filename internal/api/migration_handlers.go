package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/esmigrate/internal/migration"
	"github.com/rflorenc/esmigrate/internal/models"
)

// previewCache holds a computed plan and the clusters it was computed for,
// between the preview and run steps.
type previewCache struct {
	Plan        *models.MigrationPlan
	Source      *models.Cluster
	Destination *models.Cluster
}

// PreviewStore provides thread-safe storage for migration previews.
type PreviewStore struct {
	mu       sync.RWMutex
	previews map[string]*previewCache
}

func NewPreviewStore() *PreviewStore {
	return &PreviewStore{previews: make(map[string]*previewCache)}
}

func (ps *PreviewStore) Store(jobID string, pc *previewCache) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.previews[jobID] = pc
}

func (ps *PreviewStore) Get(jobID string) *previewCache {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.previews[jobID]
}

// Take removes and returns a preview, so that a plan runs at most once.
func (ps *PreviewStore) Take(jobID string) *previewCache {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	pc := ps.previews[jobID]
	delete(ps.previews, jobID)
	return pc
}

// startJob creates a job with a cancellable context.
func (s *Server) startJob(jobType, sourceID, destinationID string) (*models.Job, context.Context) {
	job := s.Jobs.Create(jobType, sourceID, destinationID)
	ctx, cancel := context.WithCancel(context.Background())
	job.SetCancel(cancel)
	return job, ctx
}

// MigrationPreviewHandler starts an async preview job (preflight, inventory, plan).
func (s *Server) MigrationPreviewHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID      string `json:"source_id"`
		DestinationID string `json:"destination_id"`
		Pattern       string `json:"pattern"`
		Overwrite     bool   `json:"overwrite"`
		RemoveExtra   bool   `json:"remove_extra"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	src := s.Clusters.Lookup(req.SourceID)
	if src == nil {
		writeError(w, http.StatusNotFound, "source cluster not found")
		return
	}
	dst := s.Clusters.Lookup(req.DestinationID)
	if dst == nil {
		writeError(w, http.StatusNotFound, "destination cluster not found")
		return
	}
	if src.ID == dst.ID {
		writeError(w, http.StatusBadRequest, "source and destination must differ")
		return
	}
	pattern, err := migration.CompilePattern(req.Pattern)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	policy := models.Policy{Overwrite: req.Overwrite, RemoveExtra: req.RemoveExtra, NamePattern: pattern}

	job, ctx := s.startJob(models.JobMigrationPreview, src.ID, dst.ID)

	go func() {
		m := migration.New(s.open(src), s.open(dst), s.Options, job.AppendLog)
		plan, err := m.Preview(ctx, policy)
		if err != nil {
			job.AppendLog("ERROR: " + err.Error())
			job.Fail(err.Error())
			return
		}

		s.Previews.Store(job.ID, &previewCache{Plan: plan, Source: src, Destination: dst})
		job.Complete()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// GetMigrationPreview returns the cached plan of a completed preview job.
func (s *Server) GetMigrationPreview(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job := s.Jobs.Get(jobID)
	if job == nil || job.Type != models.JobMigrationPreview {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch job.CurrentStatus() {
	case "running":
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "running",
			"message": "preview is still in progress",
		})
		return
	case "failed":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "failed",
			"error":  job.Error,
		})
		return
	}

	cached := s.Previews.Get(jobID)
	if cached == nil {
		writeError(w, http.StatusNotFound, "preview data not found")
		return
	}

	writeJSON(w, http.StatusOK, cached.Plan)
}

// MigrationRunHandler executes a previously computed plan. Requesting the
// run is the operator's confirmation.
func (s *Server) MigrationRunHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PreviewJobID string `json:"preview_job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	cached := s.Previews.Take(req.PreviewJobID)
	if cached == nil {
		writeError(w, http.StatusNotFound, "preview not found, run preview first")
		return
	}

	job, ctx := s.startJob(models.JobMigrationRun, cached.Source.ID, cached.Destination.ID)

	go func() {
		m := migration.New(s.open(cached.Source), s.open(cached.Destination), s.Options, job.AppendLog)
		report, err := m.Run(ctx, cached.Plan, job.SetProgress)
		if report != nil {
			job.SetProgress(report.Progress)
		}
		switch {
		case err != nil:
			job.AppendLog("ERROR: " + err.Error())
			job.Fail(err.Error())
		case len(report.Failed()) > 0:
			msg := fmt.Sprintf("%d action(s) failed", len(report.Failed()))
			job.AppendLog("ERROR: " + msg)
			job.Fail(msg)
		default:
			job.Complete()
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}
